// Copyright 2026 The TradeArena Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tradearena/arena/pkg/agentconfig"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned by operations that need an existing session.
var ErrSessionNotFound = errors.New("session not found")

// Config configures a Store.
type Config struct {
	// Root is the directory holding session_<id> directories.
	Root string

	// Registry, when set, supplies agent display info for sessions whose
	// agent snapshot is missing.
	Registry agentconfig.Registry

	Logger *zap.Logger

	// Now overrides the clock used for written timestamps.
	Now func() time.Time
}

// Store reads and writes the session log under one root directory. Nothing
// is cached: every read rescans disk.
type Store struct {
	root     string
	registry agentconfig.Registry
	logger   *zap.Logger
	now      func() time.Time

	// serializes writers within this process; the filesystem remains
	// last-writer-wins across processes
	writeMu sync.Mutex
}

// NewStore creates a store rooted at cfg.Root. The directory is created on
// first write, not here.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("session root is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		root:     cfg.Root,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// Root returns the directory the store scans.
func (s *Store) Root() string {
	return s.root
}

// ListSessions returns a summary of every readable session, most recently
// updated first. Sessions without an update time sort last. Unreadable or
// malformed sessions are logged and skipped.
func (s *Store) ListSessions() []Summary {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Failed to read sessions directory", zap.String("dir", s.root), zap.Error(err))
		}
		return []Summary{}
	}

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := sessionIDFromDir(e.Name())
		if !ok {
			continue
		}
		summary, err := s.summarize(id)
		if err != nil {
			s.logger.Warn("Skipping unreadable session",
				zap.String("session_id", id),
				zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
	}

	sortSummaries(summaries)
	return summaries
}

// GetSession returns the summary for one session.
func (s *Store) GetSession(id string) (Summary, bool) {
	if err := validatePathComponent(id); err != nil {
		return Summary{}, false
	}
	summary, err := s.summarize(id)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read session", zap.String("session_id", id), zap.Error(err))
		}
		return Summary{}, false
	}
	return summary, true
}

// GetLatestSession returns the most recently updated session.
func (s *Store) GetLatestSession() (Summary, bool) {
	sessions := s.ListSessions()
	if len(sessions) == 0 {
		return Summary{}, false
	}
	return sessions[0], true
}

// FindSessionByAgent returns the most recent session owned by agentID, which
// may be given in registry or runtime form.
func (s *Store) FindSessionByAgent(agentID string) (Summary, bool) {
	want := agentconfig.ConfigAgentID(agentID)
	for _, summary := range s.ListSessions() {
		if agentconfig.ConfigAgentID(summary.Agent.AgentID) == want || summary.Agent.ConfigAgentID == want {
			return summary, true
		}
	}
	return Summary{}, false
}

// Exists reports whether the session directory is present.
func (s *Store) Exists(id string) bool {
	if validatePathComponent(id) != nil {
		return false
	}
	info, err := os.Stat(SessionDir(s.root, id))
	return err == nil && info.IsDir()
}

// GetSessionMessages returns the session's messages in ascending numeric id
// order with blank messages removed. A missing session or agent directory
// yields an empty slice. Only an invalid id is an error.
func (s *Store) GetSessionMessages(id string) ([]Message, error) {
	if err := validatePathComponent(id); err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.String("session_id", id))

	agentDir, ok := findAgentDir(SessionDir(s.root, id))
	if !ok {
		return []Message{}, nil
	}

	files := listMessageFiles(agentDir)
	messages := make([]Message, 0, len(files))
	for _, f := range files {
		rec, err := readJSON[messageRecord](f.path)
		if err != nil {
			logger.Warn("Skipping unreadable message", zap.String("file", f.path), zap.Error(err))
			continue
		}
		text := extractText(rec.Message.Content)
		if strings.TrimSpace(text) == "" {
			logger.Debug("Skipping blank message", zap.Int("message_id", f.id))
			continue
		}
		role := rec.Message.Role
		if role == "" {
			role = unknownValue
		}
		messages = append(messages, Message{
			ID:        f.id,
			Role:      role,
			Content:   text,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return messages, nil
}

// AgentSnapshot returns the sanitized agent snapshot saved in the session.
func (s *Store) AgentSnapshot(id string) (agentconfig.Snapshot, bool) {
	if validatePathComponent(id) != nil {
		return agentconfig.Snapshot{}, false
	}
	agentDir, ok := findAgentDir(SessionDir(s.root, id))
	if !ok {
		return agentconfig.Snapshot{}, false
	}
	rec, err := readJSON[agentRecord](filepath.Join(agentDir, agentFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read agent state", zap.String("session_id", id), zap.Error(err))
		}
		return agentconfig.Snapshot{}, false
	}
	if rec.State.AgentConfig == nil || rec.State.AgentConfig.Empty() {
		return agentconfig.Snapshot{}, false
	}
	return *rec.State.AgentConfig, true
}

// DeleteSession removes the session and everything below it. It reports
// false, without error, when the session does not exist.
func (s *Store) DeleteSession(id string) (bool, error) {
	if err := validatePathComponent(id); err != nil {
		return false, err
	}
	dir := SessionDir(s.root, id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Session to delete does not exist", zap.String("session_id", id))
			return false, nil
		}
		return false, fmt.Errorf("failed to stat session %s: %w", id, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	s.logger.Info("Deleted session", zap.String("session_id", id))
	return true, nil
}

func (s *Store) summarize(id string) (Summary, error) {
	dir := SessionDir(s.root, id)
	rec, err := readJSON[sessionRecord](filepath.Join(dir, sessionFile))
	if err != nil {
		return Summary{}, err
	}

	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = id
	}
	sessionType := rec.SessionType
	if sessionType == "" {
		sessionType = "UNKNOWN"
	}

	info, count := s.agentInfo(id, dir)
	size := jsonSize(dir)
	return Summary{
		SessionID:    sessionID,
		SessionType:  sessionType,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		Agent:        info,
		MessageCount: count,
		SizeBytes:    size,
		Size:         FormatSize(size),
	}, nil
}

// agentInfo resolves display info from the session snapshot, then the
// registry, then placeholders. Provider display is never blank.
func (s *Store) agentInfo(id, sessionDir string) (AgentInfo, int) {
	info := AgentInfo{
		Name:           unknownAgent,
		Provider:       unknownValue,
		TradingContext: unknownValue,
	}

	agentDir, ok := findAgentDir(sessionDir)
	if !ok {
		info.ProviderDisplay = agentconfig.DisplayName("")
		return info, 0
	}
	count := len(listMessageFiles(agentDir))

	rec, err := readJSON[agentRecord](filepath.Join(agentDir, agentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to read agent state", zap.String("session_id", id), zap.Error(err))
	}
	info.AgentID = rec.AgentID

	switch {
	case rec.State.AgentConfig != nil && !rec.State.AgentConfig.Empty():
		snap := rec.State.AgentConfig
		info.ConfigAgentID = snap.ID
		info.Name = firstNonEmpty(snap.Name, unknownAgent)
		info.Provider = firstNonEmpty(snap.Provider, unknownValue)
		info.TradingContext = firstNonEmpty(snap.TradingContext, unknownValue)
	case rec.AgentID != "" && s.registry != nil:
		if full, ok := s.registry.Get(agentconfig.ConfigAgentID(rec.AgentID)); ok {
			info.ConfigAgentID = full.ID
			info.Name = firstNonEmpty(full.Name, unknownAgent)
			info.Provider = firstNonEmpty(full.Provider, unknownValue)
			info.TradingContext = firstNonEmpty(full.TradingContext, unknownValue)
		}
	}

	if info.Provider == unknownValue {
		info.ProviderDisplay = agentconfig.DisplayName("")
	} else {
		info.ProviderDisplay = agentconfig.DisplayName(info.Provider)
	}
	return info, count
}

func sortSummaries(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.UpdatedAt.IsZero() != b.UpdatedAt.IsZero() {
			return !a.UpdatedAt.IsZero()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt.Time) {
			return a.UpdatedAt.After(b.UpdatedAt.Time)
		}
		return a.SessionID < b.SessionID
	})
}

func readJSON[T any](path string) (T, error) {
	var v T
	// #nosec G304 -- path is built from validated components below the store root
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
