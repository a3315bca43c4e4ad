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

	"github.com/tradearena/arena/internal/fsutil"
	"github.com/tradearena/arena/pkg/agentconfig"
	"go.uber.org/zap"
)

var (
	// ErrSessionExists is returned when creating a session id already on disk.
	ErrSessionExists = errors.New("session already exists")

	// ErrNoAgent is returned when appending to a session without an agent.
	ErrNoAgent = errors.New("session has no agent")
)

// CreateSession writes session.json for a new session id.
func (s *Store) CreateSession(id, sessionType string) (Summary, error) {
	if err := validatePathComponent(id); err != nil {
		return Summary{}, err
	}
	if sessionType == "" {
		sessionType = TypeAgent
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dir := SessionDir(s.root, id)
	if _, err := os.Stat(filepath.Join(dir, sessionFile)); err == nil {
		return Summary{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Summary{}, fmt.Errorf("failed to create session directory: %w", err)
	}

	now := NewTimestamp(s.now())
	rec := sessionRecord{
		SessionID:   id,
		SessionType: sessionType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := writeJSONAtomic(filepath.Join(dir, sessionFile), rec); err != nil {
		return Summary{}, err
	}

	s.logger.Info("Created session", zap.String("session_id", id), zap.String("session_type", sessionType))
	summary, err := s.summarize(id)
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// SaveAgent records the agent snapshot for a session. The snapshot is
// rejected if it still carries a sensitive field. The agent directory is
// keyed by the runtime agent id.
func (s *Store) SaveAgent(id string, snap agentconfig.Snapshot) error {
	if err := validatePathComponent(id); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.ID == "" {
		return fmt.Errorf("agent snapshot requires an id")
	}
	runtimeID := agentconfig.RuntimeAgentID(snap.ID)
	if err := validatePathComponent(runtimeID); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dir := SessionDir(s.root, id)
	if _, err := os.Stat(filepath.Join(dir, sessionFile)); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	agentDir := AgentDir(dir, runtimeID)
	if err := os.MkdirAll(filepath.Join(agentDir, messagesDir), 0700); err != nil {
		return fmt.Errorf("failed to create agent directory: %w", err)
	}

	now := NewTimestamp(s.now())
	rec := agentRecord{AgentID: runtimeID, CreatedAt: now, UpdatedAt: now}
	if prev, err := readJSON[agentRecord](filepath.Join(agentDir, agentFile)); err == nil && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.State.AgentConfig = &snap

	if err := writeJSONAtomic(filepath.Join(agentDir, agentFile), rec); err != nil {
		return err
	}
	if err := s.touchLocked(id); err != nil {
		return err
	}

	s.logger.Debug("Saved agent snapshot",
		zap.String("session_id", id),
		zap.String("agent_id", runtimeID))
	return nil
}

// AppendMessage writes the next numbered message for the session's agent.
func (s *Store) AppendMessage(id, role, text string) (Message, error) {
	if err := validatePathComponent(id); err != nil {
		return Message{}, err
	}
	if role == "" {
		return Message{}, fmt.Errorf("role is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	agentDir, ok := findAgentDir(SessionDir(s.root, id))
	if !ok {
		if !s.Exists(id) {
			return Message{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return Message{}, fmt.Errorf("%w: %s", ErrNoAgent, id)
	}

	next := 0
	if files := listMessageFiles(agentDir); len(files) > 0 {
		next = files[len(files)-1].id + 1
	}

	now := NewTimestamp(s.now())
	block, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Message{}, err
	}
	rec := messageRecord{
		MessageID: next,
		Message:   messageBody{Role: role, Content: []json.RawMessage{block}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := writeJSONAtomic(MessagePath(agentDir, next), rec); err != nil {
		return Message{}, err
	}
	if err := s.touchLocked(id); err != nil {
		return Message{}, err
	}

	return Message{ID: next, Role: role, Content: text, CreatedAt: now, UpdatedAt: now}, nil
}

// Touch bumps the session's updated_at.
func (s *Store) Touch(id string) error {
	if err := validatePathComponent(id); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.touchLocked(id)
}

func (s *Store) touchLocked(id string) error {
	path := filepath.Join(SessionDir(s.root, id), sessionFile)
	rec, err := readJSON[sessionRecord](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return err
	}
	rec.UpdatedAt = NewTimestamp(s.now())
	return writeJSONAtomic(path, rec)
}

// writeJSONAtomic replaces path with v encoded as indented JSON. Readers see
// either the old or the new file, never a partial write.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return fsutil.WriteFileAtomic(path, data, 0600)
}
