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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// On-disk layout:
//
//	<root>/
//	  session_<id>/
//	    session.json
//	    agents/
//	      agent_<agent-key>/
//	        agent.json
//	        messages/
//	          message_<n>.json
const (
	sessionDirPrefix = "session_"
	agentDirPrefix   = "agent_"
	messagePrefix    = "message_"
	messageSuffix    = ".json"

	sessionFile = "session.json"
	agentFile   = "agent.json"
	agentsDir   = "agents"
	messagesDir = "messages"
)

// ErrInvalidPathComponent is returned when an id would escape its directory.
var ErrInvalidPathComponent = errors.New("invalid path component")

func validatePathComponent(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPathComponent)
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPathComponent, s)
	}
	return nil
}

// SessionDir returns the directory holding session id under root.
func SessionDir(root, id string) string {
	return filepath.Join(root, sessionDirPrefix+id)
}

// AgentDir returns the directory for agent key within a session directory.
func AgentDir(sessionDir, agentKey string) string {
	return filepath.Join(sessionDir, agentsDir, agentDirPrefix+agentKey)
}

// MessagePath returns the file for message n within an agent directory.
func MessagePath(agentDir string, n int) string {
	return filepath.Join(agentDir, messagesDir, messagePrefix+strconv.Itoa(n)+messageSuffix)
}

// ParseMessageID extracts n from "message_<n>.json". Zero padding is allowed.
func ParseMessageID(name string) (int, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, messagePrefix) || !strings.HasSuffix(base, messageSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, messagePrefix), messageSuffix)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func sessionIDFromDir(name string) (string, bool) {
	if !strings.HasPrefix(name, sessionDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, sessionDirPrefix)
	return id, id != ""
}

// findAgentDir returns the session's agent directory. When several exist the
// lexically first one is used so the choice is stable.
func findAgentDir(sessionDir string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(sessionDir, agentsDir))
	if err != nil {
		return "", false
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), agentDirPrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return filepath.Join(sessionDir, agentsDir, names[0]), true
}

type messageFile struct {
	id   int
	path string
}

// listMessageFiles returns message files ordered by numeric id. Files whose
// name does not carry a valid id are ignored.
func listMessageFiles(agentDir string) []messageFile {
	entries, err := os.ReadDir(filepath.Join(agentDir, messagesDir))
	if err != nil {
		return nil
	}
	files := make([]messageFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ParseMessageID(e.Name())
		if !ok {
			continue
		}
		files = append(files, messageFile{id: id, path: filepath.Join(agentDir, messagesDir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })
	return files
}

// FormatSize renders a byte count as B, KB or MB using integer division.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%dKB", n/1024)
	default:
		return fmt.Sprintf("%dMB", n/(1024*1024))
	}
}

// jsonSize sums the sizes of all .json files below dir.
func jsonSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
