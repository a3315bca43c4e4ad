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
package manager

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var placeholderPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// Substitute replaces ${NAME} with the value of NAME in the process
// environment. Unset variables are left as the literal placeholder.
func Substitute(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// Resolve returns a copy of the descriptor with placeholders substituted in
// the command, every argument and every env value.
func (s ServerConfig) Resolve() ServerConfig {
	out := ServerConfig{
		Command: Substitute(s.Command),
		Timeout: s.Timeout,
	}
	if s.Args != nil {
		out.Args = make([]string, len(s.Args))
		for i, arg := range s.Args {
			out.Args[i] = Substitute(arg)
		}
	}
	if s.Env != nil {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = Substitute(v)
		}
	}
	return out
}

// Unresolved lists the placeholder names still present in the descriptor.
func (s ServerConfig) Unresolved() []string {
	seen := make(map[string]struct{})
	collect := func(v string) {
		for _, m := range placeholderPattern.FindAllStringSubmatch(v, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	collect(s.Command)
	for _, arg := range s.Args {
		collect(arg)
	}
	for _, v := range s.Env {
		collect(v)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseCredentials parses KEY=VALUE lines. Blank lines and lines starting
// with # are skipped, an optional "export " prefix is accepted, and values
// may be wrapped in matching quotes.
func ParseCredentials(blob string) (map[string]string, error) {
	creds := make(map[string]string)
	var errs []error

	scanner := bufio.NewScanner(strings.NewReader(blob))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			errs = append(errs, fmt.Errorf("line %d: expected KEY=VALUE", lineNo))
			continue
		}
		creds[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return creds, errors.Join(errs...)
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// LoadCredentials returns the credentials from blob when it is non-blank,
// otherwise from file. A missing file yields no credentials and no error.
func LoadCredentials(blob, file string) (map[string]string, error) {
	if strings.TrimSpace(blob) != "" {
		return ParseCredentials(blob)
	}
	if file == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return map[string]string{}, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return ParseCredentials(string(data))
}

// ApplyCredentials exports credentials into the process environment.
func ApplyCredentials(creds map[string]string) error {
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := os.Setenv(k, creds[k]); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

// populateEnvironment loads and applies credentials once at manager
// construction. Failures are logged; tool servers whose placeholders stay
// unresolved report them at launch.
func populateEnvironment(blob, file string, logger *zap.Logger) {
	if strings.TrimSpace(blob) == "" && file == "" {
		return
	}
	source := "file"
	if strings.TrimSpace(blob) != "" {
		source = "blob"
	}

	creds, err := LoadCredentials(blob, file)
	if err != nil {
		logger.Warn("Problems reading MCP credentials", zap.String("source", source), zap.Error(err))
	}
	if err := ApplyCredentials(creds); err != nil {
		logger.Error("Failed to apply MCP credentials", zap.Error(err))
		return
	}
	if len(creds) > 0 {
		logger.Info("Loaded MCP credentials", zap.String("source", source), zap.Int("count", len(creds)))
	}
}
