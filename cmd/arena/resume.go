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
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tradearena/arena/pkg/orchestrator"
	"go.uber.org/zap"
)

var (
	resumeSession     string
	resumeLatest      bool
	resumeMessages    []string
	resumeInteractive bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <agent-id>",
	Short: "Continue a conversation with a trading agent",
	Long: `Continue a conversation with a trading agent.

Without --session or --latest a new session is started. Each message is
recorded as one turn; the agent's tool servers are launched for the turn
and kept or closed according to orchestrator.tool_lifetime.

Examples:
  arena resume agent_1a2b3c4d --message "check CRO liquidity"
  arena resume agent_1a2b3c4d --latest --message "and now?"
  arena resume agent_1a2b3c4d --session 3f0c9c1e-... --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeSession, "session", "", "session to continue")
	resumeCmd.Flags().BoolVar(&resumeLatest, "latest", false, "continue the agent's most recent session")
	resumeCmd.Flags().StringArrayVarP(&resumeMessages, "message", "m", nil, "user message to record (repeatable)")
	resumeCmd.Flags().BoolVarP(&resumeInteractive, "interactive", "i", false, "read messages from stdin, one per line")
	resumeCmd.MarkFlagsMutuallyExclusive("session", "latest")
}

func runResume(cmd *cobra.Command, args []string) error {
	agentID := args[0]

	a, err := newApp(config)
	if err != nil {
		return err
	}
	defer a.close()

	o, err := a.orchestrator(config)
	if err != nil {
		return err
	}
	defer o.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Agents.Watch {
		go func() {
			if err := a.registry.Watch(ctx); err != nil {
				a.logger.Warn("Agent registry watch stopped", zap.Error(err))
			}
		}()
	}

	sessionID := resumeSession
	if resumeLatest {
		summary, ok := a.store.FindSessionByAgent(agentID)
		if !ok {
			return fmt.Errorf("no session found for agent %s", agentID)
		}
		sessionID = summary.SessionID
	}

	messages := resumeMessages
	if !resumeInteractive && len(messages) == 0 {
		// A bare resume still opens the session and reports its tools.
		messages = []string{""}
	}

	for _, text := range messages {
		if sessionID, err = runTurn(ctx, o, agentID, sessionID, text, os.Stdout); err != nil {
			return err
		}
	}

	if resumeInteractive {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text != "" {
				if sessionID, err = runTurn(ctx, o, agentID, sessionID, text, os.Stdout); err != nil {
					return err
				}
			}
			if ctx.Err() != nil {
				break
			}
			fmt.Print("> ")
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
	return nil
}

// runTurn records one user message and returns the session it landed in.
// An empty message records nothing.
func runTurn(ctx context.Context, o *orchestrator.Orchestrator, agentID, sessionID, text string, w io.Writer) (string, error) {
	err := o.Run(ctx, orchestrator.Request{AgentID: agentID, SessionID: sessionID}, func(ctx context.Context, turn *orchestrator.Turn) error {
		sessionID = turn.SessionID
		if turn.Created {
			fmt.Fprintf(w, "Started session %s\n", turn.SessionID)
		}
		model := ""
		if turn.Client != nil {
			model = turn.Client.Model()
		}
		fmt.Fprintf(w, "Agent %s (%s, %s) via %s, %d tools\n",
			turn.Config.Name, turn.Config.Provider, model, turn.Source, len(turn.Tools))

		if text == "" {
			return nil
		}
		msg, err := turn.Record("user", text)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Recorded message %d in session %s\n", msg.ID, turn.SessionID)
		return nil
	})
	return sessionID, err
}
