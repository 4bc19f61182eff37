package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/soyeahso/promptsmith/internal/config"
)

// DefaultCommandTimeout bounds a shell hook without its own timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler runs command through the shell with the payload as JSON
// on stdin. Non-zero exits and timeouts are returned as errors.
func CommandHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := shellCommand(ctx, command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(cmd.Environ(),
			"PROMPTSMITH_EVENT="+p.Event,
			"PROMPTSMITH_SESSION_ID="+p.SessionID,
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		// children of the shell may hold stderr open after it is killed
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("hook %q timed out after %s", command, timeout)
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", command, err)
		}
		return nil
	}
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}

// RegisterCommands adds a CommandHandler for every configured hook entry.
// It returns the number registered.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	byEvent := map[string][]config.HookEntry{
		EventSessionStart:       cfg.SessionStart,
		EventSessionEnd:         cfg.SessionEnd,
		EventPromptGenerated:    cfg.PromptGenerated,
		EventEvaluationComplete: cfg.EvaluationComplete,
		EventGatewayStart:       cfg.GatewayStart,
		EventGatewayStop:        cfg.GatewayStop,
	}

	n := 0
	for _, event := range AllEvents {
		for i, entry := range byEvent[event] {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			name := fmt.Sprintf("config.%s[%d]", event, i)
			m.On(event, name, CommandHandler(entry.Command, time.Duration(entry.Timeout)*time.Millisecond))
			n++
		}
	}
	return n
}
