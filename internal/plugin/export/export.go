// Package export is a built-in plugin that writes every generated prompt
// to a markdown file next to the character profile it came from.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/plugin"
)

const hookName = "prompt-export"

// Plugin writes <dir>/<session id>.md on prompt_generated.
type Plugin struct {
	dir string
	now func() time.Time
	api plugin.API
}

// New returns an export plugin writing into dir.
func New(dir string) *Plugin {
	return &Plugin{dir: dir, now: time.Now}
}

func (p *Plugin) ID() string      { return hookName }
func (p *Plugin) Name() string    { return "Prompt export" }
func (p *Plugin) Version() string { return "1.0" }

func (p *Plugin) Init(_ context.Context, api plugin.API) error {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	p.api = api
	api.Hooks.On(hooks.EventPromptGenerated, hookName, p.handle)
	api.Log.Info().Str("dir", p.dir).Msg("exporting generated prompts")
	return nil
}

func (p *Plugin) Close() error {
	if p.api.Hooks != nil {
		p.api.Hooks.Off(hooks.EventPromptGenerated, hookName)
	}
	return nil
}

func (p *Plugin) handle(ctx context.Context, payload hooks.Payload) error {
	text, _ := payload.Data["prompt"].(string)
	if payload.SessionID == "" || strings.TrimSpace(text) == "" {
		return nil
	}

	var profile string
	if p.api.Sessions != nil {
		sess, ok, err := p.api.Sessions.Session(ctx, payload.SessionID)
		if err != nil {
			p.api.Log.Warn().Err(err).Str("session", payload.SessionID).Msg("profile lookup failed")
		} else if ok {
			profile = sess.Profile.FullText()
		}
	}

	path, err := p.write(payload.SessionID, render(payload.SessionID, p.now(), profile, text))
	if err != nil {
		return err
	}
	p.api.Log.Debug().Str("session", payload.SessionID).Str("path", path).Msg("prompt exported")
	return nil
}

// Path is where the prompt for sessionID is written.
func (p *Plugin) Path(sessionID string) string {
	return filepath.Join(p.dir, filepath.Base(sessionID)+".md")
}

// write replaces the file atomically so readers never see half a prompt.
func (p *Plugin) write(sessionID, content string) (string, error) {
	path := p.Path(sessionID)
	tmp, err := os.CreateTemp(p.dir, ".export-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

func render(sessionID string, at time.Time, profile, prompt string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Character prompt\n\n")
	fmt.Fprintf(&sb, "- session: %s\n- generated: %s\n\n", sessionID, at.UTC().Format(time.RFC3339))
	if profile != "" {
		fmt.Fprintf(&sb, "## Profile\n\n%s\n\n", profile)
	}
	fmt.Fprintf(&sb, "## Prompt\n\n%s\n", strings.TrimSpace(prompt))
	return sb.String()
}
