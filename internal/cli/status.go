package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/soyeahso/promptsmith/internal/config"
	"github.com/soyeahso/promptsmith/internal/gateway"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show promptsmith status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "promptsmith %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			printConfigSummary(out, cfg)

			if remote {
				st, err := fetchStatus(cmd.Context(), cfg.Gateway)
				if err != nil {
					fmt.Fprintf(out, "\nGateway: unreachable (%v)\n", err)
					return nil
				}
				fmt.Fprintf(out, "\nGateway: %s version=%s uptime=%s\n",
					st.Status, st.Version, time.Duration(st.UptimeSeconds)*time.Second)
				fmt.Fprintf(out, "         sessions=%d connections=%d pendingEvaluations=%d configured=%v\n",
					st.Sessions, st.Connections, st.PendingEvaluations, st.Configured)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "also query the running gateway's /api/status")
	return cmd
}

func printConfigSummary(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Gateway: port=%d bind=%s tls=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled)

	fmt.Fprintf(out, "Session: store=%s idle=%dm\n", cfg.Session.Store, cfg.Session.IdleMinutes)

	c := cfg.Conversation
	fmt.Fprintf(out, "Dialog:  language=%s minTraits=%d minTurns=%d evaluateEvery=%d\n",
		c.Language, c.MinTraits, c.MinTurns, c.EvaluateEvery)

	fmt.Fprintf(out, "Eval:    workers=%d queue=%d timeout=%ds\n",
		cfg.Evaluator.Workers, cfg.Evaluator.QueueSize, cfg.Evaluator.TimeoutSeconds)

	if cfg.LLM.Default != nil {
		def := llm.FromDefaultProvider(cfg.LLM.Default).Masked()
		fmt.Fprintf(out, "LLM:     default %s model=%s key=%s\n", def.APIType, def.Model, def.APIKey)
	} else {
		fmt.Fprintln(out, "LLM:     (no default, clients must send api_config)")
	}

	if cfg.Export.Enabled {
		dir := cfg.Export.Dir
		if dir == "" {
			dir = filepath.Join(paths.Data, "prompts")
		}
		fmt.Fprintf(out, "Export:  %s\n", dir)
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}

func fetchStatus(ctx context.Context, gw config.GatewayConfig) (gateway.StatusResponse, error) {
	var st gateway.StatusResponse

	scheme := "http"
	if gw.TLS.Enabled {
		scheme = "https"
	}
	host := "127.0.0.1"
	if gw.Bind == "custom" && gw.CustomBindHost != "" {
		host = gw.CustomBindHost
	}
	u := scheme + "://" + net.JoinHostPort(host, strconv.Itoa(gw.Port)) + "/api/status"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("%s returned %s", u, resp.Status)
	}
	return st, json.NewDecoder(resp.Body).Decode(&st)
}
