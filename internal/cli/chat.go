package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/promptsmith/internal/config"
	"github.com/soyeahso/promptsmith/internal/gateway"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		serverURL string
		patch     apiFlags
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interview session against a running gateway",
		Long: "Connects to the gateway WebSocket and relays what you type.\n\n" +
			"Commands: /yes and /no answer a confirmation, /generate writes the prompt now,\n" +
			"/continue keeps talking, /end closes the session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				cfg, err := config.Load(paths.Config)
				if err != nil {
					return err
				}
				serverURL = chatURL(cfg.Gateway)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", serverURL, err)
			}
			defer conn.Close()
			log.Debug().Str("url", serverURL).Msg("connected")

			return runChat(ctx, conn, os.Stdin, cmd.OutOrStdout(), patch.patch(cmd))
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "gateway WebSocket URL (default from config)")
	patch.register(cmd)
	return cmd
}

// apiFlags are the optional api_config fields settable from the command
// line. Only flags the user actually set are sent.
type apiFlags struct {
	apiType string
	apiKey  string
	baseURL string
	model   string
	nsfw    bool
}

func (f *apiFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.apiType, "api-type", "", "provider (openai, gemini)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", os.Getenv("PROMPTSMITH_API_KEY"), "provider API key (env PROMPTSMITH_API_KEY)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "openai-compatible base URL")
	cmd.Flags().StringVar(&f.model, "model", "", "model name")
	cmd.Flags().BoolVar(&f.nsfw, "nsfw", false, "enable mature content")
}

func (f *apiFlags) patch(cmd *cobra.Command) *llm.APIConfigPatch {
	var p llm.APIConfigPatch
	set := false
	str := func(name string, v string, dst **string) {
		if cmd.Flags().Changed(name) || (name == "api-key" && v != "") {
			*dst = &v
			set = true
		}
	}
	str("api-type", f.apiType, &p.APIType)
	str("api-key", f.apiKey, &p.APIKey)
	str("base-url", f.baseURL, &p.BaseURL)
	str("model", f.model, &p.Model)
	if cmd.Flags().Changed("nsfw") {
		nsfw := f.nsfw
		p.NSFWMode = &nsfw
		set = true
	}
	if !set {
		return nil
	}
	return &p
}

// chatURL derives the WebSocket endpoint of a local gateway.
func chatURL(gw config.GatewayConfig) string {
	host := "127.0.0.1"
	if gw.Bind == "custom" && gw.CustomBindHost != "" {
		host = gw.CustomBindHost
	}
	scheme := "ws"
	if gw.TLS.Enabled {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(gw.Port)), Path: "/ws/prompt"}
	return u.String()
}

// runChat pumps stdin lines to the gateway and renders its messages until
// the session ends, the server goes away, or input runs out.
func runChat(ctx context.Context, conn *websocket.Conn, in io.Reader, out io.Writer, patch *llm.APIConfigPatch) error {
	r := newChatRenderer(out)
	done := make(chan error, 1)
	go func() {
		for {
			var env gateway.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				done <- err
				return
			}
			if r.render(env) {
				done <- nil
				return
			}
		}
	}()

	send := func(msgType string, payload any) error {
		env, err := gateway.NewEnvelope(msgType, payload)
		if err != nil {
			return err
		}
		return conn.WriteJSON(env)
	}

	if patch != nil {
		if err := send(gateway.TypeAPIConfig, patch); err != nil {
			return err
		}
	}
	if err := send(gateway.TypeStartSession, nil); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			send(gateway.TypeEndSession, nil)
			return nil
		case err := <-done:
			if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("connection lost: %w", err)
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				send(gateway.TypeEndSession, nil)
				return <-done
			}
			msgType, payload, valid := parseChatInput(line)
			if !valid {
				if strings.HasPrefix(strings.TrimSpace(line), "/") {
					r.notice("unknown command " + strings.TrimSpace(line))
				}
				continue
			}
			if err := send(msgType, payload); err != nil {
				return err
			}
		}
	}
}

// parseChatInput maps a line of user input to an inbound message. Blank
// lines and unknown slash commands are not sent.
func parseChatInput(line string) (string, any, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return "", nil, false
	}
	if !strings.HasPrefix(text, "/") {
		return gateway.TypeUserResponse, gateway.UserResponse{Answer: text}, true
	}
	switch strings.ToLower(text) {
	case "/yes", "/y":
		return gateway.TypeUserConfirmation, gateway.UserConfirmation{Confirm: true}, true
	case "/no", "/n":
		return gateway.TypeUserConfirmation, gateway.UserConfirmation{Confirm: false}, true
	case "/generate":
		return gateway.TypeGeneratePrompt, nil, true
	case "/continue":
		return gateway.TypeContinueConversation, nil, true
	case "/end", "/quit", "/exit":
		return gateway.TypeEndSession, nil, true
	}
	return "", nil, false
}

// chatRenderer prints gateway messages. Streamed chunks of one kind are
// joined on a line; any other message starts a new one.
type chatRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	streaming string

	assistant func(a ...any) string
	prompt    func(a ...any) string
	system    func(a ...any) string
	eval      func(a ...any) string
	alert     func(a ...any) string
	failure   func(a ...any) string
}

func newChatRenderer(out io.Writer) *chatRenderer {
	return &chatRenderer{
		out:       out,
		assistant: color.New(color.FgCyan).SprintFunc(),
		prompt:    color.New(color.FgGreen).SprintFunc(),
		system:    color.New(color.FgYellow).SprintFunc(),
		eval:      color.New(color.FgMagenta).SprintFunc(),
		alert:     color.New(color.FgYellow, color.Bold).SprintFunc(),
		failure:   color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

// render prints env and reports whether the session is over.
func (r *chatRenderer) render(env gateway.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Type {
	case gateway.TypeAIResponseChunk, gateway.TypeFinalPromptChunk:
		var p gateway.ChunkPayload
		if env.Decode(&p) != nil {
			return false
		}
		if r.streaming != env.Type {
			r.endStream()
			r.streaming = env.Type
		}
		paint := r.assistant
		if env.Type == gateway.TypeFinalPromptChunk {
			paint = r.prompt
		}
		fmt.Fprint(r.out, paint(p.Chunk))
		return false
	}

	r.endStream()
	switch env.Type {
	case gateway.TypeAPIConfigResult:
		var p gateway.ConfigResult
		env.Decode(&p)
		if p.Success {
			fmt.Fprintln(r.out, r.system(p.Message))
		} else {
			fmt.Fprintln(r.out, r.failure(p.Message))
		}
	case gateway.TypeSystemMessage, gateway.TypeConversationContinued, gateway.TypePromptGenerated:
		fmt.Fprintln(r.out, r.system(r.message(env)))
	case gateway.TypeEvaluationUpdate:
		var p gateway.EvaluationUpdate
		env.Decode(&p)
		line := p.Message
		if p.EvaluationScore != nil {
			line += fmt.Sprintf(" (score %.0f)", *p.EvaluationScore)
		}
		fmt.Fprintln(r.out, r.eval(line))
		for _, s := range p.Suggestions {
			fmt.Fprintln(r.out, r.eval("  - "+s))
		}
	case gateway.TypeConfirmationRequest:
		var p gateway.ConfirmationRequest
		env.Decode(&p)
		fmt.Fprintln(r.out, r.alert(p.Reason+" [/yes, /no]"))
	case gateway.TypeError:
		fmt.Fprintln(r.out, r.failure(r.message(env)))
	case gateway.TypeSessionEnd:
		fmt.Fprintln(r.out, r.system(r.message(env)))
		return true
	default:
		fmt.Fprintln(r.out, r.system(fmt.Sprintf("[%s] %s", env.Type, env.Payload)))
	}
	return false
}

func (r *chatRenderer) notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endStream()
	fmt.Fprintln(r.out, r.failure(text))
}

func (r *chatRenderer) endStream() {
	if r.streaming != "" {
		fmt.Fprintln(r.out)
		r.streaming = ""
	}
}

func (r *chatRenderer) message(env gateway.Envelope) string {
	var p gateway.MessagePayload
	env.Decode(&p)
	return p.Message
}
