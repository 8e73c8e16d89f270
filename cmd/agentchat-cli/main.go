package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/raezil/agentchat-go/agent"
	"github.com/raezil/agentchat-go/chatui"
	"github.com/raezil/agentchat-go/gemini"
	"github.com/raezil/agentchat-go/hostlink"
	"github.com/raezil/agentchat-go/jsonx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "send":
		code = cmdSend(ctx, os.Args[2:])
	case "chat":
		code = cmdChat(ctx, os.Args[2:])
	case "extract":
		code = cmdExtract(os.Stdin, os.Stdout, os.Stderr)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		code = 2
	}
	stop()
	os.Exit(code)
}

func usage() {
	fmt.Print(`agentchat CLI
Usage:
  agentchat send    [flags] [message...]
  agentchat chat    [flags]
  agentchat extract < payload.txt

Env:
  AGENT_API_KEY      API key for the agent endpoint
  AGENT_ID           default agent
  AGENT_API_URL      override the agent endpoint
  AGENT_USER_ID      user ID sent with each message
  AGENT_ORIGIN       URL of the embedding page, copied into error reports
  AGENT_PROVIDER     http (default) or gemini
  GEMINI_API_KEY     key for the gemini provider
  GEMINI_MODEL       model for the gemini provider
  AGENT_HOST_URL     forward errors to this host webhook
  AGENT_HOST_SECRET  HS256 secret for signing forwarded errors
  AGENT_JOURNAL_DSN  also journal errors to this PostgreSQL database
` + "\n")
}

// commonFlags are shared by send and chat.
type commonFlags struct {
	agentID  *string
	session  *string
	endpoint *string
	ua       *string
	timeout  *time.Duration
	verbose  *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		agentID:  fs.String("agent", "", "agent ID (overrides AGENT_ID)"),
		session:  fs.String("session", "", "session ID (default: new session)"),
		endpoint: fs.String("endpoint", "", "override agent endpoint (for testing)"),
		ua:       fs.String("ua", "", "custom user-agent"),
		timeout:  fs.Duration("timeout", 2*time.Minute, "per-message timeout"),
		verbose:  fs.Bool("v", false, "debug logging"),
	}
}

// app bundles what a command needs; close tears it down in reverse order.
type app struct {
	client *agent.Client
	relay  *hostlink.Relay
	logger *slog.Logger
	closer []func()
}

func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

func newApp(ctx context.Context, cfg agent.Config, f commonFlags) (*app, error) {
	level := slog.LevelWarn
	if *f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	a := &app{logger: logger}

	relayOpts := []hostlink.RelayOption{hostlink.WithLogger(logger)}
	if cfg.Embedded() {
		forwarders, err := a.hostForwarders(ctx, cfg)
		if err != nil {
			return nil, err
		}
		for _, f := range forwarders {
			relayOpts = append(relayOpts, hostlink.WithForwarder(f))
		}
	}
	a.relay = hostlink.NewRelay(relayOpts...)
	a.closer = append(a.closer, a.relay.Close)

	opts := cfg.Options()
	opts = append(opts, agent.WithReporter(a.relay), agent.WithLogger(logger))
	if *f.agentID != "" {
		opts = append(opts, agent.WithAgentID(*f.agentID))
	}
	if *f.session != "" {
		opts = append(opts, agent.WithSessionID(*f.session))
	}
	if *f.endpoint != "" {
		opts = append(opts, agent.WithEndpoint(*f.endpoint))
	}
	if *f.ua != "" {
		opts = append(opts, agent.WithUserAgent(*f.ua))
	}
	if cfg.Provider == "gemini" {
		tr, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("gemini: %w", err)
		}
		opts = append(opts, agent.WithTransport(tr))
	}
	a.client = agent.NewClient(cfg.APIKey, opts...)

	logger.Info("effective config",
		"endpoint", a.client.Endpoint(),
		"provider", cfg.Provider,
		"session_id", a.client.SessionID(),
		"embedded", cfg.Embedded(),
	)
	return a, nil
}

// hostForwarders builds the error destinations named by cfg. Opened journals
// are registered for close.
func (a *app) hostForwarders(ctx context.Context, cfg agent.Config) ([]hostlink.Forwarder, error) {
	var out []hostlink.Forwarder
	if cfg.HostURL != "" {
		out = append(out, hostlink.NewWebhook(cfg.HostURL, cfg.HostSecret, nil))
	}
	if cfg.JournalDSN != "" {
		jctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		journal, err := hostlink.OpenJournal(jctx, cfg.JournalDSN)
		cancel()
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, func() { journal.Close() })
		out = append(out, journal)
	}
	return out, nil
}

func cmdSend(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	msg := fs.String("m", "", "message text (default: remaining arguments)")
	assets := fs.String("assets", "", "comma-separated asset IDs")
	common := registerCommon(fs)
	fs.Parse(args)

	text := *msg
	if text == "" {
		text = strings.Join(fs.Args(), " ")
	}

	a, err := newApp(ctx, agent.LoadConfig(os.Getenv), common)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer a.close()

	callCtx, cancel := context.WithTimeout(ctx, *common.timeout)
	defer cancel()
	res := a.client.CallAgent(callCtx, agent.AgentRequest{Message: text, Assets: splitCSV(*assets)})

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if !res.Success {
		return 1
	}
	return 0
}

func cmdChat(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	hostListen := fs.String("host-listen", "", "serve host messages (request_fix) on this address")
	common := registerCommon(fs)
	fs.Parse(args)

	a, err := newApp(ctx, agent.LoadConfig(os.Getenv), common)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer a.close()

	if *hostListen != "" {
		srv := &http.Server{
			Addr:              *hostListen,
			Handler:           a.relay.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("host listener failed", "addr", *hostListen, "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	sender := timeoutSender{client: a.client, timeout: *common.timeout}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		err = chatui.Run(ctx, sender, a.relay, "agentchat · session "+a.client.SessionID())
	} else {
		err = chatui.RunLines(ctx, sender, a.relay, os.Stdin, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// timeoutSender bounds each chat message.
type timeoutSender struct {
	client  *agent.Client
	timeout time.Duration
}

func (s timeoutSender) CallAgent(ctx context.Context, req agent.AgentRequest) agent.AgentResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.CallAgent(ctx, req)
}

func cmdExtract(in io.Reader, out, errOut io.Writer) int {
	b, err := io.ReadAll(in)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	v, err := jsonx.Extract(string(b))
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(out, string(pretty))
	return 0
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
