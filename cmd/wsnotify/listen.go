package main

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sonirico/wsnotify"
	"github.com/sonirico/wsnotify/internal/config"
)

const listenExample = `# Listen using a config file
wsnotify listen --config wsnotify.toml

# Listen to a local server, only for alerts
wsnotify listen --url http://localhost:8080/ws --token $TOKEN --types alerts`

type listenOptions struct {
	configPath  string
	url         string
	token       string
	types       []string
	logLevel    string
	metricsAddr string
}

func newListenCmd() *cobra.Command {
	opts := &listenOptions{}

	cmd := &cobra.Command{
		Use:     "listen",
		Short:   "Stream notifications to stdout as JSON lines",
		Long:    "Connects to the notification server, keeps the connection alive and prints every event as one JSON object per line.",
		Example: listenExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(opts.configPath, opts.overrides(cmd))
			if err != nil {
				return err
			}
			return runListen(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&opts.url, "url", "", "server address, ws(s):// or http(s)://")
	flags.StringVar(&opts.token, "token", "", "bearer token sent as query parameter")
	flags.StringSliceVar(&opts.types, "types", nil, "notification types to subscribe to")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// overrides returns the explicitly set flags as config keys.
func (o *listenOptions) overrides(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	flags := cmd.Flags()

	if flags.Changed("url") {
		out["server.url"] = o.url
	}
	if flags.Changed("token") {
		out["server.token"] = o.token
	}
	if flags.Changed("types") {
		out["subscribe"] = o.types
	}
	if flags.Changed("log-level") {
		out["logging.level"] = o.logLevel
	}
	if flags.Changed("metrics-addr") {
		out["metrics.addr"] = o.metricsAddr
	}
	return out
}

func runListen(ctx context.Context, cfg *config.Config, out io.Writer) error {
	zl, err := newLogger(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "cannot build logger")
	}
	defer func() { _ = zl.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := wsnotify.NewPrometheusMetrics(reg, cliName)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr, reg, zl)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client := wsnotify.New(clientConfig(cfg, wsnotify.NewZapLogger(zl), metrics))
	zl.Info("starting listener", zap.String("client_id", client.ID()), zap.Strings("types", cfg.Subscribe))

	events, err := client.Stream(ctx, 64)
	if err != nil {
		return err
	}

	return printEvents(events, out, func() {
		if len(cfg.Subscribe) > 0 {
			client.Subscribe(cfg.Subscribe...)
		}
	})
}

func clientConfig(cfg *config.Config, logger wsnotify.Logger, metrics wsnotify.Metrics) wsnotify.Config {
	return wsnotify.Config{
		URL:        cfg.Server.URL,
		Token:      cfg.Server.Token,
		TokenParam: cfg.Server.TokenParam,
		Backoff: wsnotify.BackoffPolicy{
			Base: cfg.Reconnect.BaseDelay,
			Max:  cfg.Reconnect.MaxDelay,
		},
		MaxAttempts:       cfg.Reconnect.MaxAttempts,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		PongTimeout:       cfg.Heartbeat.PongTimeout,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Server.HandshakeTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Server.InsecureSkipVerify, //nolint:gosec
			},
		},
		Logger:  logger,
		Metrics: metrics,
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

type eventLine struct {
	Time  string           `json:"time"`
	Kind  string           `json:"kind"`
	Data  wsnotify.Payload `json:"data,omitempty"`
	Code  int              `json:"code,omitempty"`
	Error string           `json:"error,omitempty"`
}

// printEvents writes one JSON line per event until events is closed. It
// returns the retry exhaustion error, if that is how the stream ended.
func printEvents(events <-chan wsnotify.Event, out io.Writer, onConnected func()) error {
	enc := json.NewEncoder(out)

	var last error
	for e := range events {
		line := eventLine{
			Time: time.Now().UTC().Format(time.RFC3339Nano),
			Kind: e.Kind.String(),
			Data: e.Payload,
			Code: e.Code,
		}
		if e.Err != nil {
			line.Error = e.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return errors.Wrap(err, "cannot write event")
		}

		last = e.Err
		if e.Kind == wsnotify.EventConnected && onConnected != nil {
			onConnected()
		}
	}

	if errors.Is(last, wsnotify.ErrMaxAttemptsReached) {
		return last
	}
	return nil
}
