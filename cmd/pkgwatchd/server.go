package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/mantisec/pkgwatch/monitor"
	"github.com/mantisec/pkgwatch/monitor/checkpoint"
	"github.com/mantisec/pkgwatch/monitor/dedup"
	"github.com/mantisec/pkgwatch/monitor/feed"
	"github.com/mantisec/pkgwatch/monitor/notify"
	"github.com/mantisec/pkgwatch/monitor/scanner"
	"github.com/mantisec/pkgwatch/pkg/robusthttp"
)

type Config struct {
	Logger *slog.Logger

	FeedURL      string
	InspectorURL string

	ScanAPIURL    string
	ScanAuth      scanner.AuthConfig
	ScanRateLimit int

	RedisURL       string
	RulesFile      string
	PollInterval   time.Duration
	Concurrency    int
	DedupRetention time.Duration

	ChatWebhookURL string
	LogsWebhookURL string
	ChatMention    string
	ChatMaxBody    int

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	MailFrom       string
	MailRecipients []string
}

func configFromFlags(cctx *cli.Context, logger *slog.Logger) Config {
	return Config{
		Logger:       logger,
		FeedURL:      cctx.String("feed-url"),
		InspectorURL: cctx.String("inspector-url"),
		ScanAPIURL:   cctx.String("scan-api-url"),
		ScanAuth: scanner.AuthConfig{
			TokenURL:     cctx.String("scan-token-url"),
			Audience:     cctx.String("scan-audience"),
			ClientID:     cctx.String("scan-client-id"),
			ClientSecret: cctx.String("scan-client-secret"),
			Username:     cctx.String("scan-username"),
			Password:     cctx.String("scan-password"),
		},
		ScanRateLimit:  cctx.Int("scan-rate-limit"),
		RedisURL:       cctx.String("redis-url"),
		RulesFile:      cctx.String("rules-file"),
		PollInterval:   cctx.Duration("poll-interval"),
		Concurrency:    cctx.Int("concurrency"),
		DedupRetention: cctx.Duration("dedup-retention"),
		ChatWebhookURL: cctx.String("chat-webhook-url"),
		LogsWebhookURL: cctx.String("logs-webhook-url"),
		ChatMention:    cctx.String("chat-mention"),
		ChatMaxBody:    cctx.Int("chat-max-body"),
		SMTPHost:       cctx.String("smtp-host"),
		SMTPPort:       cctx.Int("smtp-port"),
		SMTPUsername:   cctx.String("smtp-username"),
		SMTPPassword:   cctx.String("smtp-password"),
		MailFrom:       cctx.String("mail-from"),
		MailRecipients: cctx.StringSlice("mail-recipients"),
	}
}

type Server struct {
	logger *slog.Logger
	engine *monitor.Engine
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rules := monitor.DefaultRuleConfig()
	if config.RulesFile != "" {
		loaded, err := monitor.LoadRuleConfig(config.RulesFile)
		if err != nil {
			// startup-fatal: never run with a partial rule config
			return nil, err
		}
		rules = loaded
		logger.Info("loaded rule config", "path", config.RulesFile, "rules", len(rules.Rules), "threshold", rules.Threshold)
	}

	var checkpoints checkpoint.Store
	var tracker dedup.Tracker
	if config.RedisURL != "" {
		cps, err := checkpoint.NewRedisStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis checkpoint store: %w", err)
		}
		checkpoints = cps

		trk, err := dedup.NewRedisTracker(config.RedisURL, config.DedupRetention)
		if err != nil {
			return nil, fmt.Errorf("initializing redis dedup tracker: %w", err)
		}
		tracker = trk
	} else {
		logger.Info("redis not configured, checkpoint and dedup state will not survive restarts")
		checkpoints = checkpoint.NewMemStore()
		tracker = dedup.NewMemTracker(50_000, config.DedupRetention)
	}

	feedClient := robusthttp.NewClient(robusthttp.WithLogger(logger.With("subsystem", "feed")))
	source := feed.NewRSSSource(config.FeedURL, config.InspectorURL, feedClient)

	var limiter *rate.Limiter
	if config.ScanRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.ScanRateLimit), 1)
	}
	// scan attempts are accounted by the engine, not the transport
	scanClient := robusthttp.NewClient(
		robusthttp.WithLogger(logger.With("subsystem", "scanner")),
		robusthttp.WithRetryPolicy(robusthttp.NoRetryPolicy),
	)
	scan := scanner.NewHTTPClient(config.ScanAPIURL, scanClient, limiter, config.ScanAuth)

	webhookClient := robusthttp.NewClient(robusthttp.WithLogger(logger.With("subsystem", "webhook")))

	var chat monitor.Channel
	if config.ChatWebhookURL != "" {
		chat = notify.NewWebhookChannel(config.ChatWebhookURL, config.ChatMention, config.ChatMaxBody, webhookClient)
	}

	var email monitor.Channel
	if config.SMTPHost != "" && config.MailFrom != "" && len(config.MailRecipients) > 0 {
		email = notify.NewMailChannel(
			config.SMTPHost, config.SMTPPort,
			config.SMTPUsername, config.SMTPPassword,
			config.MailFrom, config.MailRecipients,
		)
	}
	if chat == nil && email == nil {
		return nil, fmt.Errorf("no output channel configured: need a chat webhook or SMTP settings")
	}

	engine := &monitor.Engine{
		Logger:      logger,
		Source:      source,
		Scanner:     scan,
		Checkpoints: checkpoints,
		Dedup:       tracker,
		Dispatcher: &monitor.Dispatcher{
			Logger: logger,
			Dedup:  tracker,
			Chat:   chat,
			Email:  email,
		},
		Rules:        rules,
		PollInterval: config.PollInterval,
		Concurrency:  int64(config.Concurrency),
	}

	if config.LogsWebhookURL != "" {
		summary := notify.NewWebhookChannel(config.LogsWebhookURL, "", config.ChatMaxBody, webhookClient)
		engine.SummaryFunc = func(ctx context.Context, scanned []string) {
			if err := summary.SendCycleSummary(ctx, scanned); err != nil {
				logger.Error("failed to post cycle summary", "err", err)
			}
		}
	}

	return &Server{
		logger: logger,
		engine: engine,
	}, nil
}

func (s *Server) Run(ctx context.Context) error {
	return s.engine.Run(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","cursor":%q}`, s.engine.Cursor())
	})
	return http.ListenAndServe(listen, mux)
}
