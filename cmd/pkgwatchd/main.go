package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "pkgwatchd",
		Usage:   "package index scan-and-report daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "feed-url",
			Usage:   "package index RSS feed of newest releases",
			Value:   "https://pypi.org/rss/updates.xml",
			EnvVars: []string{"PKGWATCH_FEED_URL"},
		},
		&cli.StringFlag{
			Name:    "inspector-url",
			Usage:   "base URL of the package inspector UI",
			Value:   "https://inspector.pypi.io",
			EnvVars: []string{"PKGWATCH_INSPECTOR_URL"},
		},
		&cli.StringFlag{
			Name:     "scan-api-url",
			Usage:    "base URL of the content-scanning service",
			Required: true,
			EnvVars:  []string{"PKGWATCH_SCAN_API_URL"},
		},
		&cli.StringFlag{
			Name:    "scan-token-url",
			Usage:   "OAuth token endpoint for the scan service (empty disables auth)",
			EnvVars: []string{"PKGWATCH_SCAN_TOKEN_URL"},
		},
		&cli.StringFlag{
			Name:    "scan-audience",
			EnvVars: []string{"PKGWATCH_SCAN_AUDIENCE"},
		},
		&cli.StringFlag{
			Name:    "scan-client-id",
			EnvVars: []string{"PKGWATCH_SCAN_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "scan-client-secret",
			EnvVars: []string{"PKGWATCH_SCAN_CLIENT_SECRET"},
		},
		&cli.StringFlag{
			Name:    "scan-username",
			EnvVars: []string{"PKGWATCH_SCAN_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "scan-password",
			EnvVars: []string{"PKGWATCH_SCAN_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "scan-rate-limit",
			Usage:   "max scan submissions per second to the scan service",
			Value:   5,
			EnvVars: []string{"PKGWATCH_SCAN_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis for checkpoint and dedup state; empty runs in-memory only",
			EnvVars: []string{"PKGWATCH_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "rules-file",
			Usage:   "YAML rule/threshold config; empty uses built-in defaults",
			EnvVars: []string{"PKGWATCH_RULES_FILE"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Value:   60 * time.Second,
			EnvVars: []string{"PKGWATCH_POLL_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "concurrent release workers per cycle",
			Value:   4,
			EnvVars: []string{"PKGWATCH_CONCURRENCY"},
		},
		&cli.DurationFlag{
			Name:    "dedup-retention",
			Usage:   "how long reported-release records are kept",
			Value:   14 * 24 * time.Hour,
			EnvVars: []string{"PKGWATCH_DEDUP_RETENTION"},
		},
		&cli.StringFlag{
			Name:    "chat-webhook-url",
			Usage:   "incoming webhook for flagged-release alerts",
			EnvVars: []string{"PKGWATCH_CHAT_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "logs-webhook-url",
			Usage:   "incoming webhook for per-cycle scan summaries",
			EnvVars: []string{"PKGWATCH_LOGS_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "chat-mention",
			Usage:   "mention string prepended to alerts, e.g. a role ping",
			EnvVars: []string{"PKGWATCH_CHAT_MENTION"},
		},
		&cli.IntFlag{
			Name:    "chat-max-body",
			Usage:   "character budget for the alert message body",
			Value:   4000,
			EnvVars: []string{"PKGWATCH_CHAT_MAX_BODY"},
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP relay for email reports; empty disables email",
			EnvVars: []string{"PKGWATCH_SMTP_HOST"},
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			EnvVars: []string{"PKGWATCH_SMTP_PORT"},
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			EnvVars: []string{"PKGWATCH_SMTP_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			EnvVars: []string{"PKGWATCH_SMTP_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "mail-from",
			EnvVars: []string{"PKGWATCH_MAIL_FROM"},
		},
		&cli.StringSliceFlag{
			Name:    "mail-recipients",
			EnvVars: []string{"PKGWATCH_MAIL_RECIPIENTS"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"PKGWATCH_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			logger.Info("setting up trace exporter", "endpoint", ep)
			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to create trace exporter: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					logger.Error("failed to shutdown trace exporter", "err", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("pkgwatchd"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),
					attribute.String("environment", os.Getenv("ENVIRONMENT")),
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		srv, err := NewServer(configFromFlags(cctx, logger))
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run monitor service: %w", err)
		}
		return nil
	},
}
