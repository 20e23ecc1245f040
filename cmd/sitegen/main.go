package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/server"
)

var CLI struct {
	Config  string `short:"c" help:"Site configuration file path" default:"site.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Drafts bool `short:"D" help:"Include draft pages"`
	} `cmd:"" help:"Build the site once and exit"`

	Serve struct {
		Port   int  `short:"p" help:"Override the dev server port"`
		Drafts bool `short:"D" help:"Include draft pages"`
	} `cmd:"" help:"Build, watch, and serve the site with live reload"`

	Init struct {
		Force bool `help:"Overwrite existing files"`
	} `cmd:"" help:"Scaffold a new site in the current directory"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "build":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		cfg.Build.Drafts = cfg.Build.Drafts || CLI.Build.Drafts
		if err := runBuild(cfg); err != nil {
			slog.Error("build failed", logfields.Error(err))
			os.Exit(1)
		}
	case "serve":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		cfg.Build.Drafts = cfg.Build.Drafts || CLI.Serve.Drafts
		if CLI.Serve.Port != 0 {
			cfg.Serve.Port = CLI.Serve.Port
		}
		if err := runServe(cfg); err != nil && err != context.Canceled {
			slog.Error("serve failed", logfields.Error(err))
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("init failed", logfields.Error(err))
			os.Exit(1)
		}
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(CLI.Config)
}

func runBuild(cfg *config.Config) error {
	hist, err := openHistory(cfg)
	if err != nil {
		slog.Warn("build history unavailable", logfields.Error(err))
	}
	opts := []build.Option{}
	if hist != nil {
		defer hist.Close()
		opts = append(opts, build.WithHistory(hist))
	}

	b := build.New(cfg, opts...)
	report, err := b.Full(context.Background())
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		for _, f := range report.Failures {
			slog.Warn("node failed", logfields.Path(f.Path), logfields.Kind(string(f.Kind)), slog.String("message", f.Message))
		}
		return fmt.Errorf("%d node(s) failed", report.Failed)
	}
	return nil
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := metrics.NewPrometheusRecorder(prom.NewRegistry())

	hist, err := openHistory(cfg)
	if err != nil {
		slog.Warn("build history unavailable", logfields.Error(err))
	}

	buildOpts := []build.Option{build.WithRecorder(rec), build.WithLiveReload()}
	serverOpts := []server.Option{server.WithMetricsHandler(rec.Handler())}
	if hist != nil {
		defer hist.Close()
		buildOpts = append(buildOpts, build.WithHistory(hist))
		serverOpts = append(serverOpts, server.WithHistory(hist))
	}

	b := build.New(cfg, buildOpts...)
	hub := server.NewHub(rec)
	srv := server.New(cfg, b, hub, serverOpts...)

	return server.Preview(ctx, cfg, b, srv, hub)
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	dir := filepath.Join(filepath.Dir(cfg.Output.Directory), ".sitegen")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return history.Open(filepath.Join(dir, "history.db"))
}
