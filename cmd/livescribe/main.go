package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	audioimpl "github.com/foxseedlab/livescribe/external/audio"
	captureimpl "github.com/foxseedlab/livescribe/external/capture"
	configloader "github.com/foxseedlab/livescribe/external/config"
	"github.com/foxseedlab/livescribe/external/discord"
	"github.com/foxseedlab/livescribe/external/gsuite"
	"github.com/foxseedlab/livescribe/external/process"
	repositoryimpl "github.com/foxseedlab/livescribe/external/repository"
	transcriberimpl "github.com/foxseedlab/livescribe/external/transcriber"
	"github.com/foxseedlab/livescribe/external/watcher"
	webhookimpl "github.com/foxseedlab/livescribe/external/webhook"
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/session"
	"github.com/samber/do/v2"
)

func main() {
	os.Exit(run())
}

func run() int {
	singleFile := flag.String("single-file", "", "transcribe one existing audio file and exit")
	watchOnly := flag.Bool("watch", false, "transcribe segments appearing in CHUNKS_DIR without capturing")
	flag.Parse()

	slog.Info("startup: loading configuration")
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		return 1
	}
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "backend", cfg.TranscribeBackend, "stores", cfg.RemoteStores)

	if err := checkInstallation(cfg, *singleFile == "" && !*watchOnly); err != nil {
		slog.Error("required program missing", "error", err)
		return 1
	}

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)
	defer func() {
		if report := injector.Shutdown(); !report.Succeed {
			slog.Warn("dependency shutdown incomplete", "error", report.Error())
		}
	}()

	orch, err := do.Invoke[*session.Orchestrator](injector)
	if err != nil {
		slog.Error("failed to resolve orchestrator", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *singleFile != "":
		slog.Info("startup: transcribing single file", "path", *singleFile)
		err = orch.TranscribeFile(ctx, *singleFile)
	case *watchOnly:
		slog.Info("startup: watching segment directory", "dir", cfg.ChunksDir)
		err = orch.Watch(ctx)
	default:
		slog.Info("startup: capturing live stream")
		err = orch.Run(ctx)
	}
	if err != nil {
		slog.Error("livescribe stopped with error", "error", err)
		return 1
	}
	slog.Info("shutdown complete")
	return 0
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func checkInstallation(cfg *config.Config, capturing bool) error {
	if cfg.TranscribeBackend == config.TranscribeBackendWhisperCLI {
		if err := process.CheckInstalled(cfg.WhisperPython); err != nil {
			return err
		}
	}
	if !capturing {
		return nil
	}
	if err := cfg.ValidateCapture(); err != nil {
		return err
	}
	return captureimpl.CheckInstallation("ffmpeg", "yt-dlp", cfg.StreamURL == "")
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	captureimpl.RegisterDI(injector)
	watcher.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	gsuite.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}
