// Command tgforward runs the four user-facing operations the engine reduces
// to: historical download, local upload, historical forward, and real-time
// monitor (spec.md §1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tgforward/internal/adapter/filesystem"
	"tgforward/internal/adapter/telegram"
	"tgforward/internal/adapter/ui"
	"tgforward/internal/config"
	"tgforward/internal/domain"
	"tgforward/internal/pkg/history"
	"tgforward/internal/pkg/logging"
	"tgforward/internal/pkg/videohelper"
	"tgforward/internal/usecase"

	"github.com/rs/zerolog"
)

type zeroLogger = zerolog.Logger

// These are set by the linker at build time (-ldflags "-X main.AppID=... -X main.AppHash=...").
var (
	AppID   string
	AppHash string
)

func main() {
	cli, err := config.ParseCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cli.NonInteractive)
	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	appID, appHash, err := resolveCredentials(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve app credentials")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := ui.NewConsoleUI(cli.NonInteractive, log)

	progressCb := console.RateLimitBar(0)
	client, err := telegram.New(appID, appHash, cli.SessionPath, logging.Component(log, "telegram"), cfg.General.MaxRetries, progressCb)
	if err != nil {
		log.Fatal().Err(err).Msg("create telegram client")
	}
	client.SetUploadThreads(cli.Workers)

	if err := client.Start(ctx, console); err != nil {
		log.Fatal().Err(err).Msg("start telegram client")
	}
	defer client.Close()

	dataDir := "data"
	historyStore, err := history.Open(dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open history store")
	}

	fs := filesystem.NewLocalFileSystem()
	video := videohelper.New()
	controller := usecase.NewController()

	var opErr error
	switch cli.Command {
	case "download":
		opErr = runDownload(ctx, cfg, client, fs, historyStore, console, log, controller)
	case "upload":
		opErr = runUpload(ctx, cfg, client, fs, historyStore, video, console, log, controller)
	case "forward":
		opErr = runForward(ctx, cfg, client, fs, historyStore, video, console, log, controller)
	case "monitor":
		opErr = runMonitor(ctx, cfg, client, fs, historyStore, video, console, log, controller)
	}

	console.Wait()

	if opErr != nil {
		log.Fatal().Err(opErr).Msg("operation failed")
	}
	log.Info().Msg("done")
}

func resolveCredentials(cfg *config.AppConfig) (int, string, error) {
	appID := cfg.General.AppID
	appHash := cfg.General.AppHash

	if idStr := os.Getenv("APP_ID"); idStr != "" {
		if v, err := strconv.Atoi(idStr); err == nil {
			appID = v
		}
	}
	if AppID != "" {
		if v, err := strconv.Atoi(AppID); err == nil {
			appID = v
		}
	}
	if h := os.Getenv("APP_HASH"); h != "" {
		appHash = h
	}
	if AppHash != "" {
		appHash = AppHash
	}

	if appID == 0 || appHash == "" {
		return 0, "", fmt.Errorf("api_id/api_hash missing: set GENERAL.api_id/api_hash, APP_ID/APP_HASH, or -ldflags")
	}
	return appID, appHash, nil
}

func runDownload(ctx context.Context, cfg *config.AppConfig, client domain.RemoteAPI, fs domain.FileSystem, historyStore domain.HistoryStore, reporter domain.ProgressReporter, log zeroLogger, controller *usecase.Controller) error {
	var quota int64
	if cfg.Download.DirSizeLimitEnabled {
		quota = int64(cfg.Download.DirSizeLimitMB) * 1024 * 1024
	}

	sources := make([]usecase.DownloadSource, 0, len(cfg.Download.Settings))
	for _, s := range cfg.Download.Settings {
		sources = append(sources, usecase.DownloadSource{
			Channels:   s.SourceChannels,
			StartID:    s.StartID,
			EndID:      s.EndID,
			Keywords:   s.Keywords,
			MediaKinds: usecase.ParseMediaKinds(s.MediaTypes),
		})
	}

	concurrency := cfg.Download.MaxConcurrentDownloads
	downloader := usecase.NewHistoricalDownload(client, fs, historyStore, reporter, log, cfg.Download.DownloadPath, concurrency, quota)

	task := controller.NewTask(ctx, domain.TaskDownload)
	task.SetStatus(domain.StatusRunning)
	err := downloader.Run(task.Cancel.Context(), task, sources)
	finishTask(task, err)
	return err
}

func runUpload(ctx context.Context, cfg *config.AppConfig, client domain.RemoteAPI, fs domain.FileSystem, historyStore domain.HistoryStore, video domain.VideoHelper, reporter domain.ProgressReporter, log zeroLogger, controller *usecase.Controller) error {
	delay := time.Duration(cfg.Upload.DelayBetweenUploads * float64(time.Second))
	uploader := usecase.NewLocalUpload(client, fs, historyStore, reporter, log, cfg.Upload.CaptionTemplate, cfg.Upload.Options.UseFolderName, cfg.Upload.Options.ReadTitleTxt, delay)
	uploader.Video = video

	task := controller.NewTask(ctx, domain.TaskUpload)
	task.SetStatus(domain.StatusRunning)
	err := uploader.Run(task.Cancel.Context(), task, cfg.Upload.Directory, cfg.Upload.TargetChannels)
	finishTask(task, err)
	return err
}

func runForward(ctx context.Context, cfg *config.AppConfig, client domain.RemoteAPI, fs domain.FileSystem, historyStore domain.HistoryStore, video domain.VideoHelper, reporter domain.ProgressReporter, log zeroLogger, controller *usecase.Controller) error {
	pipeline := usecase.NewPipeline(client, fs, historyStore, reporter, log, usecase.PipelineConfig{
		InterGroupDelay:  time.Duration(cfg.Forward.ForwardDelay * float64(time.Second)),
		InterTargetDelay: time.Duration(cfg.Forward.ForwardDelay * float64(time.Second)),
		TmpDir:           cfg.Forward.TmpPath,
		HourlyLimit:      cfg.General.Limit,
		HourlyPause:      time.Duration(cfg.General.PauseTime) * time.Second,
		DownloadConcurrency: 4,
	})
	pipeline.Video = video
	forwarder := usecase.NewHistoricalForwarder(client, historyStore, pipeline)

	task := controller.NewTask(ctx, domain.TaskForward)
	task.SetStatus(domain.StatusRunning)

	for _, pairCfg := range cfg.Forward.Pairs {
		pair := toDomainPair(pairCfg, cfg.Forward.RemoveCaptions, cfg.Forward.MediaTypes)

		source, err := client.ResolveChannel(ctx, pairCfg.Source)
		if err != nil {
			log.Warn().Err(err).Str("source", pairCfg.Source).Msg("resolve source failed, skipping pair")
			continue
		}
		targets := resolveTargets(ctx, client, pairCfg.Targets, log)
		if len(targets) == 0 {
			continue
		}

		collector := usecase.NewHistoricalCollector(client, historyStore)
		targetInputs := make([]string, len(targets))
		for i, t := range targets {
			targetInputs[i] = t.Input
		}

		if source.CanForward {
			_ = collector.Collect(task.Cancel.Context(), task, source, cfg.Forward.StartID, cfg.Forward.EndID, 0, pair.MediaKinds, targetInputs, func(group domain.MediaGroup) bool {
				forwarder.ForwardGroup(task.Cancel.Context(), task, pair, source, targets, group)
				return task.Cancel.Context().Err() == nil
			})
			continue
		}

		raw := make(chan domain.MediaGroup, 8)
		go func() {
			defer close(raw)
			_ = collector.Collect(task.Cancel.Context(), task, source, cfg.Forward.StartID, cfg.Forward.EndID, 0, pair.MediaKinds, targetInputs, func(group domain.MediaGroup) bool {
				select {
				case raw <- group:
					return true
				case <-task.Cancel.Context().Done():
					return false
				}
			})
		}()
		if err := pipeline.Run(task.Cancel.Context(), task, pair, targets, raw); err != nil {
			log.Warn().Err(err).Msg("pipeline run ended with error")
		}
	}

	finishTask(task, nil)
	return nil
}

func runMonitor(ctx context.Context, cfg *config.AppConfig, client domain.RemoteAPI, fs domain.FileSystem, historyStore domain.HistoryStore, video domain.VideoHelper, reporter domain.ProgressReporter, log zeroLogger, controller *usecase.Controller) error {
	pipeline := usecase.NewPipeline(client, fs, historyStore, reporter, log, usecase.PipelineConfig{
		InterGroupDelay:     time.Duration(cfg.Monitor.ForwardDelay * float64(time.Second)),
		InterTargetDelay:    time.Duration(cfg.Monitor.ForwardDelay * float64(time.Second)),
		DownloadConcurrency: 4,
	})
	pipeline.Video = video
	monitor := usecase.NewMonitor(client, pipeline)

	task := controller.NewTask(ctx, domain.TaskMonitor)
	task.SetStatus(domain.StatusRunning)

	for _, pairCfg := range cfg.Monitor.Pairs {
		pair := toDomainPair(pairCfg, cfg.Monitor.RemoveCaptions, cfg.Monitor.MediaTypes)

		source, err := client.ResolveChannel(ctx, pairCfg.Source)
		if err != nil {
			log.Warn().Err(err).Str("source", pairCfg.Source).Msg("resolve source failed, skipping pair")
			continue
		}
		targets := resolveTargets(ctx, client, pairCfg.Targets, log)
		if len(targets) == 0 {
			continue
		}

		if err := monitor.Start(task.Cancel.Context(), task, pair, source, targets, cfg.Monitor.Duration); err != nil {
			log.Warn().Err(err).Msg("monitor pair ended with error")
		}
	}

	finishTask(task, nil)
	return nil
}

func resolveTargets(ctx context.Context, client domain.RemoteAPI, inputs []string, log zeroLogger) []domain.ChannelRef {
	out := make([]domain.ChannelRef, 0, len(inputs))
	for _, in := range inputs {
		ref, err := client.ResolveChannel(ctx, in)
		if err != nil {
			log.Warn().Err(err).Str("target", in).Msg("resolve target failed, skipping")
			continue
		}
		out = append(out, ref)
	}
	return out
}

func toDomainPair(pairCfg config.ChannelPairSetting, removeCaptions bool, mediaTypes []string) domain.ChannelPair {
	replacements := make([]domain.TextReplacement, 0, len(pairCfg.Replacements))
	for _, r := range pairCfg.Replacements {
		replacements = append(replacements, domain.TextReplacement{Original: r[0], Replacement: r[1]})
	}
	return domain.ChannelPair{
		Source:         pairCfg.Source,
		Targets:        pairCfg.Targets,
		MediaKinds:     usecase.ParseMediaKinds(mediaTypes),
		Keywords:       pairCfg.Keywords,
		Replacements:   replacements,
		RemoveCaptions: removeCaptions,
	}
}

func finishTask(task *domain.Task, err error) {
	if err != nil {
		task.SetErr(err)
		task.SetStatus(domain.StatusFailed)
		return
	}
	task.SetStatus(domain.StatusCompleted)
}
