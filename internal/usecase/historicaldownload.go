package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"tgforward/internal/adapter/filesystem"
	"tgforward/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DownloadSource is one DOWNLOAD.downloadSetting entry (config package stays
// JSON-shaped; this is the usecase-level view of it, with channel
// identifiers left as raw strings for Run to resolve).
type DownloadSource struct {
	Channels   []string
	StartID    int
	EndID      int
	Keywords   []string
	MediaKinds map[domain.MediaKind]bool
}

// HistoricalDownload implements the "download" operation: pull media from
// one or more source channels onto local disk, skipping anything the
// history store already has recorded (spec.md §1).
type HistoricalDownload struct {
	Remote   domain.RemoteAPI
	FS       domain.FileSystem
	History  domain.HistoryStore
	Reporter domain.ProgressReporter
	Log      zerolog.Logger

	DownloadPath string
	Concurrency  int
	QuotaBytes   int64 // 0 = unlimited
}

func NewHistoricalDownload(remote domain.RemoteAPI, fs domain.FileSystem, history domain.HistoryStore, reporter domain.ProgressReporter, log zerolog.Logger, downloadPath string, concurrency int, quotaBytes int64) *HistoricalDownload {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &HistoricalDownload{
		Remote: remote, FS: fs, History: history, Reporter: reporter, Log: log,
		DownloadPath: downloadPath, Concurrency: concurrency, QuotaBytes: quotaBytes,
	}
}

// Run pulls every configured source channel in turn, resolving identifiers
// itself so callers can pass raw config strings straight through.
func (d *HistoricalDownload) Run(ctx context.Context, task *domain.Task, sources []DownloadSource) error {
	for _, src := range sources {
		for _, channelID := range src.Channels {
			if err := task.Gate(ctx); err != nil {
				return err
			}
			ref, err := d.Remote.ResolveChannel(ctx, channelID)
			if err != nil {
				d.Log.Warn().Err(err).Str("channel", channelID).Msg("resolve failed, skipping source")
				continue
			}
			if err := d.downloadChannel(ctx, task, ref, src); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *HistoricalDownload) downloadChannel(ctx context.Context, task *domain.Task, source domain.ChannelRef, src DownloadSource) error {
	collector := NewHistoricalCollector(d.Remote, d.History)

	destDir := filepath.Join(d.DownloadPath, fmt.Sprintf("%d", source.ID))
	if source.Title != "" {
		destDir = filepath.Join(d.DownloadPath, filesystem.SanitizeFileName(source.Title))
	}

	return collector.Collect(ctx, task, source, src.StartID, src.EndID, 0, src.MediaKinds, nil, func(group domain.MediaGroup) bool {
		if err := task.Gate(ctx); err != nil {
			return false
		}
		if d.QuotaBytes > 0 {
			if size, err := d.FS.DirSize(d.DownloadPath); err == nil && size >= d.QuotaBytes {
				d.Log.Warn().Msg("download quota exceeded, stopping task")
				task.SetErr(domain.ErrQuotaExceeded)
				return false
			}
		}
		if len(src.Keywords) > 0 && !containsAnyKeyword(group.Caption, src.Keywords) {
			task.AddStats(domain.Stats{Filtered: 1})
			return true
		}
		d.downloadOneGroup(ctx, task, source, destDir, group)
		return true
	})
}

func (d *HistoricalDownload) downloadOneGroup(ctx context.Context, task *domain.Task, source domain.ChannelRef, destDir string, group domain.MediaGroup) {
	if err := d.FS.EnsureDir(destDir); err != nil {
		task.AddStats(domain.Stats{Failed: len(group.Messages)})
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Concurrency)

	for _, msg := range group.Messages {
		msg := msg
		if msg.Kind == domain.MediaText {
			task.AddStats(domain.Stats{Skipped: 1})
			continue
		}
		if d.History.IsDownloaded(source.ID, msg.ID) {
			task.AddStats(domain.Stats{Skipped: 1})
			continue
		}
		g.Go(func() error {
			name := filesystem.SanitizeFileName(fmt.Sprintf("%d_%s", msg.ID, fallbackFileName(msg)))
			dest := filepath.Join(destDir, name)

			var pt domain.ProgressTask
			if d.Reporter != nil {
				pt = d.Reporter.Start(name, msg.FileSize)
			}

			if err := d.Remote.DownloadMedia(gctx, msg, dest, pt); err != nil {
				d.Log.Warn().Err(err).Int("message", msg.ID).Msg("download failed")
				task.AddStats(domain.Stats{Failed: 1})
				return nil
			}
			if err := d.History.MarkDownloaded(source.ID, msg.ID, &source.ID); err != nil {
				d.Log.Warn().Err(err).Msg("mark downloaded failed")
			}
			task.AddStats(domain.Stats{DownloadedUploaded: 1})
			return nil
		})
	}
	_ = g.Wait()
}
