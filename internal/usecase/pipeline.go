package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"tgforward/internal/adapter/filesystem"
	"tgforward/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PipelineConfig carries the knobs spec.md §4.5/§5 leaves configurable: queue
// capacity, per-stage concurrency caps, pacing sleeps, and the hourly
// limit+pause throughput budget.
type PipelineConfig struct {
	QueueCapacity         int
	DownloadConcurrency   int
	ThumbnailConcurrency  int
	InterGroupDelay       time.Duration
	InterTargetDelay      time.Duration
	HourlyLimit           int           // 0 = unbounded
	HourlyPause           time.Duration
	TmpDir                string
	DownloadQuotaBytes    int64 // 0 = unlimited
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4
	}
	if c.DownloadConcurrency <= 0 {
		c.DownloadConcurrency = 4
	}
	if c.ThumbnailConcurrency <= 0 {
		c.ThumbnailConcurrency = 3
	}
	if c.InterGroupDelay <= 0 {
		c.InterGroupDelay = 500 * time.Millisecond
	}
	if c.InterTargetDelay <= 0 {
		c.InterTargetDelay = 500 * time.Millisecond
	}
	if c.TmpDir == "" {
		c.TmpDir = "tmp"
	}
	return c
}

// Pipeline is the producer-consumer engine shared by the forward and monitor
// operations (download and upload use the collector, text processor and
// history store directly), grounded on the teacher's internal/usecase/executor.go worker
// pool and _examples/original_source/src/modules/forward/parallel_processor.py's
// asyncio.Queue producer/consumer.
type Pipeline struct {
	Remote  domain.RemoteAPI
	FS      domain.FileSystem
	History domain.HistoryStore
	Text    *TextProcessor
	Video   domain.VideoHelper // optional, nil degrades gracefully
	Reporter domain.ProgressReporter

	Log zerolog.Logger
	Cfg PipelineConfig
}

// NewPipeline wires a Pipeline with default-filled config.
func NewPipeline(remote domain.RemoteAPI, fs domain.FileSystem, history domain.HistoryStore, reporter domain.ProgressReporter, log zerolog.Logger, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		Remote:   remote,
		FS:       fs,
		History:  history,
		Text:     NewTextProcessor(),
		Reporter: reporter,
		Log:      log,
		Cfg:      cfg.withDefaults(),
	}
}

// Run drives one producer goroutine (download/assemble) and one consumer
// goroutine (upload/copy) over raw, a stream of message-only groups from a
// collector (historical or real-time). It returns once raw is closed and
// every hydrated group has been delivered or failed, or ctx ends first.
func (p *Pipeline) Run(ctx context.Context, task *domain.Task, pair domain.ChannelPair, targets []domain.ChannelRef, raw <-chan domain.MediaGroup) error {
	hydrated := make(chan *domain.MediaGroup, p.Cfg.QueueCapacity)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(hydrated)
		return p.produce(gctx, task, pair, raw, hydrated)
	})
	g.Go(func() error {
		return p.consume(gctx, task, pair, targets, hydrated)
	})

	return g.Wait()
}

// produce reads raw groups in order, applies the text processor, downloads
// media into a per-group temp directory, and places the hydrated group on
// the bounded queue. Backpressure from the channel send is the pipeline's
// natural pacing mechanism (spec.md §4.5 "Ordering... guarantees").
func (p *Pipeline) produce(ctx context.Context, task *domain.Task, pair domain.ChannelPair, raw <-chan domain.MediaGroup, out chan<- *domain.MediaGroup) error {
	producedThisHour := 0
	hourStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case group, ok := <-raw:
			if !ok {
				return nil
			}

			if err := task.Gate(ctx); err != nil {
				return err
			}

			if err := p.checkQuota(); err != nil {
				p.Log.Warn().Err(err).Msg("download quota exceeded, stopping")
				return err
			}

			result := p.Text.Process(pair, group.Caption)
			if result.Filtered {
				task.AddStats(domain.Stats{Filtered: 1})
				continue
			}
			group.Caption = result.Caption

			hydrated, err := p.downloadGroup(ctx, &group)
			if err != nil {
				p.Log.Warn().Err(err).Str("album", group.AlbumID).Msg("group download failed")
				task.AddStats(domain.Stats{Failed: 1})
				continue
			}
			mediaCount := 0
			for _, m := range hydrated.Messages {
				if m.Kind != domain.MediaText {
					mediaCount++
				}
			}
			if missing := mediaCount - len(hydrated.Files); missing > 0 {
				task.AddStats(domain.Stats{Failed: missing})
			}

			select {
			case out <- hydrated:
			case <-ctx.Done():
				return ctx.Err()
			}

			producedThisHour++
			if p.Cfg.HourlyLimit > 0 && producedThisHour >= p.Cfg.HourlyLimit {
				p.Log.Info().Int("limit", p.Cfg.HourlyLimit).Dur("pause", p.Cfg.HourlyPause).Msg("hourly limit reached, pausing")
				if err := sleepOrDone(ctx, p.Cfg.HourlyPause); err != nil {
					return err
				}
				producedThisHour = 0
				hourStart = time.Now()
			} else if time.Since(hourStart) >= time.Hour {
				producedThisHour = 0
				hourStart = time.Now()
			}

			if err := sleepOrDone(ctx, p.Cfg.InterGroupDelay); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) checkQuota() error {
	if p.Cfg.DownloadQuotaBytes <= 0 {
		return nil
	}
	size, err := p.FS.DirSize(p.Cfg.TmpDir)
	if err != nil {
		return nil // quota check is best-effort, never fails the task on a stat error
	}
	if size >= p.Cfg.DownloadQuotaBytes {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// downloadGroup fetches every non-text message's media into a per-group temp
// directory. A single failed file is skipped and recorded rather than
// sinking the whole album (spec.md §4.4's per-file resilience note).
func (p *Pipeline) downloadGroup(ctx context.Context, group *domain.MediaGroup) (*domain.MediaGroup, error) {
	dirName := groupDirName(*group)
	tempDir := filepath.Join(p.Cfg.TmpDir, dirName)
	if err := p.FS.EnsureDir(tempDir); err != nil {
		return nil, fmt.Errorf("pipeline: create temp dir: %w", err)
	}
	group.TempDir = tempDir

	type result struct {
		idx  int
		file domain.DownloadedFile
		err  error
	}

	files := make([]domain.DownloadedFile, len(group.Messages))
	ok := make([]bool, len(group.Messages))
	resultsCh := make(chan result, len(group.Messages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.DownloadConcurrency)

	for i, msg := range group.Messages {
		i, msg := i, msg
		if msg.Kind == domain.MediaText {
			continue
		}
		g.Go(func() error {
			name := filesystem.SanitizeFileName(fmt.Sprintf("%d_%s", msg.ID, fallbackFileName(msg)))
			dest := filepath.Join(tempDir, name)

			var task domain.ProgressTask
			if p.Reporter != nil {
				task = p.Reporter.Start(name, msg.FileSize)
			}

			err := p.Remote.DownloadMedia(gctx, msg, dest, task)
			if err != nil {
				resultsCh <- result{idx: i, err: err}
				return nil // do not sink the whole album over one file
			}
			resultsCh <- result{idx: i, file: domain.DownloadedFile{
				Path:      dest,
				Kind:      msg.Kind,
				Size:      msg.FileSize,
				SourceMsg: msg,
			}}
			return nil
		})
	}
	_ = g.Wait()
	close(resultsCh)

	for r := range resultsCh {
		if r.err != nil {
			continue
		}
		files[r.idx] = r.file
		ok[r.idx] = true
	}

	group.Files = group.Files[:0]
	for i, present := range ok {
		if present {
			group.Files = append(group.Files, files[i])
		}
	}

	if err := p.attachThumbnails(ctx, group); err != nil {
		p.Log.Debug().Err(err).Msg("thumbnail attach failed, continuing without")
	}

	return group, nil
}

// attachThumbnails best-effort enriches video files with dimensions/duration/
// thumbnail via the optional VideoHelper, bounded by a small worker pool
// (spec.md §4.5 consumer step 3). Any failure is non-fatal per spec.md §4.8.
func (p *Pipeline) attachThumbnails(ctx context.Context, group *domain.MediaGroup) error {
	if p.Video == nil {
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.ThumbnailConcurrency)

	for i := range group.Files {
		i := i
		if group.Files[i].Kind != domain.MediaVideo {
			continue
		}
		g.Go(func() error {
			f := &group.Files[i]
			if w, h, ok := p.Video.Dimensions(f.Path); ok {
				f.Width, f.Height = w, h
			}
			if d, ok := p.Video.Duration(f.Path); ok {
				f.Duration = d
			}
			if thumb, w, h, d, ok := p.Video.Thumbnail(f.Path); ok {
				f.Thumbnail = thumb
				if f.Width == 0 {
					f.Width, f.Height, f.Duration = w, h, d
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// consume delivers each hydrated group to its targets in order, preferring a
// server-side copy from the first target delivered in this pass over
// re-uploading bytes (spec.md §4.5 consumer steps 1-6).
func (p *Pipeline) consume(ctx context.Context, task *domain.Task, pair domain.ChannelPair, targets []domain.ChannelRef, in <-chan *domain.MediaGroup) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case group, ok := <-in:
			if !ok {
				return nil
			}
			if err := task.Gate(ctx); err != nil {
				return err
			}
			p.deliverGroup(ctx, task, group, targets)
		}
	}
}

// deliverGroup runs the per-target copy-then-upload-fallback loop. It always
// deletes the group's thumbnails; the downloaded files and temp directory are
// removed unless a target failed or the task stopped mid-loop, in which case
// they stay on disk.
func (p *Pipeline) deliverGroup(ctx context.Context, task *domain.Task, group *domain.MediaGroup, targets []domain.ChannelRef) {
	defer p.cleanupThumbnails(group)

	if allTargetsSatisfied(p.History, group, targets) {
		p.removeTempDir(group)
		task.AddStats(domain.Stats{Skipped: 1})
		return
	}

	files := nonEmptyFiles(group.Files)
	if len(files) == 0 && !hasText(group) {
		p.removeTempDir(group)
		task.AddStats(domain.Stats{Failed: 1})
		return
	}

	anchor := &deliveryAnchor{}
	allOK := true

	for i, target := range targets {
		if err := task.Gate(ctx); err != nil {
			allOK = false
			break
		}
		if groupSatisfied(p.History, group, target) {
			continue
		}

		ok := p.deliverToTarget(ctx, group, files, target, anchor)
		if !ok {
			allOK = false
			continue
		}

		task.AddStats(domain.Stats{DownloadedUploaded: 1})

		if i < len(targets)-1 {
			_ = sleepOrDone(ctx, p.Cfg.InterTargetDelay)
		}
	}

	if allOK {
		p.removeTempDir(group)
	}
}

// deliveryAnchor remembers the remote message ids produced by the first
// successful delivery in this group's iteration, so later targets can be
// satisfied via a cheap server-side copy instead of a re-upload.
type deliveryAnchor struct {
	target  domain.ChannelRef
	msgIDs  []int
	isGroup bool
}

func (p *Pipeline) deliverToTarget(ctx context.Context, group *domain.MediaGroup, files []domain.DownloadedFile, target domain.ChannelRef, anchor *deliveryAnchor) bool {
	if len(anchor.msgIDs) > 0 {
		if ids, err := p.copyFromAnchor(ctx, group, anchor, target); err == nil {
			p.recordHistory(group, target, ids)
			return true
		} else if err != domain.ErrForwardRestricted {
			p.Log.Warn().Err(err).Msg("copy from anchor failed, falling back to upload")
		}
	}

	ids, err := p.uploadDirect(ctx, group, files, target)
	if err != nil {
		p.Log.Warn().Err(err).Int64("target", target.ID).Msg("upload failed")
		return false
	}
	p.recordHistory(group, target, ids)
	if len(anchor.msgIDs) == 0 {
		anchor.target = target
		anchor.msgIDs = ids
		anchor.isGroup = group.IsAlbum()
	}
	return true
}

func (p *Pipeline) copyFromAnchor(ctx context.Context, group *domain.MediaGroup, anchor *deliveryAnchor, target domain.ChannelRef) ([]int, error) {
	if len(anchor.msgIDs) == 0 {
		return nil, domain.ErrNotFound
	}
	if anchor.isGroup {
		return p.Remote.CopyGroup(ctx, anchor.target, anchor.msgIDs, target, group.Caption)
	}
	id, err := p.Remote.CopyMessage(ctx, anchor.target, anchor.msgIDs[0], target, group.Caption)
	if err != nil {
		return nil, err
	}
	return []int{id}, nil
}

func (p *Pipeline) uploadDirect(ctx context.Context, group *domain.MediaGroup, files []domain.DownloadedFile, target domain.ChannelRef) ([]int, error) {
	var task domain.ProgressTask
	if p.Reporter != nil {
		task = p.Reporter.Start(groupDirName(*group), totalSize(files))
	}

	if len(files) == 0 {
		id, err := p.Remote.SendSingle(ctx, target, nil, group.Caption, task)
		if err != nil {
			return nil, err
		}
		return []int{id}, nil
	}
	if len(files) == 1 {
		id, err := p.Remote.SendSingle(ctx, target, &files[0], group.Caption, task)
		if err != nil {
			return nil, err
		}
		return []int{id}, nil
	}
	return p.Remote.SendGroup(ctx, target, files, group.Caption, task)
}

func (p *Pipeline) recordHistory(group *domain.MediaGroup, target domain.ChannelRef, remoteIDs []int) {
	for _, msg := range group.Messages {
		if err := p.History.MarkForwarded(group.Source.ID, msg.ID, target.Input, &target.ID); err != nil {
			p.Log.Warn().Err(err).Msg("mark forwarded failed")
		}
	}
	for _, f := range group.Files {
		if f.Path == "" {
			continue
		}
		if err := p.History.MarkUploaded(f.Path, target.Input, f.Size, f.Kind); err != nil {
			p.Log.Warn().Err(err).Msg("mark uploaded failed")
		}
	}
}

func (p *Pipeline) cleanupThumbnails(group *domain.MediaGroup) {
	for _, f := range group.Files {
		if f.Thumbnail == "" {
			continue
		}
		_ = p.FS.DeleteFile(f.Thumbnail)
	}
}

func (p *Pipeline) removeTempDir(group *domain.MediaGroup) {
	if group.TempDir == "" {
		return
	}
	for _, f := range group.Files {
		_ = p.FS.DeleteFile(f.Path)
	}
	_ = p.FS.DeleteFile(group.TempDir)
}

func groupSatisfied(h domain.HistoryStore, group *domain.MediaGroup, target domain.ChannelRef) bool {
	for _, msg := range group.Messages {
		if !h.IsForwarded(group.Source.ID, msg.ID, target.Input) {
			return false
		}
	}
	return true
}

func allTargetsSatisfied(h domain.HistoryStore, group *domain.MediaGroup, targets []domain.ChannelRef) bool {
	for _, t := range targets {
		if !groupSatisfied(h, group, t) {
			return false
		}
	}
	return true
}

func nonEmptyFiles(files []domain.DownloadedFile) []domain.DownloadedFile {
	out := make([]domain.DownloadedFile, 0, len(files))
	for _, f := range files {
		if f.Size > 0 {
			out = append(out, f)
		}
	}
	return out
}

func hasText(group *domain.MediaGroup) bool {
	for _, m := range group.Messages {
		if m.Kind == domain.MediaText {
			return true
		}
	}
	return false
}

func totalSize(files []domain.DownloadedFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

func groupDirName(group domain.MediaGroup) string {
	if group.AlbumID != "" {
		return filesystem.SanitizeFileName("album_" + group.AlbumID)
	}
	if len(group.Messages) > 0 {
		return fmt.Sprintf("msg_%d", group.Messages[0].ID)
	}
	return "group"
}

func fallbackFileName(msg domain.Message) string {
	if msg.FileName != "" {
		return msg.FileName
	}
	return string(msg.Kind)
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
