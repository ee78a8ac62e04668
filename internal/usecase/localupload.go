package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"tgforward/internal/domain"

	"github.com/rs/zerolog"
)

// LocalUpload implements the "upload" operation: push files from a local
// directory to one or more target channels, recording delivery in the
// history store so a rerun only sends what's new. Adapted from the teacher's
// sync.go Push method, which compared against a remote file listing instead
// — an upload-only operation has no such listing, so idempotency here is
// keyed off the history store exclusively.
type LocalUpload struct {
	Remote   domain.RemoteAPI
	FS       domain.FileSystem
	History  domain.HistoryStore
	Video    domain.VideoHelper
	Reporter domain.ProgressReporter
	Log      zerolog.Logger

	CaptionTemplate string
	UseFolderName   bool
	ReadTitleTxt    bool
	DelayBetween    time.Duration
}

func NewLocalUpload(remote domain.RemoteAPI, fs domain.FileSystem, history domain.HistoryStore, reporter domain.ProgressReporter, log zerolog.Logger, captionTemplate string, useFolderName, readTitleTxt bool, delay time.Duration) *LocalUpload {
	if captionTemplate == "" {
		captionTemplate = "{filename}"
	}
	return &LocalUpload{
		Remote: remote, FS: fs, History: history, Reporter: reporter, Log: log,
		CaptionTemplate: captionTemplate, UseFolderName: useFolderName, ReadTitleTxt: readTitleTxt, DelayBetween: delay,
	}
}

// Run walks directory and uploads every file not already marked delivered to
// every resolved target.
func (u *LocalUpload) Run(ctx context.Context, task *domain.Task, directory string, targetInputs []string) error {
	targets := make([]domain.ChannelRef, 0, len(targetInputs))
	for _, t := range targetInputs {
		ref, err := u.Remote.ResolveChannel(ctx, t)
		if err != nil {
			u.Log.Warn().Err(err).Str("target", t).Msg("resolve failed, skipping target")
			continue
		}
		targets = append(targets, ref)
	}
	if len(targets) == 0 {
		return fmt.Errorf("usecase: no valid upload targets")
	}

	files, err := u.FS.ListFiles(directory)
	if err != nil {
		return fmt.Errorf("usecase: list %s: %w", directory, err)
	}

	for _, f := range files {
		if err := task.Gate(ctx); err != nil {
			return err
		}
		if strings.EqualFold(filepath.Base(f.Path), "title.txt") {
			continue
		}
		u.uploadOne(ctx, task, f, directory, targets)
		if err := sleepOrDone(ctx, u.DelayBetween); err != nil {
			return err
		}
	}
	return nil
}

func (u *LocalUpload) uploadOne(ctx context.Context, task *domain.Task, f domain.LocalFile, root string, targets []domain.ChannelRef) {
	caption := u.buildCaption(f, root)
	kind := mediaKindFromExt(f.AbsPath)

	file := domain.DownloadedFile{Path: f.AbsPath, Kind: kind, Size: f.Size}
	if u.Video != nil && kind == domain.MediaVideo {
		if w, h, ok := u.Video.Dimensions(f.AbsPath); ok {
			file.Width, file.Height = w, h
		}
		if dur, ok := u.Video.Duration(f.AbsPath); ok {
			file.Duration = dur
		}
	}

	for _, target := range targets {
		if err := task.Gate(ctx); err != nil {
			return
		}
		if u.History.IsUploaded(f.AbsPath, target.Input) {
			task.AddStats(domain.Stats{Skipped: 1})
			continue
		}

		var pt domain.ProgressTask
		if u.Reporter != nil {
			pt = u.Reporter.Start(filepath.Base(f.Path), f.Size)
		}

		if _, err := u.Remote.SendSingle(ctx, target, &file, caption, pt); err != nil {
			u.Log.Warn().Err(err).Str("file", f.Path).Msg("upload failed")
			task.AddStats(domain.Stats{Failed: 1})
			continue
		}
		if err := u.History.MarkUploaded(f.AbsPath, target.Input, f.Size, kind); err != nil {
			u.Log.Warn().Err(err).Msg("mark uploaded failed")
		}
		task.AddStats(domain.Stats{DownloadedUploaded: 1})
	}
}

// buildCaption expands {filename}/{folder} placeholders in the caption
// template, optionally substituting the file's parent folder name
// (use_folder_name) or the contents of a sibling title.txt (read_title_txt)
// for the file name — the two options are mutually exclusive, enforced at
// config load.
func (u *LocalUpload) buildCaption(f domain.LocalFile, root string) string {
	name := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
	folder := filepath.Base(filepath.Dir(f.Path))

	if u.UseFolderName && folder != "." {
		name = folder
	}
	if u.ReadTitleTxt {
		titlePath := filepath.Join(root, filepath.Dir(f.Path), "title.txt")
		if rc, err := u.FS.ReadFile(titlePath); err == nil {
			buf := make([]byte, 4096)
			n, _ := rc.Read(buf)
			rc.Close()
			if n > 0 {
				name = strings.TrimSpace(string(buf[:n]))
			}
		}
	}

	caption := u.CaptionTemplate
	caption = strings.ReplaceAll(caption, "{filename}", name)
	caption = strings.ReplaceAll(caption, "{folder}", folder)
	return caption
}

func mediaKindFromExt(path string) domain.MediaKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return domain.MediaPhoto
	case ".mp4", ".mkv", ".mov", ".avi", ".webm":
		return domain.MediaVideo
	case ".mp3", ".flac", ".wav", ".m4a", ".ogg":
		return domain.MediaAudio
	default:
		return domain.MediaDocument
	}
}
