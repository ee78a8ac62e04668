package domain

import (
	"context"
	"io"
)

// RemoteAPI is the subset of the Telegram client the engine depends on (spec §6,
// "Remote-API collaborator contract"). A gotd/td-backed implementation lives in
// internal/adapter/telegram; tests substitute an in-package fake.
type RemoteAPI interface {
	// ResolveChannel fetches chat metadata for an already-parsed identifier,
	// populating AccessHash/Title/CanForward. Returns ErrResolve on failure.
	ResolveChannel(ctx context.Context, idOrUsername string) (ChannelRef, error)

	// History walks a channel's message history, newest-first unless fromID is
	// set, invoking yield for every message until yield returns false or the
	// history is exhausted. This is the "lazy iterator" spec §4.2 excludes from
	// flood-wait patching; each page fetch beneath it is still wrapped.
	History(ctx context.Context, channel ChannelRef, fromID, limit int, yield func(Message) bool) error

	// MediaGroup fetches every message sharing albumID.
	MediaGroup(ctx context.Context, channel ChannelRef, albumID string) ([]Message, error)

	// DownloadMedia streams a message's media into destPath.
	DownloadMedia(ctx context.Context, msg Message, destPath string, progress ProgressTask) error

	// SendSingle uploads one file (or a text message when file is nil) to target.
	SendSingle(ctx context.Context, target ChannelRef, file *DownloadedFile, caption string, progress ProgressTask) (remoteMsgID int, err error)

	// SendGroup uploads an album (2-10 files) to target in one call.
	SendGroup(ctx context.Context, target ChannelRef, files []DownloadedFile, caption string, progress ProgressTask) (remoteMsgIDs []int, err error)

	// CopyMessage publishes a server-side copy of a message already delivered
	// to fromTarget, onto toTarget, without re-uploading bytes.
	CopyMessage(ctx context.Context, fromTarget ChannelRef, remoteMsgID int, toTarget ChannelRef, caption string) (int, error)

	// CopyGroup is CopyMessage for an album.
	CopyGroup(ctx context.Context, fromTarget ChannelRef, remoteMsgIDs []int, toTarget ChannelRef, caption string) ([]int, error)

	// ForwardMessage invokes the native forward primitive, preserving attribution.
	ForwardMessage(ctx context.Context, msg Message, source, target ChannelRef) error

	// ForwardGroup is ForwardMessage for an album.
	ForwardGroup(ctx context.Context, msgs []Message, source, target ChannelRef) error

	// Subscribe registers a callback invoked for every new message in channel
	// until ctx is cancelled or the returned cancel func is called.
	Subscribe(ctx context.Context, channel ChannelRef, onMessage func(Message)) (cancel func(), err error)

	Close() error
}

// FileSystem is the local-disk collaborator used by every operation that reads
// or writes files outside of Telegram.
type FileSystem interface {
	ListFiles(root string) ([]LocalFile, error)
	ReadFile(path string) (io.ReadCloser, error)
	WriteFile(path string, data io.Reader) error
	DeleteFile(path string) error
	EnsureDir(path string) error
	SetModTime(path string, unixTime int64) error
	DirSize(root string) (int64, error)
}

// HistoryStore persists at-most-once delivery records (spec §4.3).
type HistoryStore interface {
	IsDownloaded(channel int64, messageID int) bool
	MarkDownloaded(channel int64, messageID int, resolvedID *int64) error
	DownloadedIDs(channel int64) []int

	IsUploaded(path string, target string) bool
	MarkUploaded(path, target string, size int64, kind MediaKind) error

	IsForwarded(source int64, messageID int, target string) bool
	MarkForwarded(source int64, messageID int, target string, resolvedID *int64) error
}

// ProgressTask is a single transfer's progress sink, implemented by the UI
// adapter (an mpb bar, or a plain log line in non-interactive mode).
type ProgressTask interface {
	Increment(n int)
	SetCurrent(current int64)
	Complete()
	Abort()
}

// ProgressReporter hands out ProgressTasks and can block until all are done.
type ProgressReporter interface {
	Start(name string, total int64) ProgressTask
	Wait()
}

// AuthInput is the interactive-authentication collaborator (spec §6, out of
// scope beyond this interface: the concrete prompt UI).
type AuthInput interface {
	GetPhoneNumber() (string, error)
	GetCode() (string, error)
	GetPassword() (string, error)
}

// VideoHelper exposes the non-fatal, synchronous-offloadable video metadata
// operations (spec §4.8). The shipped videohelper.Helper reports every
// lookup as unavailable; callers degrade gracefully on ok=false or when no
// helper is configured.
type VideoHelper interface {
	Dimensions(path string) (w, h int, ok bool)
	Duration(path string) (seconds int, ok bool)
	Thumbnail(path string) (thumbPath string, w, h, durationSec int, ok bool)
}
