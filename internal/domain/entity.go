package domain

import "time"

// MediaKind enumerates the media vocabulary recognised by the engine (spec §6).
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaAnimation MediaKind = "animation"
	MediaText      MediaKind = "text"
)

// ChannelRef is a resolved Telegram channel, cached by the resolver.
type ChannelRef struct {
	Input       string // canonical string as supplied by the user
	ID          int64  // resolved numeric id, stable for the channel's lifetime
	AccessHash  int64  // gotd access hash needed to address the channel
	Username    string
	Title       string
	CanForward  bool // false disables the native-forward fast path
	LastChecked time.Time
}

// Message is a single Telegram message as seen by the engine. The engine never
// mutates a Message; it only reads it to plan downloads/uploads.
type Message struct {
	ChannelID int64
	ID        int
	Kind      MediaKind
	Caption   string
	Text      string
	AlbumID   string // empty when the message does not belong to an album
	FileName  string
	FileSize  int64
}

// DownloadedFile is a media file pulled out of a Message onto local disk.
type DownloadedFile struct {
	Path      string // local path, unique within its group's temp dir
	Kind      MediaKind
	Size      int64
	Thumbnail string // optional extracted thumbnail path
	Width     int
	Height    int
	Duration  int // seconds
	SourceMsg Message
}

// MediaGroup is the atomic unit handed from producer to consumer: either a
// single message or a complete 1-10 message album.
type MediaGroup struct {
	Source   ChannelRef
	AlbumID  string // empty for a lone message
	Messages []Message
	Caption  string // belongs to the lowest-id member
	Files    []DownloadedFile
	TempDir  string
}

// IsAlbum reports whether this group represents a multi-message album.
func (g *MediaGroup) IsAlbum() bool {
	return g.AlbumID != ""
}

// ForwardRecord marks (source channel, message id, target channel) as delivered.
type ForwardRecord struct {
	SourceChannelID int64
	MessageID       int
	TargetChannel   string
	Timestamp       time.Time
}

// DownloadRecord marks (source channel, message id) as downloaded.
type DownloadRecord struct {
	SourceChannelID int64
	MessageID       int
	Timestamp       time.Time
}

// UploadRecord marks (local path, target channel) as uploaded.
type UploadRecord struct {
	Path          string
	TargetChannel string
	Size          int64
	Kind          MediaKind
	Timestamp     time.Time
}

// TextReplacement is one ordered (original -> replacement) substring rule.
type TextReplacement struct {
	Original    string
	Replacement string
}

// ChannelPair is one configured forwarding job: a source and its targets.
type ChannelPair struct {
	Source          string
	Targets         []string
	MediaKinds      map[MediaKind]bool // empty/nil = all kinds allowed
	Keywords        []string
	Replacements    []TextReplacement // ordered: user-specified order is the contract
	RemoveCaptions  bool
	FinalMessageTxt string // optional message appended after the pair completes
}

// TaskKind tags what family of work a Task represents.
type TaskKind string

const (
	TaskDownload TaskKind = "download"
	TaskUpload   TaskKind = "upload"
	TaskForward  TaskKind = "forward"
	TaskMonitor  TaskKind = "monitor"
	TaskOther    TaskKind = "other"
)

// TaskStatus is a node in the Task state machine (spec §4.7).
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Stats accumulates the counters every pipeline operation reports on completion.
type Stats struct {
	TotalMessages      int
	Forwarded          int
	DownloadedUploaded int
	Skipped            int
	Filtered           int
	Failed             int
}

// LocalFile represents a file on the local filesystem, used by the local-upload
// and historical-download operations (kept from the teacher's push/pull model).
type LocalFile struct {
	Path     string // relative path
	Checksum string
	ModTime  int64
	Size     int64
	AbsPath  string
}
