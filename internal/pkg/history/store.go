// Package history implements the JSON-file delivery ledger (spec §4.3):
// download_history.json, upload_history.json, forward_history.json, each
// guarded by its own mutex and rewritten atomically on every mutation.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"tgforward/internal/domain"
)

type downloadFile struct {
	Channels    map[string]*channelDownloads `json:"channels"`
	LastUpdated string                       `json:"updated_at"`
}

type channelDownloads struct {
	ChannelID           int64 `json:"channel_id"`
	DownloadedMessages  []int `json:"downloaded_messages"`
}

type uploadFile struct {
	Files       map[string]*uploadEntry `json:"files"`
	LastUpdated string                  `json:"updated_at"`
}

type uploadEntry struct {
	UploadedTo []string `json:"uploaded_to"`
	UploadTime string   `json:"upload_time"`
	FileSize   int64    `json:"file_size"`
	MediaType  string   `json:"media_type"`
}

type forwardFile struct {
	Channels    map[string]*channelForwards `json:"channels"`
	LastUpdated string                      `json:"updated_at"`
}

type channelForwards struct {
	ChannelID          int64               `json:"channel_id"`
	ForwardedMessages  map[string][]string `json:"forwarded_messages"`
}

// Store is a domain.HistoryStore backed by the three JSON files, each with
// its own mutex and its own in-memory index so repeated IsDownloaded/
// IsUploaded/IsForwarded lookups (the common case, run once per message
// during a large historical pass) don't re-read the file from disk.
type Store struct {
	downloadPath string
	uploadPath   string
	forwardPath  string

	downloadMu sync.Mutex
	download   *downloadFile
	// downloadedIDs mirrors download.Channels[..].DownloadedMessages as a set
	// for O(1) IsDownloaded lookups instead of a linear scan per message.
	downloadedIDs map[int64]map[int]bool

	uploadMu sync.Mutex
	upload   *uploadFile

	forwardMu sync.Mutex
	forward   *forwardFile
}

// Open loads (or creates) the three history files rooted at dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	s := &Store{
		downloadPath: filepath.Join(dataDir, "download_history.json"),
		uploadPath:   filepath.Join(dataDir, "upload_history.json"),
		forwardPath:  filepath.Join(dataDir, "forward_history.json"),
	}

	var err error
	s.download, err = loadOrInit(s.downloadPath, &downloadFile{Channels: map[string]*channelDownloads{}})
	if err != nil {
		return nil, err
	}
	s.upload, err = loadOrInit(s.uploadPath, &uploadFile{Files: map[string]*uploadEntry{}})
	if err != nil {
		return nil, err
	}
	s.forward, err = loadOrInit(s.forwardPath, &forwardFile{Channels: map[string]*channelForwards{}})
	if err != nil {
		return nil, err
	}

	s.downloadedIDs = make(map[int64]map[int]bool)
	for key, ch := range s.download.Channels {
		id, convErr := strconv.ParseInt(key, 10, 64)
		if convErr != nil {
			id = ch.ChannelID
		}
		set := make(map[int]bool, len(ch.DownloadedMessages))
		for _, m := range ch.DownloadedMessages {
			set[m] = true
		}
		s.downloadedIDs[id] = set
	}

	return s, nil
}

func loadOrInit[T any](path string, empty *T) (*T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeJSON(path, empty); writeErr != nil {
			return nil, writeErr
		}
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		// Corrupt file: reinitialize rather than fail the whole engine.
		if writeErr := writeJSON(path, empty); writeErr != nil {
			return nil, writeErr
		}
		return empty, nil
	}
	return &v, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("history: write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Store) IsDownloaded(channel int64, messageID int) bool {
	s.downloadMu.Lock()
	defer s.downloadMu.Unlock()
	return s.downloadedIDs[channel][messageID]
}

func (s *Store) MarkDownloaded(channel int64, messageID int, resolvedID *int64) error {
	s.downloadMu.Lock()
	defer s.downloadMu.Unlock()

	key := strconv.FormatInt(channel, 10)
	ch, ok := s.download.Channels[key]
	if !ok {
		ch = &channelDownloads{ChannelID: channel}
		if resolvedID != nil {
			ch.ChannelID = *resolvedID
		}
		s.download.Channels[key] = ch
	}

	if s.downloadedIDs[channel] == nil {
		s.downloadedIDs[channel] = make(map[int]bool)
	}
	if s.downloadedIDs[channel][messageID] {
		return nil
	}

	ch.DownloadedMessages = append(ch.DownloadedMessages, messageID)
	s.downloadedIDs[channel][messageID] = true
	s.download.LastUpdated = now()
	return writeJSON(s.downloadPath, s.download)
}

func (s *Store) DownloadedIDs(channel int64) []int {
	s.downloadMu.Lock()
	defer s.downloadMu.Unlock()
	set := s.downloadedIDs[channel]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) IsUploaded(path string, target string) bool {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()
	key := filepath.Clean(path)
	entry, ok := s.upload.Files[key]
	if !ok {
		return false
	}
	for _, t := range entry.UploadedTo {
		if t == target {
			return true
		}
	}
	return false
}

func (s *Store) MarkUploaded(path, target string, size int64, kind domain.MediaKind) error {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	key := filepath.Clean(path)
	entry, ok := s.upload.Files[key]
	if !ok {
		entry = &uploadEntry{UploadTime: now(), FileSize: size, MediaType: string(kind)}
		s.upload.Files[key] = entry
	}
	for _, t := range entry.UploadedTo {
		if t == target {
			return nil
		}
	}
	entry.UploadedTo = append(entry.UploadedTo, target)
	s.upload.LastUpdated = now()
	return writeJSON(s.uploadPath, s.upload)
}

func (s *Store) IsForwarded(source int64, messageID int, target string) bool {
	s.forwardMu.Lock()
	defer s.forwardMu.Unlock()
	key := strconv.FormatInt(source, 10)
	ch, ok := s.forward.Channels[key]
	if !ok {
		return false
	}
	targets, ok := ch.ForwardedMessages[strconv.Itoa(messageID)]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}

func (s *Store) MarkForwarded(source int64, messageID int, target string, resolvedID *int64) error {
	s.forwardMu.Lock()
	defer s.forwardMu.Unlock()

	key := strconv.FormatInt(source, 10)
	ch, ok := s.forward.Channels[key]
	if !ok {
		ch = &channelForwards{ChannelID: source, ForwardedMessages: map[string][]string{}}
		if resolvedID != nil {
			ch.ChannelID = *resolvedID
		}
		s.forward.Channels[key] = ch
	}

	msgKey := strconv.Itoa(messageID)
	for _, t := range ch.ForwardedMessages[msgKey] {
		if t == target {
			return nil
		}
	}
	ch.ForwardedMessages[msgKey] = append(ch.ForwardedMessages[msgKey], target)
	s.forward.LastUpdated = now()
	return writeJSON(s.forwardPath, s.forward)
}

var _ domain.HistoryStore = (*Store)(nil)
