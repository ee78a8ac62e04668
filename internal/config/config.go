package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProxyType enumerates the proxy kinds the GENERAL section accepts.
type ProxyType string

const (
	ProxySOCKS5 ProxyType = "SOCKS5"
	ProxyHTTP   ProxyType = "HTTP"
	ProxyMTProto ProxyType = "MTProto"
)

// General carries the session-wide settings shared by every command.
type General struct {
	AppID         int       `json:"api_id"`
	AppHash       string    `json:"api_hash"`
	PhoneNumber   string    `json:"phone_number"`
	Limit         int       `json:"limit"`
	PauseTime     int       `json:"pause_time"`
	Timeout       int       `json:"timeout"`
	MaxRetries    int       `json:"max_retries"`
	ProxyEnabled  bool      `json:"proxy_enabled"`
	ProxyType     ProxyType `json:"proxy_type"`
	ProxyAddr     string    `json:"proxy_addr"`
	ProxyPort     int       `json:"proxy_port"`
	ProxyUsername string    `json:"proxy_username"`
	ProxyPassword string    `json:"proxy_password"`
}

// DownloadSetting is one entry of DOWNLOAD.downloadSetting: a source plus the
// message-id range and filters that bound what gets pulled from it.
type DownloadSetting struct {
	SourceChannels []string `json:"source_channels"`
	StartID        int      `json:"start_id"`
	EndID          int      `json:"end_id"`
	Keywords       []string `json:"keywords"`
	MediaTypes     []string `json:"media_types"`
}

type Download struct {
	Settings               []DownloadSetting `json:"downloadSetting"`
	DownloadPath            string            `json:"download_path"`
	ParallelDownload        bool              `json:"parallel_download"`
	MaxConcurrentDownloads  int               `json:"max_concurrent_downloads"`
	DirSizeLimitEnabled     bool              `json:"dir_size_limit_enabled"`
	DirSizeLimitMB          int               `json:"dir_size_limit"`
}

// UploadOptions are the UPLOAD.options flags; (UseFolderName, ReadTitleTxt)
// are mutually exclusive and enforced by Load.
type UploadOptions struct {
	UseFolderName        bool   `json:"use_folder_name"`
	ReadTitleTxt         bool   `json:"read_title_txt"`
	SendFinalMessage     bool   `json:"send_final_message"`
	FinalMessageHTMLFile string `json:"final_message_html_file"`
	EnableWebPagePreview bool   `json:"enable_web_page_preview"`
	AutoThumbnail        bool   `json:"auto_thumbnail"`
}

type Upload struct {
	TargetChannels      []string      `json:"target_channels"`
	Directory           string        `json:"directory"`
	CaptionTemplate     string        `json:"caption_template"`
	DelayBetweenUploads float64       `json:"delay_between_uploads"`
	Options             UploadOptions `json:"options"`
}

// ChannelPairSetting is the JSON shape of one FORWARD/MONITOR channel pair,
// decoded into domain.ChannelPair by toDomainPair in cmd/tgforward; the
// strings and replacement pairs are copied over without validation.
type ChannelPairSetting struct {
	Source       string   `json:"source"`
	Targets      []string `json:"targets"`
	Keywords     []string `json:"keywords"`
	Replacements [][2]string `json:"replacements"`
}

type Forward struct {
	Pairs          []ChannelPairSetting `json:"forward_channel_pairs"`
	RemoveCaptions bool                  `json:"remove_captions"`
	MediaTypes     []string              `json:"media_types"`
	ForwardDelay   float64               `json:"forward_delay"`
	StartID        int                   `json:"start_id"`
	EndID          int                   `json:"end_id"`
	TmpPath        string                `json:"tmp_path"`
}

type Monitor struct {
	Pairs          []ChannelPairSetting `json:"monitor_channel_pairs"`
	RemoveCaptions bool                  `json:"remove_captions"`
	MediaTypes     []string              `json:"media_types"`
	Duration       string                `json:"duration"`
	ForwardDelay   float64               `json:"forward_delay"`
}

// AppConfig is the fully decoded JSON config file (spec §6).
type AppConfig struct {
	General  General  `json:"GENERAL"`
	Download Download `json:"DOWNLOAD"`
	Upload   Upload   `json:"UPLOAD"`
	Forward  Forward  `json:"FORWARD"`
	Monitor  Monitor  `json:"MONITOR"`
}

// Load reads and validates the JSON config file at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Upload.Options.UseFolderName && cfg.Upload.Options.ReadTitleTxt {
		return nil, fmt.Errorf("config: UPLOAD.options.use_folder_name and read_title_txt are mutually exclusive")
	}

	if cfg.Upload.CaptionTemplate == "" {
		cfg.Upload.CaptionTemplate = "{filename}"
	}

	return &cfg, nil
}

// GetSessionPath returns the path to the gotd session file, creating its
// parent directory if necessary.
func GetSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	sessionDir := filepath.Join(home, ".tgforward")

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return "", err
	}

	return filepath.Join(sessionDir, "session.json"), nil
}
