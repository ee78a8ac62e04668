package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"GENERAL": {"api_id": 123, "api_hash": "abc", "phone_number": "+1"},
		"UPLOAD": {"target_channels": ["@dest"], "directory": "/tmp/up"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 123, cfg.General.AppID)
	assert.Equal(t, "abc", cfg.General.AppHash)
	assert.Equal(t, "/tmp/up", cfg.Upload.Directory)
}

func TestLoad_DefaultsCaptionTemplateWhenEmpty(t *testing.T) {
	path := writeConfig(t, `{"UPLOAD": {"target_channels": ["@dest"]}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "{filename}", cfg.Upload.CaptionTemplate)
}

func TestLoad_PreservesExplicitCaptionTemplate(t *testing.T) {
	path := writeConfig(t, `{"UPLOAD": {"caption_template": "{filename} - custom"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "{filename} - custom", cfg.Upload.CaptionTemplate)
}

func TestLoad_RejectsUseFolderNameAndReadTitleTxtTogether(t *testing.T) {
	path := writeConfig(t, `{
		"UPLOAD": {"options": {"use_folder_name": true, "read_title_txt": true}}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoad_AllowsEitherUseFolderNameOrReadTitleTxtAlone(t *testing.T) {
	path := writeConfig(t, `{"UPLOAD": {"options": {"use_folder_name": true}}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Upload.Options.UseFolderName)
	assert.False(t, cfg.Upload.Options.ReadTitleTxt)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestLoad_InvalidJSONReturnsError(t *testing.T) {
	path := writeConfig(t, `{not valid json`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ForwardChannelPairsDecoded(t *testing.T) {
	path := writeConfig(t, `{
		"FORWARD": {
			"forward_channel_pairs": [
				{"source": "@src", "targets": ["@a", "@b"], "keywords": ["x"], "replacements": [["foo", "bar"]]}
			],
			"remove_captions": true,
			"media_types": ["photo", "video"],
			"start_id": 10,
			"end_id": 20
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Forward.Pairs, 1)
	pair := cfg.Forward.Pairs[0]
	assert.Equal(t, "@src", pair.Source)
	assert.Equal(t, []string{"@a", "@b"}, pair.Targets)
	assert.Equal(t, [2]string{"foo", "bar"}, pair.Replacements[0])
	assert.True(t, cfg.Forward.RemoveCaptions)
	assert.Equal(t, 10, cfg.Forward.StartID)
	assert.Equal(t, 20, cfg.Forward.EndID)
}

func TestLoad_MonitorChannelPairsDecoded(t *testing.T) {
	path := writeConfig(t, `{
		"MONITOR": {
			"monitor_channel_pairs": [{"source": "@src", "targets": ["@dst"]}],
			"duration": "1:30:00"
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Monitor.Pairs, 1)
	assert.Equal(t, "1:30:00", cfg.Monitor.Duration)
}

func TestGetSessionPath_ReturnsPathUnderHomeDotDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := GetSessionPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".tgforward", "session.json"), path)

	info, err := os.Stat(filepath.Join(home, ".tgforward"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
