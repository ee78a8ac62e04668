package usecase

import (
	"context"
	"testing"

	"tgforward/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downloadRemote is a fakeRemote that answers ResolveChannel with a fixed
// ref and counts/controls DownloadMedia outcomes.
type downloadRemote struct {
	fakeRemote
	ref          domain.ChannelRef
	downloadErrs map[int]bool
	downloads    []int
}

func (d *downloadRemote) ResolveChannel(ctx context.Context, idOrUsername string) (domain.ChannelRef, error) {
	return d.ref, nil
}

func (d *downloadRemote) DownloadMedia(ctx context.Context, msg domain.Message, destPath string, progress domain.ProgressTask) error {
	d.downloads = append(d.downloads, msg.ID)
	if d.downloadErrs[msg.ID] {
		return assert.AnError
	}
	return nil
}

func newDownloadTask() *domain.Task {
	return domain.NewTask("dl", domain.TaskDownload, context.Background())
}

func TestHistoricalDownload_DownloadsNewMediaAndSkipsText(t *testing.T) {
	remote := &downloadRemote{
		ref: domain.ChannelRef{ID: 42},
		fakeRemote: fakeRemote{
			messages: []domain.Message{
				{ID: 1, Kind: domain.MediaPhoto, FileName: "a.jpg"},
				{ID: 2, Kind: domain.MediaText, Text: "hello"},
			},
		},
	}
	history := newFakeHistory()
	task := newDownloadTask()

	d := NewHistoricalDownload(remote, noopFileSystem{}, history, nil, zerolog.Nop(), t.TempDir(), 2, 0)
	err := d.Run(context.Background(), task, []DownloadSource{{Channels: []string{"src"}}})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{1}, remote.downloads)
	assert.True(t, history.IsDownloaded(42, 1))
	stats := task.Stats()
	assert.Equal(t, 1, stats.DownloadedUploaded)
	assert.Equal(t, 1, stats.Skipped) // the text message
}

func TestHistoricalDownload_SkipsAlreadyDownloaded(t *testing.T) {
	remote := &downloadRemote{
		ref: domain.ChannelRef{ID: 42},
		fakeRemote: fakeRemote{
			messages: []domain.Message{
				{ID: 1, Kind: domain.MediaPhoto, FileName: "a.jpg"},
			},
		},
	}
	history := newFakeHistory()
	require.NoError(t, history.MarkDownloaded(42, 1, nil))
	task := newDownloadTask()

	d := NewHistoricalDownload(remote, noopFileSystem{}, history, nil, zerolog.Nop(), t.TempDir(), 2, 0)
	err := d.Run(context.Background(), task, []DownloadSource{{Channels: []string{"src"}}})
	require.NoError(t, err)

	assert.Empty(t, remote.downloads)
	assert.Equal(t, 1, task.Stats().Skipped)
}

func TestHistoricalDownload_FilteredByKeyword(t *testing.T) {
	remote := &downloadRemote{
		ref: domain.ChannelRef{ID: 42},
		fakeRemote: fakeRemote{
			messages: []domain.Message{
				{ID: 1, Kind: domain.MediaPhoto, FileName: "a.jpg", Caption: "no match here"},
			},
		},
	}
	history := newFakeHistory()
	task := newDownloadTask()

	d := NewHistoricalDownload(remote, noopFileSystem{}, history, nil, zerolog.Nop(), t.TempDir(), 2, 0)
	err := d.Run(context.Background(), task, []DownloadSource{{
		Channels: []string{"src"},
		Keywords: []string{"mustmatch"},
	}})
	require.NoError(t, err)

	assert.Empty(t, remote.downloads)
	assert.Equal(t, 1, task.Stats().Filtered)
}

func TestHistoricalDownload_DownloadFailureCountsAsFailedNotSkipped(t *testing.T) {
	remote := &downloadRemote{
		ref: domain.ChannelRef{ID: 42},
		fakeRemote: fakeRemote{
			messages: []domain.Message{
				{ID: 1, Kind: domain.MediaPhoto, FileName: "a.jpg"},
			},
		},
		downloadErrs: map[int]bool{1: true},
	}
	history := newFakeHistory()
	task := newDownloadTask()

	d := NewHistoricalDownload(remote, noopFileSystem{}, history, nil, zerolog.Nop(), t.TempDir(), 2, 0)
	err := d.Run(context.Background(), task, []DownloadSource{{Channels: []string{"src"}}})
	require.NoError(t, err)

	assert.False(t, history.IsDownloaded(42, 1))
	assert.Equal(t, 1, task.Stats().Failed)
}

func TestHistoricalDownload_ResolveFailureSkipsSourceNotFatal(t *testing.T) {
	remote := &fakeRemote{}
	history := newFakeHistory()
	task := newDownloadTask()

	d := NewHistoricalDownload(&resolveFailingRemote{fakeRemote: *remote}, noopFileSystem{}, history, nil, zerolog.Nop(), t.TempDir(), 2, 0)
	err := d.Run(context.Background(), task, []DownloadSource{{Channels: []string{"bad-channel"}}})
	require.NoError(t, err)
}

type resolveFailingRemote struct {
	fakeRemote
}

func (r *resolveFailingRemote) ResolveChannel(ctx context.Context, idOrUsername string) (domain.ChannelRef, error) {
	return domain.ChannelRef{}, domain.ErrResolve
}

func TestHistoricalDownload_DefaultsConcurrencyWhenNonPositive(t *testing.T) {
	d := NewHistoricalDownload(&fakeRemote{}, noopFileSystem{}, newFakeHistory(), nil, zerolog.Nop(), t.TempDir(), 0, 0)
	assert.Equal(t, 4, d.Concurrency)
}
