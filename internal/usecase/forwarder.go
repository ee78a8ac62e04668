package usecase

import (
	"context"
	"errors"

	"tgforward/internal/domain"
)

// HistoricalForwarder implements the "source permits native forwarding" fast
// path (spec.md §4.5 "Historical forwarder"): forward via the remote forward
// primitive instead of downloading and reuploading bytes. A target that
// rejects forwarding is downgraded to the full download/upload pipeline for
// that target only, leaving every other target on the cheap path.
type HistoricalForwarder struct {
	Remote   domain.RemoteAPI
	History  domain.HistoryStore
	Pipeline *Pipeline
	Text     *TextProcessor
}

func NewHistoricalForwarder(remote domain.RemoteAPI, history domain.HistoryStore, pipeline *Pipeline) *HistoricalForwarder {
	return &HistoricalForwarder{Remote: remote, History: history, Pipeline: pipeline, Text: NewTextProcessor()}
}

// ForwardGroup delivers one group to every target, preferring native forward
// and falling back to download-then-upload for any target that restricts it.
func (f *HistoricalForwarder) ForwardGroup(ctx context.Context, task *domain.Task, pair domain.ChannelPair, source domain.ChannelRef, targets []domain.ChannelRef, group domain.MediaGroup) {
	group.Source = source

	result := f.Text.Process(pair, group.Caption)
	if result.Filtered {
		task.AddStats(domain.Stats{Filtered: 1})
		return
	}
	group.Caption = result.Caption

	var restricted []domain.ChannelRef

	for _, target := range targets {
		if err := task.Gate(ctx); err != nil {
			return
		}
		if groupSatisfied(f.History, &group, target) {
			task.AddStats(domain.Stats{Skipped: 1})
			continue
		}

		var err error
		switch {
		case pair.RemoveCaptions:
			err = f.copyWithoutCaption(ctx, source, target, group)
		case group.IsAlbum():
			err = f.Remote.ForwardGroup(ctx, group.Messages, source, target)
		default:
			err = f.Remote.ForwardMessage(ctx, group.Messages[0], source, target)
		}

		if err == nil {
			f.recordForward(&group, target)
			task.AddStats(domain.Stats{Forwarded: 1})
			continue
		}

		if errors.Is(err, domain.ErrForwardRestricted) {
			restricted = append(restricted, target)
			continue
		}

		task.AddStats(domain.Stats{Failed: 1})
	}

	if len(restricted) > 0 && f.Pipeline != nil {
		raw := make(chan domain.MediaGroup, 1)
		raw <- group
		close(raw)
		_ = f.Pipeline.Run(ctx, task, pair, restricted, raw)
	}
}

func (f *HistoricalForwarder) recordForward(group *domain.MediaGroup, target domain.ChannelRef) {
	for _, msg := range group.Messages {
		_ = f.History.MarkForwarded(group.Source.ID, msg.ID, target.Input, &target.ID)
	}
}

// copyWithoutCaption implements "forward with caption removal" via the copy
// primitive with an empty caption, since a true forward always preserves the
// original caption (spec.md §4.5 "Historical forwarder").
func (f *HistoricalForwarder) copyWithoutCaption(ctx context.Context, source, target domain.ChannelRef, group domain.MediaGroup) error {
	if group.IsAlbum() {
		_, err := f.Remote.CopyGroup(ctx, source, messageIDs(group.Messages), target, "")
		return err
	}
	_, err := f.Remote.CopyMessage(ctx, source, group.Messages[0].ID, target, "")
	return err
}

func messageIDs(msgs []domain.Message) []int {
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
