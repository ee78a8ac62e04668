package usecase

import (
	"context"

	"tgforward/internal/domain"
)

// HistoricalCollector walks a channel's stored history and emits each message
// or complete album at most once (spec.md §4.4.1), grounded on the original's
// media_group_download.py album-correlation pass folded into one streaming walk.
type HistoricalCollector struct {
	Remote  domain.RemoteAPI
	History domain.HistoryStore
}

func NewHistoricalCollector(remote domain.RemoteAPI, history domain.HistoryStore) *HistoricalCollector {
	return &HistoricalCollector{Remote: remote, History: history}
}

// Collect yields groups in source order; yield returning false stops the walk.
// targets is used only to short-circuit messages already delivered to every
// current target, so a resumed run skips work the history store already
// accounts for.
func (c *HistoricalCollector) Collect(
	ctx context.Context,
	task *domain.Task,
	source domain.ChannelRef,
	startID, endID, limit int,
	allowed map[domain.MediaKind]bool,
	targets []string,
	yield func(domain.MediaGroup) bool,
) error {
	seen := make(map[string]bool)
	emitted := 0
	stop := false

	err := c.Remote.History(ctx, source, endID, 0, func(msg domain.Message) bool {
		if gateErr := task.Gate(ctx); gateErr != nil {
			stop = true
			return false
		}
		if startID > 0 && msg.ID < startID {
			return true
		}
		if endID > 0 && msg.ID > endID {
			return true
		}
		if !MediaKindAllowed(domain.ChannelPair{MediaKinds: allowed}, msg.Kind) {
			task.AddStats(domain.Stats{Filtered: 1})
			return true
		}

		var group domain.MediaGroup
		if msg.AlbumID != "" {
			if seen[msg.AlbumID] {
				return true
			}
			seen[msg.AlbumID] = true

			if allForwardedToAll(c.History, source.ID, msg.ID, targets) {
				task.AddStats(domain.Stats{Skipped: 1})
				return true
			}

			members, mErr := c.Remote.MediaGroup(ctx, source, msg.AlbumID)
			if mErr != nil || len(members) == 0 {
				members = []domain.Message{msg}
			}
			group = domain.MediaGroup{Source: source, AlbumID: msg.AlbumID, Messages: members, Caption: ExtractAlbumCaption(members)}
		} else {
			if allForwardedToAll(c.History, source.ID, msg.ID, targets) {
				task.AddStats(domain.Stats{Skipped: 1})
				return true
			}
			group = domain.MediaGroup{Source: source, Messages: []domain.Message{msg}, Caption: msg.Caption}
		}

		if !yield(group) {
			stop = true
			return false
		}
		emitted++
		if limit > 0 && emitted >= limit {
			stop = true
			return false
		}
		return true
	})

	if stop && err == nil {
		return nil
	}
	return err
}

// allForwardedToAll reports whether messageID has already been delivered to
// every target (an empty target list is never considered "already done").
func allForwardedToAll(h domain.HistoryStore, sourceID int64, messageID int, targets []string) bool {
	if len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		if !h.IsForwarded(sourceID, messageID, t) {
			return false
		}
	}
	return true
}
