package usecase

import (
	"context"
	"testing"

	"tgforward/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forwardingRemote extends recordingRemote with a configurable ForwardMessage/
// ForwardGroup outcome per target, so tests can simulate one target rejecting
// the native forward while another accepts it.
type forwardingRemote struct {
	recordingRemote
	restrictedTargets map[int64]bool
	forwardCalls      int
}

func (r *forwardingRemote) ForwardMessage(ctx context.Context, msg domain.Message, source, target domain.ChannelRef) error {
	r.forwardCalls++
	if r.restrictedTargets[target.ID] {
		return domain.ErrForwardRestricted
	}
	return nil
}

func (r *forwardingRemote) ForwardGroup(ctx context.Context, msgs []domain.Message, source, target domain.ChannelRef) error {
	r.forwardCalls++
	if r.restrictedTargets[target.ID] {
		return domain.ErrForwardRestricted
	}
	return nil
}

func TestHistoricalForwarder_ForwardsToUnrestrictedTarget(t *testing.T) {
	remote := &forwardingRemote{restrictedTargets: map[int64]bool{}}
	history := newFakeHistory()
	f := NewHistoricalForwarder(remote, history, nil)
	task := newGateTask()

	source := domain.ChannelRef{ID: 1}
	target := domain.ChannelRef{ID: 2, Input: "t1"}
	group := domain.MediaGroup{Messages: []domain.Message{{ID: 10}}}

	f.ForwardGroup(context.Background(), task, domain.ChannelPair{}, source, []domain.ChannelRef{target}, group)

	assert.Equal(t, 1, remote.forwardCalls)
	assert.Equal(t, 1, task.Stats().Forwarded)
	assert.True(t, history.IsForwarded(1, 10, "t1"))
}

func TestHistoricalForwarder_SkipsAlreadyForwardedTarget(t *testing.T) {
	remote := &forwardingRemote{restrictedTargets: map[int64]bool{}}
	history := newFakeHistory()
	require.NoError(t, history.MarkForwarded(1, 10, "t1", nil))
	f := NewHistoricalForwarder(remote, history, nil)
	task := newGateTask()

	source := domain.ChannelRef{ID: 1}
	target := domain.ChannelRef{ID: 2, Input: "t1"}
	group := domain.MediaGroup{Messages: []domain.Message{{ID: 10}}}

	f.ForwardGroup(context.Background(), task, domain.ChannelPair{}, source, []domain.ChannelRef{target}, group)

	assert.Equal(t, 0, remote.forwardCalls)
	assert.Equal(t, 1, task.Stats().Skipped)
}

func TestHistoricalForwarder_RestrictedTargetFallsBackToPipeline(t *testing.T) {
	remote := &forwardingRemote{restrictedTargets: map[int64]bool{2: true}}
	history := newFakeHistory()
	pipeline := newTestPipeline(remote, history)
	f := NewHistoricalForwarder(remote, history, pipeline)
	task := newGateTask()

	source := domain.ChannelRef{ID: 1}
	target := domain.ChannelRef{ID: 2, Input: "t1"}
	group := domain.MediaGroup{Messages: []domain.Message{{ID: 10, Kind: domain.MediaText, Text: "hi"}}}

	f.ForwardGroup(context.Background(), task, domain.ChannelPair{}, source, []domain.ChannelRef{target}, group)

	assert.Equal(t, 1, remote.forwardCalls)
	assert.Equal(t, 1, remote.sendSingleCalls, "restricted target should fall through to the pipeline's direct upload")
}

func TestHistoricalForwarder_RemoveCaptionsUsesCopyPath(t *testing.T) {
	remote := &forwardingRemote{restrictedTargets: map[int64]bool{}}
	history := newFakeHistory()
	f := NewHistoricalForwarder(remote, history, nil)
	task := newGateTask()

	source := domain.ChannelRef{ID: 1}
	target := domain.ChannelRef{ID: 2, Input: "t1"}
	group := domain.MediaGroup{Messages: []domain.Message{{ID: 10}}, Caption: "drop me"}

	f.ForwardGroup(context.Background(), task, domain.ChannelPair{RemoveCaptions: true}, source, []domain.ChannelRef{target}, group)

	assert.Equal(t, 0, remote.forwardCalls)
	assert.Equal(t, 1, remote.copyMessageCalls)
}
