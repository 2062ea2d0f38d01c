package impl

import (
	"testing"
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (e *engine) versions(t *testing.T) map[uuid.UUID]int64 {
	t.Helper()

	all, err := e.requests.Find(e.ctx, repository.RequestFilter{})
	require.NoError(t, err)

	versions := make(map[uuid.UUID]int64, len(all))
	for _, req := range all {
		versions[req.ID] = req.Version
	}

	return versions
}

func TestSweep_SecondRunChangesNothing(t *testing.T) {
	e := newEngine(t)

	e.submit(t, "alice", window(12, 0, 12, 30))
	e.seedMatching(t, "carol", window(13, 0, 13, 30))
	e.submit(t, "bob", window(12, 0, 12, 30))
	e.submit(t, "dave", window(15, 0, 15, 30))
	e.clock.Advance(15 * time.Minute)

	first, err := e.sweep.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.RoundsResolved)
	assert.Equal(t, 1, first.Expired, "carol's wait timed out")

	before := e.versions(t)
	second, err := e.sweep.Sweep(e.ctx)
	require.NoError(t, err)

	assert.Equal(t, usecase.SweepReport{}, *second)
	assert.Equal(t, before, e.versions(t))
}

func TestSweep_CleanupStaleAwaitingIntent(t *testing.T) {
	e := newEngine(t)
	e.extractor.EXPECT().Extract(mock.Anything, "hey", mock.Anything).Return(nil, service.ErrUnrecognized).Once()

	res, err := e.session.HandleInbound(e.ctx, "alice", "hey")
	require.NoError(t, err)

	e.clock.Advance(2*time.Hour - time.Minute)
	cancelled, err := e.sweep.CleanupStale(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, cancelled)

	e.clock.Advance(2 * time.Minute)
	cancelled, err = e.sweep.CleanupStale(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	req := e.reload(t, res.Request.ID)
	assert.Equal(t, entity.RequestStateCancelled, req.State)
	assert.Equal(t, msgStaleCancelled(), e.inbox.last("alice"))
}

func TestSweep_CheckInOncePerDay(t *testing.T) {
	e := newEngine(t)

	e.submit(t, "alice", window(12, 0, 12, 30))
	e.submit(t, "bob", window(13, 30, 14, 0))
	_, err := e.session.Cancel(e.ctx, "bob", "")
	require.NoError(t, err)
	require.NoError(t, e.learning.SetCheckInOptOut(e.ctx, "carol", true))

	sent, err := e.sweep.CheckIn(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "only bob has no open request and did not opt out")
	assert.Equal(t, e.cfg.Scheduler.CheckInMessage, e.inbox.last("bob"))

	sent, err = e.sweep.CheckIn(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	e.clock.Advance(24 * time.Hour)
	_, err = e.sweep.Sweep(e.ctx)
	require.NoError(t, err)
	sent, err = e.sweep.CheckIn(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "alice's request expired overnight")
}
