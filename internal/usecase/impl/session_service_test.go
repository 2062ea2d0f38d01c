package impl

import (
	"testing"
	"time"

	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSession_ConversationCollectsIntent(t *testing.T) {
	e := newEngine(t)

	e.extractor.EXPECT().Extract(mock.Anything, "hi", mock.Anything).
		Return(nil, service.ErrUnrecognized).Once()
	e.extractor.EXPECT().Extract(mock.Anything, "chipotle please", mock.Anything).
		Return(&entity.Intent{Restaurant: "chipotle"}, nil).Once()
	e.extractor.EXPECT().Extract(mock.Anything, "sce at 12:30", mock.MatchedBy(func(uctx service.ExtractContext) bool {
		return uctx.UserID == "alice" && uctx.Partial.Restaurant == chipotle
	})).Return(&entity.Intent{Location: "sce", Window: entity.NewPointWindow(at(12, 30))}, nil).Once()

	res, err := e.session.HandleInbound(e.ctx, "alice", "hi")
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	assert.Equal(t, entity.RequestStateAwaitingIntent, res.Request.State)
	assert.Contains(t, res.Reply, "Tell me what you'd like")
	firstID := res.Request.ID

	res, err = e.session.HandleInbound(e.ctx, "alice", "chipotle please")
	require.NoError(t, err)
	assert.Equal(t, firstID, res.Request.ID)
	assert.Equal(t, chipotle, res.Request.Restaurant)
	assert.Contains(t, res.Reply, "I still need the location and time")

	res, err = e.session.HandleInbound(e.ctx, "alice", "sce at 12:30")
	require.NoError(t, err)
	assert.Equal(t, firstID, res.Request.ID)
	assert.Equal(t, entity.RequestStateMatching, res.Request.State)
	assert.Equal(t, sce, res.Request.Location)
	assert.Equal(t, "Got it: Chipotle to Student Center East at 12:30 PM. I'm looking for people to split the order with.", res.Reply)
	assert.Equal(t, res.Reply, e.inbox.last("alice"))
}

func TestSession_ControlWords(t *testing.T) {
	e := newEngine(t)

	res, err := e.session.HandleInbound(e.ctx, "alice", "cancel")
	require.NoError(t, err)
	assert.Nil(t, res.Request)
	assert.Equal(t, msgNothingToCancel(), res.Reply)

	e.submit(t, "alice", window(12, 0, 12, 30))

	res, err = e.session.HandleInbound(e.ctx, "alice", "STATUS")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Still looking for partners")

	res, err = e.session.HandleInbound(e.ctx, "alice", "yes")
	require.NoError(t, err)
	assert.Equal(t, msgNoOpenProposal(), res.Reply)

	res, err = e.session.HandleInbound(e.ctx, "alice", "panda at the library")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "You already have an open request")

	res, err = e.session.HandleInbound(e.ctx, "alice", "optout")
	require.NoError(t, err)
	assert.Equal(t, msgOptOut(), res.Reply)
	profile, err := e.learning.Profile(e.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, profile.CheckInOptOut)

	res, err = e.session.HandleInbound(e.ctx, "alice", "stop")
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	assert.Equal(t, entity.RequestStateCancelled, res.Request.State)
	assert.Equal(t, "Your request has been cancelled.", e.inbox.last("alice"))
}

func TestSession_AnswerProposalByText(t *testing.T) {
	e := newEngine(t)

	alice := e.seedMatching(t, "alice", window(12, 0, 12, 30))
	e.submit(t, "bob", window(12, 0, 12, 30))

	res, err := e.session.HandleInbound(e.ctx, "alice", "Yes")
	require.NoError(t, err)
	assert.Equal(t, msgReplyRecorded(entity.ProposalAccepted), res.Reply)
	assert.Equal(t, entity.RequestStateHandedOff, res.Request.State)
	assert.Equal(t, alice.ID, res.Request.ID)
}

func TestSession_CounterByText(t *testing.T) {
	e := newEngine(t)

	alice := e.seedMatching(t, "alice", window(12, 0, 12, 30))
	e.submit(t, "bob", window(12, 10, 12, 40))

	e.extractor.EXPECT().Extract(mock.Anything, "12:45", mock.Anything).
		Return(&entity.Intent{Window: window(12, 45, 13, 0)}, nil).Once()

	res, err := e.session.HandleInbound(e.ctx, "alice", "counter")
	require.NoError(t, err)
	assert.Equal(t, msgCounterNeedsTime(), res.Reply)

	res, err = e.session.HandleInbound(e.ctx, "alice", "COUNTER 12:45")
	require.NoError(t, err)
	assert.Equal(t, msgReplyRecorded(entity.ProposalCountered), res.Reply)

	alice = e.reload(t, alice.ID)
	assert.Equal(t, entity.RequestStateHandedOff, alice.State)
	assert.Equal(t, window(12, 45, 13, 0), alice.Window)
}

func TestSession_ExtractorFailureAsksToClarify(t *testing.T) {
	e := newEngine(t)

	e.extractor.EXPECT().Extract(mock.Anything, "chipotle", mock.Anything).
		Return(&entity.Intent{Restaurant: chipotle}, nil).Once()
	e.extractor.EXPECT().Extract(mock.Anything, "???", mock.Anything).
		Return(nil, errors.New("model timeout")).Once()

	_, err := e.session.HandleInbound(e.ctx, "alice", "chipotle")
	require.NoError(t, err)

	res, err := e.session.HandleInbound(e.ctx, "alice", "???")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Sorry, I couldn't understand that.")
	assert.Equal(t, entity.RequestStateAwaitingIntent, res.Request.State)
	assert.Equal(t, chipotle, res.Request.Restaurant)
}

func TestSession_SubmitIntentValidation(t *testing.T) {
	e := newEngine(t)

	_, err := e.session.SubmitIntent(e.ctx, "alice", entity.Intent{Restaurant: "Taco Bell", Location: sce, Window: window(12, 0, 12, 30)})
	assert.True(t, domainerrors.IsValidation(err))

	_, err = e.session.SubmitIntent(e.ctx, "alice", entity.Intent{Restaurant: chipotle, Location: sce, Window: window(11, 0, 11, 30)})
	assert.True(t, domainerrors.IsValidation(err))

	_, err = e.session.GetActiveByUser(e.ctx, "alice")
	assert.ErrorIs(t, err, domainerrors.ErrRequestNotFound, "nothing is created for invalid input")

	e.submit(t, "alice", window(12, 0, 12, 30))
	_, err = e.session.SubmitIntent(e.ctx, "alice", entity.Intent{Restaurant: chipotle, Location: sce, Window: window(12, 0, 12, 30)})
	assert.ErrorIs(t, err, domainerrors.ErrActiveRequestExists)
}

func TestSession_FutureWindowIsScheduled(t *testing.T) {
	e := newEngine(t)

	req := e.submit(t, "alice", window(15, 0, 15, 30))
	require.Equal(t, entity.RequestStateScheduled, req.State)
	require.NotNil(t, req.ActivateAt)
	assert.Equal(t, at(14, 15), *req.ActivateAt)
	assert.Contains(t, e.inbox.last("alice"), "I'll start looking for partners at 2:15 PM")

	activated, err := e.sweep.ActivateScheduled(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, activated)

	e.clock.Advance(at(14, 15).Sub(e.clock.Now()))
	activated, err = e.sweep.ActivateScheduled(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, activated)

	req = e.reload(t, req.ID)
	assert.Equal(t, entity.RequestStateMatching, req.State)
	assert.Nil(t, req.ActivateAt)
	assert.Equal(t, at(14, 25), req.ExpiresAt)
	assert.Equal(t, at(15, 0), req.HardExpiresAt)
}

func TestSession_NoCandidateExpiresWithMessage(t *testing.T) {
	e := newEngine(t)

	req := e.submit(t, "alice", window(12, 0, 12, 30))
	assert.Equal(t, at(12, 0), req.ExpiresAt)

	e.clock.Advance(9 * time.Minute)
	report, err := e.sweep.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Expired)

	e.clock.Advance(time.Minute)
	report, err = e.sweep.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	req = e.reload(t, req.ID)
	assert.Equal(t, entity.RequestStateExpired, req.State)
	assert.Contains(t, e.inbox.last("alice"), "Your request has expired")

	profile, err := e.learning.Profile(e.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.EventCount)
}

func TestSession_CancelConfirmedMemberDissolvesGroup(t *testing.T) {
	e := newEngine(t)
	e.failPublishing(errors.New("broker down"))

	alice := e.seedMatching(t, "alice", window(12, 0, 12, 30))
	bob := e.submit(t, "bob", window(12, 0, 12, 30))

	result := e.respond(t, alice, accept())
	require.NotNil(t, result.Group)
	assert.Equal(t, entity.GroupStatusConfirmed, result.Group.Status)

	_, err := e.session.Cancel(e.ctx, "alice", "")
	require.NoError(t, err)

	group, err := e.groups.Get(e.ctx, result.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GroupStatusCancelled, group.Status)

	bob = e.reload(t, bob.ID)
	assert.Equal(t, entity.RequestStateMatching, bob.State)
	assert.Nil(t, bob.GroupID)
	assert.True(t, bob.IsExcluded("alice", e.clock.Now()))
	assert.Contains(t, e.inbox.last("bob"), "A member left your group")
}
