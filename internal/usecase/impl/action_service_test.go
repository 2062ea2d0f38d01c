package impl

import (
	"strings"
	"testing"
	"time"

	"huddle/config"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActionFixture(t *testing.T) (*engine, service.ActionTokenService, usecase.ActionUsecase) {
	t.Helper()

	e := newEngine(t, func(cfg *config.Config) {
		cfg.SecretKey.Action = "test-secret"
		cfg.HTTP.PublicBaseURL = "https://huddle.example"
	})

	return e, e.tokens, NewActionService(ActionServiceParams{
		Tokens:      e.tokens,
		Session:     e.session,
		Negotiation: e.negotiation,
		Logger:      newDiscardLogger(),
	})
}

func TestActionService_AcceptLinkFormsGroup(t *testing.T) {
	e, tokens, actions := newActionFixture(t)

	alice := e.submit(t, "alice", window(12, 0, 12, 30))
	e.submit(t, "bob", window(12, 15, 12, 45))
	proposal := e.openProposal(t, alice.ID)

	token, err := tokens.Issue("alice", service.ActionAccept, proposal.ID, time.Hour)
	require.NoError(t, err)

	result, err := actions.Redeem(e.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, service.ActionAccept, result.Action)
	require.NotNil(t, result.Round)
	assert.Equal(t, usecase.RoundConsensus, result.Round.Outcome)
}

func TestActionService_DeclineLink(t *testing.T) {
	e, tokens, actions := newActionFixture(t)

	alice := e.submit(t, "alice", window(12, 0, 12, 30))
	e.submit(t, "bob", window(12, 15, 12, 45))
	proposal := e.openProposal(t, alice.ID)

	token, err := tokens.Issue("alice", service.ActionDecline, proposal.ID, time.Hour)
	require.NoError(t, err)

	result, err := actions.Redeem(e.ctx, token)
	require.NoError(t, err)
	require.NotNil(t, result.Round)
	assert.Equal(t, usecase.RoundFailed, result.Round.Outcome)
}

func TestActionService_CancelLink(t *testing.T) {
	e, tokens, actions := newActionFixture(t)

	alice := e.submit(t, "alice", window(12, 0, 12, 30))

	t.Run("other user is forbidden", func(t *testing.T) {
		token, err := tokens.Issue("mallory", service.ActionCancel, alice.ID, time.Hour)
		require.NoError(t, err)

		_, err = actions.Redeem(e.ctx, token)
		assert.ErrorIs(t, err, domainerrors.ErrForbidden)
		assert.Equal(t, entity.RequestStateMatching, e.reload(t, alice.ID).State)
	})

	t.Run("owner cancels", func(t *testing.T) {
		token, err := tokens.Issue("alice", service.ActionCancel, alice.ID, time.Hour)
		require.NoError(t, err)

		result, err := actions.Redeem(e.ctx, token)
		require.NoError(t, err)
		require.NotNil(t, result.Request)
		assert.Equal(t, entity.RequestStateCancelled, result.Request.State)
	})
}

func TestActionService_RejectsBadTokens(t *testing.T) {
	e, tokens, actions := newActionFixture(t)

	_, err := actions.Redeem(e.ctx, "")
	assert.ErrorIs(t, err, domainerrors.ErrActionTokenInvalid)

	_, err = actions.Redeem(e.ctx, "not-a-token")
	assert.ErrorIs(t, err, domainerrors.ErrActionTokenInvalid)

	expired, err := tokens.Issue("alice", service.ActionAccept, uuid.New(), -time.Minute)
	require.NoError(t, err)
	_, err = actions.Redeem(e.ctx, expired)
	assert.ErrorIs(t, err, domainerrors.ErrActionTokenInvalid)
}

func TestActionService_CancelLinkFromConfirmationMessage(t *testing.T) {
	e, _, actions := newActionFixture(t)

	alice := e.submit(t, "alice", window(12, 0, 12, 30))
	require.Equal(t, entity.RequestStateMatching, alice.State)

	token := linkToken(t, e.inbox.last("alice"))

	result, err := actions.Redeem(e.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, service.ActionCancel, result.Action)
	assert.Equal(t, entity.RequestStateCancelled, e.reload(t, alice.ID).State)
}

func TestActionService_ScheduledConfirmationCarriesCancelLink(t *testing.T) {
	e, _, actions := newActionFixture(t)

	later := e.submit(t, "alice", window(14, 0, 14, 30))
	require.Equal(t, entity.RequestStateScheduled, later.State)

	result, err := actions.Redeem(e.ctx, linkToken(t, e.inbox.last("alice")))
	require.NoError(t, err)
	require.NotNil(t, result.Request)
	assert.Equal(t, entity.RequestStateCancelled, result.Request.State)
}

// linkToken extracts the token of the action link embedded in an outbound message.
func linkToken(t *testing.T, text string) string {
	t.Helper()

	const prefix = "https://huddle.example/a/"
	idx := strings.Index(text, prefix)
	require.GreaterOrEqual(t, idx, 0, "message carries no action link: %q", text)

	return strings.Fields(text[idx+len(prefix):])[0]
}

func TestActionService_InitiatorCancelsFromWaitingMessage(t *testing.T) {
	e, _, actions := newActionFixture(t)

	alice := e.seedMatching(t, "alice", window(12, 0, 12, 30))
	bob := e.submit(t, "bob", window(12, 0, 12, 30))
	require.Equal(t, entity.RequestStateNegotiating, bob.State)

	waiting := e.inbox.last("bob")
	require.Contains(t, waiting, "Waiting for their reply")

	_, err := actions.Redeem(e.ctx, linkToken(t, waiting))
	require.NoError(t, err)

	assert.Equal(t, entity.RequestStateCancelled, e.reload(t, bob.ID).State)
	assert.Equal(t, entity.RequestStateMatching, e.reload(t, alice.ID).State)
}
