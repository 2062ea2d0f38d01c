package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"huddle/config"
	apimiddleware "huddle/internal/delivery/api/middleware"
	"huddle/internal/delivery/api/router/handler"
	"huddle/internal/delivery/api/validator"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/constants"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	usecase.SessionUsecase

	inbound   []string
	senders   []string
	inboundFn func(userID, text string) (*usecase.InboundResult, error)
	requests  map[uuid.UUID]*entity.UserRequest
	cancelled []string
}

func (f *fakeSession) HandleInbound(ctx context.Context, userID, text string) (*usecase.InboundResult, error) {
	f.inbound = append(f.inbound, userID+":"+text)
	f.senders = append(f.senders, deliverycontext.GetUserIDFromContext(ctx)+"/"+deliverycontext.GetMessageSIDFromContext(ctx))
	if f.inboundFn != nil {
		return f.inboundFn(userID, text)
	}

	return &usecase.InboundResult{Reply: "Got it"}, nil
}

func (f *fakeSession) Get(_ context.Context, id uuid.UUID) (*entity.UserRequest, error) {
	if req, ok := f.requests[id]; ok {
		return req, nil
	}

	return nil, domainerrors.ErrRequestNotFound
}

func (f *fakeSession) GetActiveByUser(_ context.Context, userID string) (*entity.UserRequest, error) {
	for _, req := range f.requests {
		if req.UserID == userID && !req.State.IsTerminal() {
			return req, nil
		}
	}

	return nil, domainerrors.ErrRequestNotFound.WithDetails("no open request")
}

func (f *fakeSession) Cancel(_ context.Context, userID, reason string) (*entity.UserRequest, error) {
	f.cancelled = append(f.cancelled, userID+":"+reason)
	for _, req := range f.requests {
		if req.UserID == userID {
			req.State = entity.RequestStateCancelled
			req.Reason = reason

			return req, nil
		}
	}

	return nil, domainerrors.ErrRequestNotFound
}

type fakeNegotiation struct {
	usecase.NegotiationUsecase

	replies []usecase.ProposalReply
	err     error
}

func (f *fakeNegotiation) Respond(_ context.Context, _ uuid.UUID, _ string, reply usecase.ProposalReply) (*usecase.RoundResult, error) {
	f.replies = append(f.replies, reply)
	if f.err != nil {
		return nil, f.err
	}

	return &usecase.RoundResult{RoundID: uuid.New(), Outcome: usecase.RoundPending}, nil
}

type fakeAction struct {
	tokens map[string]*usecase.ActionResult
}

func (f *fakeAction) Redeem(_ context.Context, token string) (*usecase.ActionResult, error) {
	if result, ok := f.tokens[token]; ok {
		return result, nil
	}

	return nil, domainerrors.ErrActionTokenInvalid
}

type fakeGroups struct {
	usecase.GroupUsecase

	group    *entity.GroupSession
	feedback []float64
	qr       []byte
}

func (f *fakeGroups) Get(_ context.Context, id uuid.UUID) (*entity.GroupSession, error) {
	if f.group == nil || f.group.ID != id {
		return nil, domainerrors.ErrGroupNotFound
	}

	return f.group, nil
}

func (f *fakeGroups) Cancel(ctx context.Context, id uuid.UUID, userID, reason string) (*entity.GroupSession, error) {
	group, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !group.HasUser(userID) {
		return nil, domainerrors.ErrForbidden
	}
	group.Status = entity.GroupStatusCancelled
	group.Reason = reason

	return group, nil
}

func (f *fakeGroups) Complete(ctx context.Context, id uuid.UUID) (*entity.GroupSession, error) {
	group, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Status = entity.GroupStatusCompleted

	return group, nil
}

func (f *fakeGroups) Feedback(_ context.Context, _ uuid.UUID, _ string, score float64) error {
	f.feedback = append(f.feedback, score)

	return nil
}

func (f *fakeGroups) PaymentQR(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}

	return f.qr, nil
}

type fakeSweep struct {
	usecase.SweepUsecase

	runs int
}

func (f *fakeSweep) Sweep(context.Context) (*usecase.SweepReport, error) {
	f.runs++

	return &usecase.SweepReport{Expired: 2, Activated: 1}, nil
}

type testAPI struct {
	echo        *echo.Echo
	session     *fakeSession
	negotiation *fakeNegotiation
	actions     *fakeAction
	groups      *fakeGroups
	sweep       *fakeSweep
}

func newTestAPI(t *testing.T, mutate ...func(cfg *config.Config)) *testAPI {
	t.Helper()

	cfg := &config.Config{}
	cfg.HTTP.PublicBaseURL = "http://localhost:8080"
	for _, fn := range mutate {
		fn(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &testAPI{
		echo:        echo.New(),
		session:     &fakeSession{requests: make(map[uuid.UUID]*entity.UserRequest)},
		negotiation: &fakeNegotiation{},
		actions:     &fakeAction{tokens: make(map[string]*usecase.ActionResult)},
		groups:      &fakeGroups{qr: []byte("\x89PNG")},
		sweep:       &fakeSweep{},
	}

	api.echo.Validator = validator.New()
	api.echo.HTTPErrorHandler = apimiddleware.NewErrorMiddleware(logger).HandleHTTPError

	NewRouter(RouterParams{
		MessageHandler: handler.NewMessageHandler(handler.MessageHandlerParams{SessionUC: api.session, Logger: logger}),
		RequestHandler: handler.NewRequestHandler(handler.RequestHandlerParams{SessionUC: api.session, Logger: logger}),
		ProposalHandler: handler.NewProposalHandler(handler.ProposalHandlerParams{
			NegotiationUC: api.negotiation,
			ActionUC:      api.actions,
			Logger:        logger,
		}),
		GroupHandler:    handler.NewGroupHandler(handler.GroupHandlerParams{GroupUC: api.groups, Logger: logger}),
		AdminHandler:    handler.NewAdminHandler(handler.AdminHandlerParams{SweepUC: api.sweep, Logger: logger}),
		TwilioSignature: apimiddleware.NewTwilioSignatureMiddleware(cfg, logger),
		Config:          cfg,
	}).RegisterRoutes(api.echo)

	return api
}

func (a *testAPI) do(method, target, contentType, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	return rec
}

func (a *testAPI) postJSON(target, body string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, target, echo.MIMEApplicationJSON, body, nil)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())

	return env
}

func sampleGroup() *entity.GroupSession {
	return &entity.GroupSession{
		ID: uuid.New(),
		Members: []entity.GroupMember{
			{RequestID: uuid.New(), UserID: "alice"},
			{RequestID: uuid.New(), UserID: "bob"},
		},
		Restaurant: "Chipotle",
		Location:   "Student Center East",
		AgreedWindow: entity.TimeWindow{
			Start: time.Date(2026, 3, 2, 12, 15, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC),
		},
		Status:   entity.GroupStatusHandedOff,
		FormedAt: time.Date(2026, 3, 2, 11, 55, 0, 0, time.UTC),
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, string(decode(t, rec).Data))
}

func TestPostMessage(t *testing.T) {
	api := newTestAPI(t)
	reqID := uuid.New()
	api.session.inboundFn = func(userID, _ string) (*usecase.InboundResult, error) {
		return &usecase.InboundResult{
			Reply:   "Looking for a group",
			Request: &entity.UserRequest{ID: reqID, UserID: userID, State: entity.RequestStateMatching},
		}, nil
	}

	rec := api.postJSON("/api/messages", `{"userId":"alice","text":"chipotle at sce at noon"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body handler.PostMessageResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	assert.Equal(t, "Looking for a group", body.Reply)
	require.NotNil(t, body.Request)
	assert.Equal(t, reqID.String(), body.Request.ID)
	assert.Equal(t, "matching", body.Request.State)
	assert.Equal(t, []string{"alice:chipotle at sce at noon"}, api.session.inbound)
	assert.Equal(t, []string{"alice/"}, api.session.senders)

	rec = api.postJSON("/api/messages", `{"userId":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)
}

func TestReceiveSMS(t *testing.T) {
	form := url.Values{"From": {"+13125550100"}, "Body": {"chipotle"}, "MessageSid": {"SM1"}}

	t.Run("unsigned in mock mode", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.do(http.MethodPost, "/webhook/sms", echo.MIMEApplicationForm, form.Encode(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<Response></Response>")
		assert.Equal(t, []string{"+13125550100:chipotle"}, api.session.inbound)
		assert.Equal(t, []string{"+13125550100/SM1"}, api.session.senders)
	})

	t.Run("failures are still acknowledged", func(t *testing.T) {
		api := newTestAPI(t)
		api.session.inboundFn = func(string, string) (*usecase.InboundResult, error) {
			return nil, domainerrors.ErrExternalCollaborator
		}

		rec := api.do(http.MethodPost, "/webhook/sms", echo.MIMEApplicationForm, form.Encode(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("signature required for live twilio", func(t *testing.T) {
		api := newTestAPI(t, func(cfg *config.Config) {
			cfg.Collaborators.Mode = constants.CollaboratorsLive
			cfg.Messenger = &config.MessengerConfig{
				Provider:        constants.MessengerProviderTwilio,
				TwilioAuthToken: "twilio-secret",
			}
		})

		rec := api.do(http.MethodPost, "/webhook/sms", echo.MIMEApplicationForm, form.Encode(), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		bad := http.Header{apimiddleware.HeaderTwilioSignature: {"bogus"}}
		rec = api.do(http.MethodPost, "/webhook/sms", echo.MIMEApplicationForm, form.Encode(), bad)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, api.session.inbound)

		signature := apimiddleware.TwilioSignature("twilio-secret", "http://localhost:8080/webhook/sms", form)
		good := http.Header{apimiddleware.HeaderTwilioSignature: {signature}}
		rec = api.do(http.MethodPost, "/webhook/sms", echo.MIMEApplicationForm, form.Encode(), good)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, api.session.inbound, 1)
	})
}

func TestRequestRoutes(t *testing.T) {
	api := newTestAPI(t)
	req := &entity.UserRequest{
		ID:         uuid.New(),
		UserID:     "alice",
		Restaurant: "Chipotle",
		State:      entity.RequestStateMatching,
		ExpiresAt:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	api.session.requests[req.ID] = req

	rec := api.do(http.MethodGet, "/api/requests/"+req.ID.String(), "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view handler.RequestView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, "alice", view.UserID)
	assert.Nil(t, view.Window)
	require.NotNil(t, view.ExpiresAt)
	assert.Nil(t, view.HardExpiresAt)

	rec = api.do(http.MethodGet, "/api/requests/not-a-uuid", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/requests/"+uuid.NewString(), "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", decode(t, rec).Error.Code)

	rec = api.do(http.MethodGet, "/api/users/alice/request", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.postJSON("/api/users/alice/cancel", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice:cancelled by user"}, api.session.cancelled)

	rec = api.do(http.MethodGet, "/api/users/alice/request", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondToProposal(t *testing.T) {
	target := "/api/proposals/" + uuid.NewString() + "/respond"

	t.Run("accept", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.postJSON(target, `{"userId":"alice","response":"accepted"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, api.negotiation.replies, 1)
		assert.Equal(t, entity.ProposalAccepted, api.negotiation.replies[0].Response)
		assert.Nil(t, api.negotiation.replies[0].CounterWindow)
	})

	t.Run("counter carries window", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.postJSON(target, `{"userId":"alice","response":"countered","reason":"later",`+
			`"counterStart":"2026-03-02T12:30:00Z","counterEnd":"2026-03-02T12:45:00Z"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, api.negotiation.replies, 1)
		reply := api.negotiation.replies[0]
		require.NotNil(t, reply.CounterWindow)
		assert.Equal(t, 12, reply.CounterWindow.Start.Hour())
		assert.Equal(t, "later", reply.Reason)
	})

	t.Run("counter without window is rejected", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.postJSON(target, `{"userId":"alice","response":"countered"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, api.negotiation.replies)
	})

	t.Run("inverted counter is rejected", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.postJSON(target, `{"userId":"alice","response":"countered",`+
			`"counterStart":"2026-03-02T12:45:00Z","counterEnd":"2026-03-02T12:30:00Z"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown response is rejected", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.postJSON(target, `{"userId":"alice","response":"maybe"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("closed proposal maps to conflict", func(t *testing.T) {
		api := newTestAPI(t)
		api.negotiation.err = domainerrors.ErrProposalClosed.WithDetails("expired")

		rec := api.postJSON(target, `{"userId":"alice","response":"declined"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		env := decode(t, rec)
		assert.Equal(t, "PROPOSAL_CLOSED", env.Error.Code)
		assert.Equal(t, "expired", env.Error.Details)
	})
}

func TestActionLink(t *testing.T) {
	api := newTestAPI(t)
	api.actions.tokens["ok"] = &usecase.ActionResult{
		Action: service.ActionAccept,
		Round:  &usecase.RoundResult{Outcome: usecase.RoundConsensus},
	}

	rec := api.do(http.MethodGet, "/a/ok", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), "group is confirmed")

	rec = api.do(http.MethodGet, "/a/forged", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ACTION_TOKEN_INVALID", decode(t, rec).Error.Code)
}

func TestGroupRoutes(t *testing.T) {
	api := newTestAPI(t)
	group := sampleGroup()
	api.groups.group = group
	base := "/api/groups/" + group.ID.String()

	rec := api.do(http.MethodGet, base, "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view handler.GroupView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, "handed_off", view.Status)
	assert.Len(t, view.Members, 2)
	assert.Equal(t, "alice", view.Members[0].UserID)

	rec = api.do(http.MethodGet, "/api/groups/"+uuid.NewString(), "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, base+"/payment-qr", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "\x89PNG", rec.Body.String())

	rec = api.postJSON(base+"/feedback", `{"userId":"alice","score":5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.postJSON(base+"/feedback", `{"userId":"alice","score":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []float64{5}, api.groups.feedback)

	rec = api.postJSON(base+"/cancel", `{"userId":"mallory"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.postJSON(base+"/complete", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.GroupStatusCompleted, group.Status)

	rec = api.postJSON(base+"/cancel", `{"userId":"bob","reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "changed my mind", group.Reason)
}

func TestAdminSweep(t *testing.T) {
	api := newTestAPI(t)

	rec := api.postJSON("/api/admin/sweep", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, api.sweep.runs)

	var report usecase.SweepReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
	assert.Equal(t, 2, report.Expired)
	assert.Equal(t, 1, report.Activated)
}
