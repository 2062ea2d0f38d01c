package impl

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"huddle/config"
	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"
	"huddle/internal/domain/service"
	"huddle/internal/infra/auth"
	"huddle/internal/infra/persistence/memory"
	mockService "huddle/internal/mocks/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	chipotle = "Chipotle"
	sce      = "Student Center East"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced entity.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// at returns today's wall-clock time hh:mm on the test day.
func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func window(startHour, startMinute, endHour, endMinute int) entity.TimeWindow {
	return entity.TimeWindow{Start: at(startHour, startMinute), End: at(endHour, endMinute)}
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Store.Driver = "memory"
	cfg.Collaborators.Mode = "mock"
	cfg.Matching = config.MatchingConfig{
		MinGroupSize:      2,
		MaxGroupSize:      3,
		WaitTimeout:       10 * time.Minute,
		MaxWait:           45 * time.Minute,
		ExclusionCooldown: 30 * time.Minute,
		TimeTolerance:     15 * time.Minute,
	}
	cfg.Scoring = config.ScoringConfig{
		Weights:                 config.ScoringWeights{Restaurant: 0.4, Location: 0.3, Timing: 0.2, Historical: 0.1},
		AcceptanceThreshold:     0.7,
		MaxTimingGap:            time.Hour,
		SatisfactionThreshold:   4,
		RelatedRestaurantCredit: 0.5,
		SameZoneCredit:          0.5,
		DistanceBuckets: []config.DistanceBucket{
			{MaxMeters: 50, Credit: 1},
			{MaxMeters: 400, Credit: 0.5},
		},
	}
	cfg.Negotiation = config.NegotiationConfig{
		Window:             5 * time.Minute,
		MaxRounds:          3,
		MaxConflictRetries: 1,
		ActionLinkTTL:      30 * time.Minute,
	}
	cfg.Scheduler = config.SchedulerConfig{
		Timezone:           "UTC",
		CheckInMessage:     "Hungry? Tell me what you'd like for lunch.",
		SweepInterval:      time.Minute,
		ActivationLeadTime: 45 * time.Minute,
		StaleAfter:         2 * time.Hour,
	}
	cfg.Catalog = config.CatalogConfig{
		ASAPWindow: 30 * time.Minute,
		Timezone:   "UTC",
		Restaurants: []config.RestaurantConfig{
			{Name: chipotle, Category: "mexican", Aliases: []string{"chipotle"}},
			{Name: "Qdoba", Category: "mexican"},
			{Name: "Panda Express", Category: "chinese", Aliases: []string{"panda"}},
		},
		Locations: []config.LocationConfig{
			{Name: sce, Zone: "east", Latitude: 41.8719, Longitude: -87.6476, Aliases: []string{"sce"}},
			{Name: "Daley Library", Zone: "east", Latitude: 41.8716, Longitude: -87.6502, Aliases: []string{"library"}},
			{Name: "Student Center West", Zone: "west", Aliases: []string{"scw"}},
		},
	}

	return cfg
}

// inbox records every outbound message.
type inbox struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (b *inbox) add(userID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages[userID] = append(b.messages[userID], text)
}

func (b *inbox) all(userID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.messages[userID]...)
}

func (b *inbox) last(userID string) string {
	msgs := b.all(userID)
	if len(msgs) == 0 {
		return ""
	}

	return msgs[len(msgs)-1]
}

func (b *inbox) contains(userID, fragment string) bool {
	for _, msg := range b.all(userID) {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// engine wires every usecase over the in-memory store with mocked collaborators.
type engine struct {
	ctx   context.Context
	clock *fakeClock
	cfg   *config.Config
	cat   *catalog.Catalog

	requests  repository.RequestRepository
	proposals repository.ProposalRepository
	groupRepo repository.GroupRepository
	profiles  repository.ProfileRepository

	learning    usecase.LearningUsecase
	matcher     usecase.CandidateMatcher
	groups      usecase.GroupUsecase
	negotiation usecase.NegotiationUsecase
	session     usecase.SessionUsecase
	sweep       usecase.SweepUsecase

	extractor *mockService.MockIntentExtractor
	tokens    service.ActionTokenService
	inbox     *inbox

	mu         sync.Mutex
	publishErr error
	published  []*service.GroupFinalizedEvent
}

func newEngine(t *testing.T, mutate ...func(cfg *config.Config)) *engine {
	t.Helper()

	cfg := newTestConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	cat, err := catalog.New(cfg)
	require.NoError(t, err)

	var tokens service.ActionTokenService
	if cfg.SecretKey.Action != "" {
		tokens, err = auth.NewActionTokenService(cfg)
		require.NoError(t, err)
	}

	logger := newDiscardLogger()
	store := memory.NewStore()
	e := &engine{
		ctx:       context.Background(),
		clock:     &fakeClock{now: at(11, 50)},
		cfg:       cfg,
		cat:       cat,
		requests:  memory.NewRequestRepository(store),
		proposals: memory.NewProposalRepository(store),
		groupRepo: memory.NewGroupRepository(store),
		profiles:  memory.NewProfileRepository(store),
		extractor: mockService.NewMockIntentExtractor(t),
		tokens:    tokens,
		inbox:     &inbox{messages: make(map[string][]string)},
	}

	messenger := mockService.NewMockMessenger(t)
	messenger.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, userID, text string) error {
			e.inbox.add(userID, text)

			return nil
		}).Maybe()

	publisher := mockService.NewMockEventPublisher(t)
	publisher.EXPECT().PublishGroupFinalized(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, event *service.GroupFinalizedEvent) error {
			e.mu.Lock()
			defer e.mu.Unlock()

			if e.publishErr != nil {
				return e.publishErr
			}
			e.published = append(e.published, event)

			return nil
		}).Maybe()

	payment := mockService.NewMockPaymentProvider(t)
	payment.EXPECT().PaymentLink(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, _ string, size int) (string, error) {
			if size > 1 {
				return "https://pay.example/group", nil
			}

			return "https://pay.example/solo", nil
		}).Maybe()

	e.learning = NewLearningService(LearningServiceParams{
		TxManager: memory.NewTransactionManager(store),
		Clock:     e.clock,
		Config:    cfg,
		Logger:    logger,
	})
	e.matcher = NewCandidateMatcher(CandidateMatcherParams{
		Requests: e.requests,
		Profiles: e.profiles,
		Scorer:   NewCompatibilityScorer(cfg, cat),
		Clock:    e.clock,
		Config:   cfg,
		Logger:   logger,
	})
	e.groups = NewGroupService(GroupServiceParams{
		Groups:    e.groupRepo,
		Requests:  e.requests,
		Learning:  e.learning,
		Publisher: publisher,
		Payment:   payment,
		Messenger: messenger,
		Catalog:   cat,
		Clock:     e.clock,
		Config:    cfg,
		Logger:    logger,
	})
	e.negotiation = NewNegotiationService(NegotiationServiceParams{
		Requests:  e.requests,
		Proposals: e.proposals,
		Groups:    e.groups,
		Learning:  e.learning,
		Messenger: messenger,
		Tokens:    tokens,
		Catalog:   cat,
		Clock:     e.clock,
		Config:    cfg,
		Logger:    logger,
	})
	e.session = NewSessionService(SessionServiceParams{
		Requests:    e.requests,
		Matcher:     e.matcher,
		Negotiation: e.negotiation,
		Groups:      e.groups,
		Learning:    e.learning,
		Extractor:   e.extractor,
		Messenger:   messenger,
		Tokens:      tokens,
		Catalog:     cat,
		Clock:       e.clock,
		Config:      cfg,
		Logger:      logger,
	})
	e.sweep = NewSweepService(SweepServiceParams{
		Requests:    e.requests,
		Profiles:    e.profiles,
		Session:     e.session,
		Negotiation: e.negotiation,
		Groups:      e.groups,
		Learning:    e.learning,
		Messenger:   messenger,
		Clock:       e.clock,
		Config:      cfg,
		Logger:      logger,
	})

	return e
}

func (e *engine) failPublishing(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.publishErr = err
}

func (e *engine) publishedEvents() []*service.GroupFinalizedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*service.GroupFinalizedEvent(nil), e.published...)
}

// submit sends a complete Chipotle / Student Center East intent for the user.
func (e *engine) submit(t *testing.T, userID string, w entity.TimeWindow) *entity.UserRequest {
	t.Helper()

	req, err := e.session.SubmitIntent(e.ctx, userID, entity.Intent{Restaurant: chipotle, Location: sce, Window: w})
	require.NoError(t, err)

	return req
}

// seedMatching stores a request that is already matching, without running the matcher.
func (e *engine) seedMatching(t *testing.T, userID string, w entity.TimeWindow) *entity.UserRequest {
	t.Helper()

	now := e.clock.Now()
	req := &entity.UserRequest{
		ID:             uuid.New(),
		UserID:         userID,
		Restaurant:     chipotle,
		Location:       sce,
		Window:         w,
		State:          entity.RequestStateMatching,
		ExpiresAt:      now.Add(e.cfg.Matching.WaitTimeout),
		HardExpiresAt:  now.Add(e.cfg.Matching.MaxWait),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	require.NoError(t, e.requests.Create(e.ctx, req))
	e.clock.Advance(time.Second)

	return req
}

func (e *engine) reload(t *testing.T, id uuid.UUID) *entity.UserRequest {
	t.Helper()

	req, err := e.requests.FindByID(e.ctx, id)
	require.NoError(t, err)

	return req
}

func (e *engine) openProposal(t *testing.T, requestID uuid.UUID) *entity.NegotiationProposal {
	t.Helper()

	p, err := e.negotiation.OpenProposal(e.ctx, requestID)
	require.NoError(t, err)

	return p
}

func (e *engine) respond(t *testing.T, target *entity.UserRequest, reply usecase.ProposalReply) *usecase.RoundResult {
	t.Helper()

	p := e.openProposal(t, target.ID)
	result, err := e.negotiation.Respond(e.ctx, p.ID, target.UserID, reply)
	require.NoError(t, err)

	return result
}

func accept() usecase.ProposalReply {
	return usecase.ProposalReply{Response: entity.ProposalAccepted}
}

func decline(reason string) usecase.ProposalReply {
	return usecase.ProposalReply{Response: entity.ProposalDeclined, Reason: reason}
}
