package impl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/service"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const broadcastParallelism = 4

// notifier hands outbound messages to the Messenger. Delivery failures are logged and
// never change the outcome of the operation that produced the message.
type notifier struct {
	messenger service.Messenger
	logger    *slog.Logger
}

func newNotifier(messenger service.Messenger, logger *slog.Logger) *notifier {
	return &notifier{messenger: messenger, logger: logger}
}

func (n *notifier) send(ctx context.Context, userID, text string) {
	if n == nil || n.messenger == nil || text == "" {
		return
	}

	if err := n.messenger.Send(ctx, userID, text); err != nil {
		deliverycontext.GetLoggerOrDefault(ctx, n.logger).Warn("Failed to deliver message",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}

// broadcast sends one composed message per user concurrently and waits for all of them.
func (n *notifier) broadcast(ctx context.Context, userIDs []string, compose func(userID string) string) {
	var g errgroup.Group
	g.SetLimit(broadcastParallelism)

	for _, userID := range userIDs {
		g.Go(func() error {
			n.send(ctx, userID, compose(userID))

			return nil
		})
	}

	_ = g.Wait()
}

// actionLinks builds signed links that let a user act on a proposal or request by tapping.
type actionLinks struct {
	tokens  service.ActionTokenService
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger
}

func (l *actionLinks) link(ctx context.Context, userID, action string, subject uuid.UUID) string {
	if l == nil {
		return ""
	}

	return l.linkFor(ctx, userID, action, subject, l.ttl)
}

// linkFor issues a link valid for ttl, or for the configured TTL when that is longer.
func (l *actionLinks) linkFor(ctx context.Context, userID, action string, subject uuid.UUID, ttl time.Duration) string {
	if l == nil || l.tokens == nil || l.baseURL == "" {
		return ""
	}
	ttl = max(ttl, l.ttl)

	token, err := l.tokens.Issue(userID, action, subject, ttl)
	if err != nil {
		deliverycontext.GetLoggerOrDefault(ctx, l.logger).Warn("Failed to issue action link",
			slog.String("user_id", userID), slog.String("action", action), slog.Any("error", err))

		return ""
	}

	return strings.TrimRight(l.baseURL, "/") + "/a/" + url.PathEscape(token)
}
