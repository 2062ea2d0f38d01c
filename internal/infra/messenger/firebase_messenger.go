package messenger

import (
	"context"
	"log/slog"
	"strings"

	"huddle/internal/domain/service"
	"huddle/internal/errors"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const pushTitle = "Huddle"

// topicSender is the part of the FCM client the messenger uses.
type topicSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// firebaseMessenger pushes messages to a per-user FCM topic.
type firebaseMessenger struct {
	client      topicSender
	topicPrefix string
	logger      *slog.Logger
}

// NewFirebaseMessenger creates a new Firebase push messenger instance
func NewFirebaseMessenger(ctx context.Context, credentialsPath, topicPrefix string, logger *slog.Logger) (service.Messenger, error) {
	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Firebase app")
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get messaging client")
	}

	return &firebaseMessenger{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger,
	}, nil
}

func (m *firebaseMessenger) Send(ctx context.Context, userID, text string) error {
	message := &messaging.Message{
		Topic: m.topic(userID),
		Notification: &messaging.Notification{
			Title: pushTitle,
			Body:  text,
		},
		Data: map[string]string{"user_id": userID},
	}

	id, err := m.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			m.logger.Warn("[Firebase] Topic rejected", slog.String("topic", message.Topic))
		}

		return errors.Wrap(service.ErrDeliveryFailed, err.Error())
	}

	m.logger.Debug("[Firebase] Message sent", slog.String("user_id", userID), slog.String("message_id", id))

	return nil
}

// topic maps a user ID onto the FCM topic charset [a-zA-Z0-9-_.~%].
func (m *firebaseMessenger) topic(userID string) string {
	var b strings.Builder
	b.WriteString(m.topicPrefix)
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
