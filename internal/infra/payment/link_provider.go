// Package payment issues the payment links sent to handed-off members.
package payment

import (
	"context"
	"net/url"

	"huddle/config"
	"huddle/internal/domain/service"
	"huddle/internal/errors"
)

// linkProvider hands out preconfigured payment links, one price for members of a group and
// one for solo orders. The group ID travels as the client reference for reconciliation.
type linkProvider struct {
	groupLink *url.URL
	soloLink  *url.URL
}

// NewLinkProvider creates the payment provider from configuration.
func NewLinkProvider(cfg *config.Config) (service.PaymentProvider, error) {
	if cfg.Payment == nil || cfg.Payment.GroupLink == "" || cfg.Payment.SoloLink == "" {
		return nil, errors.New("payment group and solo links are required")
	}

	group, err := url.Parse(cfg.Payment.GroupLink)
	if err != nil {
		return nil, errors.Wrap(err, "invalid group payment link")
	}
	solo, err := url.Parse(cfg.Payment.SoloLink)
	if err != nil {
		return nil, errors.Wrap(err, "invalid solo payment link")
	}

	return &linkProvider{groupLink: group, soloLink: solo}, nil
}

func (p *linkProvider) PaymentLink(_ context.Context, groupID string, groupSize int) (string, error) {
	if groupSize < 1 {
		return "", errors.Errorf("invalid group size %d", groupSize)
	}

	base := p.soloLink
	if groupSize > 1 {
		base = p.groupLink
	}

	link := *base
	query := link.Query()
	if groupID != "" {
		query.Set("client_reference_id", groupID)
	}
	link.RawQuery = query.Encode()

	return link.String(), nil
}
