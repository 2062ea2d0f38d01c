package payment

import (
	"context"
	"testing"

	"huddle/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkProvider_PaymentLink(t *testing.T) {
	provider, err := NewLinkProvider(&config.Config{Payment: &config.PaymentConfig{
		GroupLink: "https://buy.stripe.com/group-350",
		SoloLink:  "https://buy.stripe.com/solo-450?prefilled_promo_code=LUNCH",
	}})
	require.NoError(t, err)

	tests := []struct {
		name string
		size int
		want string
	}{
		{"pair", 2, "https://buy.stripe.com/group-350?client_reference_id=g-1"},
		{"trio", 3, "https://buy.stripe.com/group-350?client_reference_id=g-1"},
		{"solo keeps existing query", 1, "https://buy.stripe.com/solo-450?client_reference_id=g-1&prefilled_promo_code=LUNCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := provider.PaymentLink(context.Background(), "g-1", tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, link)
		})
	}

	_, err = provider.PaymentLink(context.Background(), "g-1", 0)
	assert.Error(t, err)
}

func TestNewLinkProvider_RequiresLinks(t *testing.T) {
	_, err := NewLinkProvider(&config.Config{})
	assert.Error(t, err)

	_, err = NewLinkProvider(&config.Config{Payment: &config.PaymentConfig{GroupLink: "https://a"}})
	assert.Error(t, err)
}
