package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const appName = "storefront-backend"

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client is a keyed Stripe API handle. It does not touch the package-level
// stripe.Key, so tests and multiple clients can coexist.
type Client struct {
	env            string
	signingSecret  string
	paymentIntents *paymentintent.Client
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q is not test or live", env)
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("stripe api key is required")
	}
	if !hasAnyPrefix(key, prefixes) {
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", env, strings.Join(prefixes, " or "))
	}

	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})
	c := &Client{
		env:           env,
		signingSecret: strings.TrimSpace(cfg.WebhookSecret),
		paymentIntents: &paymentintent.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: key,
		},
	}

	if logg != nil {
		ctx = logg.WithField(ctx, "stripe_env", env)
		logg.Info(ctx, "stripe client ready")
		if c.signingSecret == "" {
			logg.Warn(ctx, "stripe webhook secret not set, webhook signatures will not be verified")
		}
	}
	return c, nil
}

// PaymentIntents returns the PaymentIntents API bound to this client's key.
func (c *Client) PaymentIntents() *paymentintent.Client {
	return c.paymentIntents
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// SigningSecret returns the webhook signing secret, possibly empty.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
