package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/secrets"
)

// CustomerLookup resolves the email of a Stripe customer.
type CustomerLookup interface {
	CustomerEmail(ctx context.Context, tenant, customerID string) (string, error)
}

// StripeCustomers looks customers up through the Stripe API with the tenant's
// secret key.
type StripeCustomers struct {
	secrets *secrets.Resolver
}

func NewStripeCustomers(resolver *secrets.Resolver) *StripeCustomers {
	return &StripeCustomers{secrets: resolver}
}

func (s *StripeCustomers) CustomerEmail(ctx context.Context, tenant, customerID string) (string, error) {
	key, err := s.secrets.Resolve(ctx, tenant, models.SettingStripeSecretKey)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("no stripe secret key configured")
	}

	sc := client.New(key, nil)

	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := sc.Customers.Get(customerID, params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(c.Email), nil
}
