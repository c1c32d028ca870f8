package billing

import (
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

// SignatureHeader carries the t=...,v1=... signature over the raw body.
const SignatureHeader = "Stripe-Signature"

// VerifyStripeSignature checks the signature over the exact bytes received and
// decodes the event. Signature problems are authentication errors; a body
// that is signed but not an event is a validation error.
func VerifyStripeSignature(payload []byte, header, secret string) (stripe.Event, error) {
	const op = "stripe.verify"

	if strings.TrimSpace(secret) == "" {
		return stripe.Event{}, reconcile.Authentication(op, errors.New("no webhook secret configured"))
	}

	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return stripe.Event{}, reconcile.Authentication(op, err)
		default:
			return stripe.Event{}, reconcile.Validation(op, err)
		}
	}
	if ev.Type == "" {
		return stripe.Event{}, reconcile.Validation(op, errors.New("event type is missing"))
	}
	return ev, nil
}
