package billing

import (
	"time"

	"github.com/stripe/stripe-go/v76"
)

// Event is a verified Stripe event together with the tenant it was delivered for.
type Event struct {
	stripe.Event
	Tenant string
	Raw    []byte
}

// Stripe event types handled by the service.
const (
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventSubscriptionPaused       = "customer.subscription.paused"
	EventSubscriptionResumed      = "customer.subscription.resumed"
	EventSubscriptionTrialWillEnd = "customer.subscription.trial_will_end"
	EventCheckoutCompleted        = "checkout.session.completed"
	EventInvoiceFinalized         = "invoice.finalized"
	EventInvoiceSent              = "invoice.sent"
	EventInvoicePaid              = "invoice.paid"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
	EventInvoiceVoided            = "invoice.voided"
	EventInvoiceUncollectible     = "invoice.marked_uncollectible"
)

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
