package billing

import (
	"strings"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
)

// subscriptionStatuses holds one entry per known Stripe subscription status.
var subscriptionStatuses = map[string]models.SubscriptionStatus{
	"active":             models.SubscriptionStatusActive,
	"past_due":           models.SubscriptionStatusPastDue,
	"canceled":           models.SubscriptionStatusCancelled,
	"incomplete":         models.SubscriptionStatusIncomplete,
	"incomplete_expired": models.SubscriptionStatusIncomplete,
	"trialing":           models.SubscriptionStatusTrialing,
	"paused":             models.SubscriptionStatusPaused,
}

// MapSubscriptionStatus maps a Stripe subscription status. Unknown values
// map to INCOMPLETE.
func MapSubscriptionStatus(status string) models.SubscriptionStatus {
	if s, ok := subscriptionStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
		return s
	}
	return models.SubscriptionStatusIncomplete
}

type invoiceAudience int

const (
	audienceNone invoiceAudience = iota
	audienceClient
	audienceAdmins
)

// invoiceTransition is what a Stripe invoice event does to the internal invoice.
type invoiceTransition struct {
	Status   models.InvoiceStatus
	Activity string
	Notify   invoiceAudience
	Template notify.TemplateID
}

var invoiceTransitions = map[string]invoiceTransition{
	EventInvoiceFinalized:        {models.InvoiceStatusSent, "invoice.sent", audienceClient, notify.TemplateInvoiceReady},
	EventInvoiceSent:             {models.InvoiceStatusSent, "invoice.sent", audienceClient, notify.TemplateInvoiceReady},
	EventInvoicePaid:             {models.InvoiceStatusPaid, "invoice.paid", audienceAdmins, notify.TemplateDefault},
	EventInvoicePaymentSucceeded: {models.InvoiceStatusPaid, "invoice.paid", audienceAdmins, notify.TemplateDefault},
	EventInvoicePaymentFailed:    {models.InvoiceStatusOverdue, "invoice.payment_failed", audienceAdmins, notify.TemplateDefault},
	EventInvoiceVoided:           {models.InvoiceStatusCancelled, "invoice.voided", audienceNone, ""},
	EventInvoiceUncollectible:    {models.InvoiceStatusCancelled, "invoice.uncollectible", audienceNone, ""},
}

// MapInvoiceEvent maps an invoice event type to the internal invoice status.
func MapInvoiceEvent(eventType string) (models.InvoiceStatus, bool) {
	t, ok := invoiceTransitions[eventType]
	return t.Status, ok
}

func invoiceIsTerminal(s models.InvoiceStatus) bool {
	return s == models.InvoiceStatusPaid || s == models.InvoiceStatusCancelled
}
