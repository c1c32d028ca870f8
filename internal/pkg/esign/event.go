package esign

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

// EnvelopeEvent is a validated envelope status callback.
type EnvelopeEvent struct {
	EnvelopeID  string `validate:"required,max=191"`
	Status      string `validate:"required,max=64"`
	SignerName  string
	SignerEmail string
	OccurredAt  *time.Time
	Raw         []byte
}

// EventKey identifies the delivery for the webhook journal. A replayed
// status for the same envelope maps to the same key.
func (e EnvelopeEvent) EventKey() string {
	return e.EnvelopeID + ":" + strings.ToLower(e.Status)
}

// connectPayload covers both the flat callback shape and the Connect JSON
// (SIM) shape.
type connectPayload struct {
	// flat
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`

	// Connect
	Event             string       `json:"event"`
	GeneratedDateTime *time.Time   `json:"generatedDateTime"`
	Data              *connectData `json:"data"`
}

type connectData struct {
	EnvelopeID      string           `json:"envelopeId"`
	EnvelopeSummary *envelopeSummary `json:"envelopeSummary"`
}

type envelopeSummary struct {
	Status            string     `json:"status"`
	CompletedDateTime *time.Time `json:"completedDateTime"`
	Recipients        struct {
		Signers []struct {
			Name           string     `json:"name"`
			Email          string     `json:"email"`
			Status         string     `json:"status"`
			SignedDateTime *time.Time `json:"signedDateTime"`
		} `json:"signers"`
	} `json:"recipients"`
}

var validate = validator.New()

// ParseEnvelopeEvent decodes and validates a callback body. Malformed input
// fails with a validation error.
func ParseEnvelopeEvent(payload []byte) (EnvelopeEvent, error) {
	const op = "docusign.parse"

	var p connectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return EnvelopeEvent{}, reconcile.Validation(op, err)
	}

	ev := EnvelopeEvent{
		EnvelopeID: strings.TrimSpace(p.EnvelopeID),
		Status:     strings.TrimSpace(p.Status),
		OccurredAt: p.GeneratedDateTime,
		Raw:        payload,
	}

	if p.Data != nil {
		if ev.EnvelopeID == "" {
			ev.EnvelopeID = strings.TrimSpace(p.Data.EnvelopeID)
		}
		if sum := p.Data.EnvelopeSummary; sum != nil {
			if ev.Status == "" {
				ev.Status = strings.TrimSpace(sum.Status)
			}
			if sum.CompletedDateTime != nil {
				ev.OccurredAt = sum.CompletedDateTime
			}
			for _, s := range sum.Recipients.Signers {
				if ev.SignerEmail == "" || strings.EqualFold(s.Status, "completed") {
					ev.SignerName = strings.TrimSpace(s.Name)
					ev.SignerEmail = strings.TrimSpace(s.Email)
				}
			}
		}
	}
	// "envelope-completed" carries the status when the summary is omitted.
	if ev.Status == "" && strings.HasPrefix(p.Event, "envelope-") {
		ev.Status = strings.TrimPrefix(p.Event, "envelope-")
	}

	if err := validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return EnvelopeEvent{}, reconcile.Validation(op, errors.New(verrs[0].Field()+" is "+verrs[0].Tag()))
		}
		return EnvelopeEvent{}, reconcile.Validation(op, err)
	}
	return ev, nil
}
