package esign

import (
	"strings"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
)

// Transition is what an envelope status does to its contract.
type Transition struct {
	Status       models.ContractStatus
	Activity     string
	Template     notify.TemplateID
	Priority     notify.Priority
	NotifyAdmins bool
	NotifyClient bool
}

// envelopeTransitions holds one entry per handled envelope status.
var envelopeTransitions = map[string]Transition{
	"sent": {
		Status:   models.ContractStatusSent,
		Activity: "contract.sent",
	},
	"completed": {
		Status:       models.ContractStatusSigned,
		Activity:     "contract.signed",
		Template:     notify.TemplateContractCompleted,
		Priority:     notify.PriorityHigh,
		NotifyAdmins: true,
		NotifyClient: true,
	},
	"declined": {
		Status:       models.ContractStatusCancelled,
		Activity:     "contract.declined",
		Template:     notify.TemplateContractUpdate,
		Priority:     notify.PriorityNormal,
		NotifyAdmins: true,
	},
	"voided": {
		Status:       models.ContractStatusCancelled,
		Activity:     "contract.voided",
		Template:     notify.TemplateContractUpdate,
		Priority:     notify.PriorityNormal,
		NotifyAdmins: true,
	},
	"expired": {
		Status:       models.ContractStatusExpired,
		Activity:     "contract.expired",
		Template:     notify.TemplateContractExpired,
		Priority:     notify.PriorityNormal,
		NotifyAdmins: true,
	},
}

// MapEnvelopeStatus maps a provider envelope status, case-insensitively.
// ok is false for statuses that cause no transition.
func MapEnvelopeStatus(status string) (Transition, bool) {
	t, ok := envelopeTransitions[strings.ToLower(strings.TrimSpace(status))]
	return t, ok
}
