package esign

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
)

func TestMapEnvelopeStatusKnownValues(t *testing.T) {
	tests := []struct {
		in           string
		want         models.ContractStatus
		template     notify.TemplateID
		notifyAdmins bool
		notifyClient bool
	}{
		{"sent", models.ContractStatusSent, "", false, false},
		{"completed", models.ContractStatusSigned, notify.TemplateContractCompleted, true, true},
		{"declined", models.ContractStatusCancelled, notify.TemplateContractUpdate, true, false},
		{"voided", models.ContractStatusCancelled, notify.TemplateContractUpdate, true, false},
		{"expired", models.ContractStatusExpired, notify.TemplateContractExpired, true, false},
		{"COMPLETED", models.ContractStatusSigned, notify.TemplateContractCompleted, true, true},
		{" Declined ", models.ContractStatusCancelled, notify.TemplateContractUpdate, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tr, ok := MapEnvelopeStatus(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.want, tr.Status)
			assert.Equal(t, tt.template, tr.Template)
			assert.Equal(t, tt.notifyAdmins, tr.NotifyAdmins)
			assert.Equal(t, tt.notifyClient, tr.NotifyClient)
		})
	}
	assert.Len(t, envelopeTransitions, 5, "every handled status needs a row above")
}

func TestMapEnvelopeStatusUnknownValues(t *testing.T) {
	for _, in := range []string{"", "created", "delivered", "signed", "authoritativecopy", "corrected", "something-new"} {
		_, ok := MapEnvelopeStatus(in)
		assert.False(t, ok, in)
	}
}

func TestTerminalStatusesHaveNoOutgoingTransition(t *testing.T) {
	for _, tr := range envelopeTransitions {
		assert.NotEqual(t, models.ContractStatusDraft, tr.Status)
	}
	assert.True(t, models.ContractStatusSigned.IsTerminal())
	assert.True(t, models.ContractStatusCancelled.IsTerminal())
	assert.True(t, models.ContractStatusExpired.IsTerminal())
	assert.False(t, models.ContractStatusSent.IsTerminal())
	assert.False(t, models.ContractStatusDraft.IsTerminal())
}
