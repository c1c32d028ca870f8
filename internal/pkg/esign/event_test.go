package esign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

func TestParseFlatPayload(t *testing.T) {
	ev, err := ParseEnvelopeEvent([]byte(`{"envelopeId":" env-1 ","status":"Declined"}`))
	require.NoError(t, err)
	assert.Equal(t, "env-1", ev.EnvelopeID)
	assert.Equal(t, "Declined", ev.Status)
	assert.Equal(t, "env-1:declined", ev.EventKey())
}

func TestParseConnectPayload(t *testing.T) {
	payload := []byte(`{
		"event": "envelope-completed",
		"generatedDateTime": "2026-05-01T10:00:00Z",
		"data": {
			"envelopeId": "env-2",
			"envelopeSummary": {
				"status": "completed",
				"completedDateTime": "2026-05-01T09:59:00Z",
				"recipients": {"signers": [
					{"name": "Viewer", "email": "cc@example.com", "status": "sent"},
					{"name": "Dana Client", "email": "dana@example.com", "status": "completed"}
				]}
			}
		}
	}`)

	ev, err := ParseEnvelopeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "env-2", ev.EnvelopeID)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, "Dana Client", ev.SignerName)
	assert.Equal(t, "dana@example.com", ev.SignerEmail)
	require.NotNil(t, ev.OccurredAt)
	assert.Equal(t, 59, ev.OccurredAt.Minute())
	assert.Equal(t, payload, ev.Raw)
}

func TestParseConnectPayloadStatusFromEventName(t *testing.T) {
	ev, err := ParseEnvelopeEvent([]byte(`{"event":"envelope-voided","data":{"envelopeId":"env-3"}}`))
	require.NoError(t, err)
	assert.Equal(t, "voided", ev.Status)
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `envelope=1`,
		"missing id":     `{"status":"sent"}`,
		"missing status": `{"envelopeId":"env-1"}`,
		"wrong type":     `{"envelopeId":42,"status":"sent"}`,
		"empty object":   `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelopeEvent([]byte(body))
			assert.True(t, reconcile.IsKind(err, reconcile.KindValidation), "got %v", err)
		})
	}
}
