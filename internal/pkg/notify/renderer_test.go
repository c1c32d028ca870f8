package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(RendererOptions{AppName: "ClientHub", BaseURL: "https://hub.example.com"})
	require.NoError(t, err)
	return r
}

func TestRenderEveryTemplateWithEmptyPayload(t *testing.T) {
	r := newTestRenderer(t)
	for id := range templateSubjects {
		t.Run(string(id), func(t *testing.T) {
			out, err := r.Render(id, nil)
			require.NoError(t, err)
			assert.Contains(t, out, "<html")
			assert.Contains(t, out, "ClientHub")
			assert.Contains(t, out, id.DefaultSubject())
		})
	}
}

func TestRenderFallsBackToPlaceholders(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Render(TemplateFilesUploaded, map[string]interface{}{"project_name": "Website"})
	require.NoError(t, err)
	assert.Contains(t, out, "Website")
	assert.Contains(t, out, "The file list is not available.")

	out, err = r.Render(TemplateInvoiceReady, map[string]interface{}{"files": 12})
	require.NoError(t, err)
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "not set")
}

func TestRenderInterpolatesPayload(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Render(TemplateInvoiceReady, map[string]interface{}{
		"recipient_name": "Dana",
		"invoice_number": "INV-0042",
		"amount_cents":   int64(123456),
		"currency":       "eur",
		"due_date":       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		"status":         "SENT",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Hello Dana,")
	assert.Contains(t, out, "INV-0042")
	assert.Contains(t, out, "1234.56 EUR")
	assert.Contains(t, out, "Mar 1, 2026")
	assert.Contains(t, out, "sent")

	out, err = r.Render(TemplateFilesUploaded, map[string]interface{}{
		"files": []interface{}{"brief.pdf", map[string]interface{}{"filename": "logo.svg"}, nil},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<li>brief.pdf</li>")
	assert.Contains(t, out, "<li>logo.svg</li>")
}

func TestRenderEscapesPayload(t *testing.T) {
	r := newTestRenderer(t)
	out, err := r.Render(TemplateNewMessage, map[string]interface{}{"message": "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

func TestRenderUnknownTemplateUsesDefault(t *testing.T) {
	r := newTestRenderer(t)
	out, err := r.Render("weekly-newsletter", map[string]interface{}{"message": "hi there"})
	require.NoError(t, err)
	assert.Contains(t, out, "hi there")
}

func TestRenderDigestListsEveryItem(t *testing.T) {
	r := newTestRenderer(t)
	items := []Notification{
		{Subject: "Contract signed", Data: map[string]interface{}{"contract_title": "MSA"}},
		{Subject: "New message", Data: map[string]interface{}{"message": "ping"}},
		{Subject: "Files"},
	}
	out, err := r.RenderDigest(items)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "<li>"))
	assert.Contains(t, out, "Contract signed</strong>: MSA")
	assert.Contains(t, out, "New message</strong>: ping")
}

func TestAdminDirectoryMergesAndDedupes(t *testing.T) {
	users := adminListerFunc(func() ([]string, error) {
		return []string{"admin@example.com", "Ops@Example.com"}, nil
	})
	d := NewAdminDirectory(users, []string{"ops@example.com", " ", "boss@example.com"})

	emails, err := d.AdminEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@example.com", "Ops@Example.com", "boss@example.com"}, emails)
}

type adminListerFunc func() ([]string, error)

func (f adminListerFunc) ListAdminEmails(context.Context) ([]string, error) {
	return f()
}
