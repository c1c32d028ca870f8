package notify

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/template/html/v2"
)

//go:embed templates
var templatesFS embed.FS

const layoutName = "layouts/email"

type RendererOptions struct {
	AppName string
	BaseURL string
}

// Renderer turns a template id and a loosely typed payload into an HTML body.
type Renderer struct {
	engine *html.Engine
	opts   RendererOptions
}

func NewRenderer(opts RendererOptions) (*Renderer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	if opts.AppName == "" {
		opts.AppName = "ClientHub"
	}
	return &Renderer{engine: engine, opts: opts}, nil
}

// Render renders the template for id, falling back to the default template
// for ids outside the known set. Missing payload fields render placeholders.
func (r *Renderer) Render(id TemplateID, data map[string]interface{}) (string, error) {
	if !id.Known() {
		id = TemplateDefault
	}
	v := r.buildView(id, data)

	var buf bytes.Buffer
	if err := r.engine.Render(&buf, "emails/"+string(id), v, layoutName); err != nil {
		return "", fmt.Errorf("render %s: %w", id, err)
	}
	return buf.String(), nil
}

// RenderDigest renders one message summarising several notifications.
func (r *Renderer) RenderDigest(items []Notification) (string, error) {
	return r.Render(TemplateDigest, map[string]interface{}{"items": items})
}

type digestItem struct {
	Subject string
	Summary string
}

// view is the binding every template sees. All fields are always present so
// templates never fail on a sparse payload.
type view struct {
	AppName       string
	BaseURL       string
	Heading       string
	Greeting      string
	ProjectName   string
	Message       string
	SenderName    string
	MilestoneName string
	InvoiceNumber string
	Amount        string
	DueDate       string
	ContractTitle string
	Status        string
	Link          string
	Files         []string
	Updates       []string
	Items         []digestItem
}

func (r *Renderer) buildView(id TemplateID, data map[string]interface{}) view {
	v := view{
		AppName:       r.opts.AppName,
		BaseURL:       r.opts.BaseURL,
		Heading:       stringOr(data, id.DefaultSubject(), "heading", "subject"),
		Greeting:      "Hello,",
		ProjectName:   stringOr(data, "your project", "project_name", "project"),
		Message:       stringOr(data, "", "message", "body"),
		SenderName:    stringOr(data, "Someone", "sender_name", "sender"),
		MilestoneName: stringOr(data, "a milestone", "milestone_name", "milestone"),
		InvoiceNumber: stringOr(data, "n/a", "invoice_number"),
		Amount:        formatAmount(data),
		DueDate:       formatDate(data, "due_date"),
		ContractTitle: stringOr(data, "your contract", "contract_title", "contract"),
		Status:        strings.ToLower(stringOr(data, "updated", "status")),
		Link:          stringOr(data, r.opts.BaseURL, "link", "url"),
		Files:         stringList(data, "files"),
		Updates:       stringList(data, "updates"),
		Items:         digestItems(data),
	}
	if name := stringOr(data, "", "recipient_name", "name"); name != "" {
		v.Greeting = fmt.Sprintf("Hello %s,", name)
	}
	return v
}

func stringOr(data map[string]interface{}, def string, keys ...string) string {
	for _, k := range keys {
		if s := toString(data[k]); s != "" {
			return s
		}
	}
	return def
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	case map[string]interface{}:
		return stringOr(t, "", "name", "title", "filename")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func stringList(data map[string]interface{}, key string) []string {
	var out []string
	switch t := data[key].(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range t {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatAmount(data map[string]interface{}) string {
	currency := strings.ToUpper(stringOr(data, "", "currency"))
	var cents int64
	switch t := data["amount_cents"].(type) {
	case int:
		cents = int64(t)
	case int64:
		cents = t
	case float64:
		cents = int64(t)
	default:
		if s := stringOr(data, "", "amount"); s != "" {
			return strings.TrimSpace(s + " " + currency)
		}
		return "n/a"
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency))
}

func formatDate(data map[string]interface{}, key string) string {
	switch t := data[key].(type) {
	case time.Time:
		return t.Format("Jan 2, 2006")
	case *time.Time:
		if t != nil {
			return t.Format("Jan 2, 2006")
		}
	default:
		if s := toString(t); s != "" {
			return s
		}
	}
	return "not set"
}

func digestItems(data map[string]interface{}) []digestItem {
	var out []digestItem
	switch t := data["items"].(type) {
	case []Notification:
		for _, n := range t {
			out = append(out, digestItem{Subject: n.Subject, Summary: summarize(n.Data)})
		}
	case []map[string]interface{}:
		for _, m := range t {
			out = append(out, digestItem{Subject: stringOr(m, "Notification", "subject"), Summary: summarize(m)})
		}
	case []interface{}:
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, digestItem{Subject: stringOr(m, "Notification", "subject"), Summary: summarize(m)})
			} else if s := toString(item); s != "" {
				out = append(out, digestItem{Subject: s})
			}
		}
	}
	return out
}

func summarize(data map[string]interface{}) string {
	return stringOr(data, "", "message", "contract_title", "milestone_name", "invoice_number", "project_name")
}
