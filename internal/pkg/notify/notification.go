package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type TemplateID string

const (
	TemplateProjectUpdate      TemplateID = "project-update"
	TemplateNewMessage         TemplateID = "new-message"
	TemplateMilestoneCompleted TemplateID = "milestone-completed"
	TemplateInvoiceReady       TemplateID = "invoice-ready"
	TemplateContractPending    TemplateID = "contract-pending"
	TemplateContractCompleted  TemplateID = "contract-completed"
	TemplateContractExpired    TemplateID = "contract-expired"
	TemplateContractUpdate     TemplateID = "contract-update"
	TemplateFilesUploaded      TemplateID = "files-uploaded"
	TemplateDigest             TemplateID = "digest"
	TemplateDefault            TemplateID = "default"
)

// templateSubjects holds the fallback subject for every known template.
var templateSubjects = map[TemplateID]string{
	TemplateProjectUpdate:      "Project update",
	TemplateNewMessage:         "You have a new message",
	TemplateMilestoneCompleted: "Milestone completed",
	TemplateInvoiceReady:       "Your invoice is ready",
	TemplateContractPending:    "A contract is waiting for your signature",
	TemplateContractCompleted:  "Contract signed",
	TemplateContractExpired:    "Contract expired",
	TemplateContractUpdate:     "Contract status changed",
	TemplateFilesUploaded:      "New files uploaded",
	TemplateDigest:             "Your notification digest",
	TemplateDefault:            "Notification",
}

// Known reports whether id belongs to the closed template set.
func (id TemplateID) Known() bool {
	_, ok := templateSubjects[id]
	return ok
}

func (id TemplateID) DefaultSubject() string {
	if s, ok := templateSubjects[id]; ok {
		return s
	}
	return templateSubjects[TemplateDefault]
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Notification is a queued request to email one recipient.
type Notification struct {
	ID        string                 `json:"id"`
	To        string                 `json:"to" validate:"required,email"`
	Template  TemplateID             `json:"template" validate:"required"`
	Subject   string                 `json:"subject" validate:"max=255"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  Priority               `json:"priority" validate:"oneof=high normal low"`
	SendAt    *time.Time             `json:"send_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

var validate = validator.New()

// normalize fills defaults and validates the request.
func (n *Notification) normalize() error {
	n.To = strings.TrimSpace(n.To)
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if strings.TrimSpace(n.Subject) == "" {
		n.Subject = n.Template.DefaultSubject()
	}
	if err := validate.Struct(n); err != nil {
		return err
	}
	if !n.Template.Known() {
		return fmt.Errorf("unknown template %q", n.Template)
	}
	return nil
}

func (n *Notification) due(now time.Time) bool {
	return n.SendAt == nil || !n.SendAt.After(now)
}

func recipientKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
