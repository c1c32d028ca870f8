package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/billing"
	"github.com/ManuelReschke/ClientHub/internal/pkg/esign"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
	"github.com/ManuelReschke/ClientHub/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
	"github.com/ManuelReschke/ClientHub/internal/pkg/secrets"
)

// maxConnectSignatures bounds the X-DocuSign-Signature-N headers inspected.
const maxConnectSignatures = 5

type StripeApplier interface {
	Apply(ctx context.Context, ev billing.Event) (reconcile.Result, error)
}

type EnvelopeApplier interface {
	Apply(ctx context.Context, ev esign.EnvelopeEvent) (reconcile.Result, error)
}

// DeliveryJournal records webhook deliveries for duplicate detection.
type DeliveryJournal interface {
	Begin(ctx context.Context, provider, eventID, eventType string, payload []byte) (*models.WebhookEvent, bool, error)
	Finish(ctx context.Context, id uint, procErr error) error
}

type WebhookDeps struct {
	Billing       StripeApplier
	Esign         EnvelopeApplier
	Journal       DeliveryJournal
	Secrets       *secrets.Resolver
	Timeout       time.Duration
	DefaultTenant string

	// RequireConnectSignature rejects DocuSign callbacks for tenants
	// without a Connect secret.
	RequireConnectSignature bool

	// Counter is optional.
	Counter counter.Recorder
	Log     *zap.Logger
}

// WebhookController receives provider callbacks and hands verified events
// to the reconcilers.
type WebhookController struct {
	deps WebhookDeps
	log  *zap.Logger
}

func NewWebhookController(deps WebhookDeps) *WebhookController {
	if deps.Timeout <= 0 {
		deps.Timeout = 15 * time.Second
	}
	if deps.DefaultTenant == "" {
		deps.DefaultTenant = models.DefaultTenant
	}
	return &WebhookController{deps: deps, log: logger.OrNop(deps.Log).Named("webhooks")}
}

// HandleStripeWebhook verifies the Stripe-Signature over the raw body before
// anything is parsed or stored.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	tenant := wc.tenant(c)

	ctx, cancel := context.WithTimeout(c.UserContext(), wc.deps.Timeout)
	defer cancel()

	secret, err := wc.deps.Secrets.Resolve(ctx, tenant, models.SettingStripeWebhookSecret)
	if err != nil {
		return wc.fail(c, models.ProviderStripe, reconcile.Transient("stripe.secret", err))
	}

	ev, err := billing.VerifyStripeSignature(rawBody, c.Get(billing.SignatureHeader), secret)
	if err != nil {
		return wc.fail(c, models.ProviderStripe, err)
	}

	return wc.process(ctx, c, models.ProviderStripe, ev.ID, string(ev.Type), rawBody, func(ctx context.Context) (reconcile.Result, error) {
		return wc.deps.Billing.Apply(ctx, billing.Event{Event: ev, Tenant: tenant, Raw: rawBody})
	})
}

// HandleDocuSignWebhook accepts Connect callbacks. The HMAC check is skipped
// only when the tenant has no Connect secret configured and signatures are
// not required.
func (wc *WebhookController) HandleDocuSignWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	tenant := wc.tenant(c)

	ctx, cancel := context.WithTimeout(c.UserContext(), wc.deps.Timeout)
	defer cancel()

	secret, err := wc.deps.Secrets.Resolve(ctx, tenant, models.SettingDocuSignConnectSecret)
	if err != nil {
		return wc.fail(c, models.ProviderDocuSign, reconcile.Transient("docusign.secret", err))
	}
	switch {
	case secret != "":
		if err := esign.VerifyConnectSignature(rawBody, secret, connectSignatures(c)...); err != nil {
			return wc.fail(c, models.ProviderDocuSign, err)
		}
	case wc.deps.RequireConnectSignature:
		return wc.fail(c, models.ProviderDocuSign,
			reconcile.Authentication("docusign.verify", errors.New("no connect secret configured for tenant "+tenant)))
	default:
		wc.log.Warn("docusign signature check skipped, no secret configured", zap.String("tenant", tenant))
	}

	ev, err := esign.ParseEnvelopeEvent(rawBody)
	if err != nil {
		return wc.fail(c, models.ProviderDocuSign, err)
	}

	return wc.process(ctx, c, models.ProviderDocuSign, ev.EventKey(), strings.ToLower(ev.Status), rawBody, func(ctx context.Context) (reconcile.Result, error) {
		return wc.deps.Esign.Apply(ctx, ev)
	})
}

// HandleDocuSignChallenge answers the URL ownership handshake by echoing the
// challenge value.
func (wc *WebhookController) HandleDocuSignChallenge(c *fiber.Ctx) error {
	challenge := c.Query("challenge")
	if challenge == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": reconcile.KindValidation.String()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(challenge)
}

func (wc *WebhookController) process(ctx context.Context, c *fiber.Ctx, provider, eventID, eventType string, payload []byte, apply func(context.Context) (reconcile.Result, error)) error {
	stored, duplicate, err := wc.deps.Journal.Begin(ctx, provider, eventID, eventType, payload)
	if err != nil {
		return wc.fail(c, provider, err)
	}
	if duplicate {
		wc.log.Info("duplicate delivery acknowledged",
			zap.String("provider", provider), zap.String("event_id", stored.ProviderEventID))
		wc.count(ctx, provider, "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	res, err := apply(ctx)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = reconcile.Transient(provider+".apply", ctx.Err())
	}
	if ferr := wc.deps.Journal.Finish(ctx, stored.ID, err); ferr != nil {
		wc.log.Warn("journal finish failed", zap.Uint("webhook_event_id", stored.ID), zap.Error(ferr))
	}
	if err != nil {
		return wc.fail(c, provider, err)
	}

	wc.log.Info("webhook processed",
		zap.String("provider", provider), zap.String("event_type", eventType),
		zap.String("action", string(res.Action)), zap.String("entity", res.EntityType), zap.Uint("entity_id", res.EntityID))

	body := fiber.Map{"received": true, "result": res}
	outcome := "accepted"
	if res.Action == reconcile.ActionNoop && res.EntityType == "" {
		body["ignored"] = true
		outcome = "ignored"
	}
	wc.count(ctx, provider, outcome)
	return c.Status(fiber.StatusOK).JSON(body)
}

func (wc *WebhookController) fail(c *fiber.Ctx, provider string, err error) error {
	kind := reconcile.KindOf(err)
	status := reconcile.HTTPStatus(err)
	wc.count(c.UserContext(), provider, kind.String())
	fields := []zap.Field{zap.String("provider", provider), zap.String("kind", kind.String()), zap.Int("status", status), zap.Error(err)}
	if status >= fiber.StatusInternalServerError {
		wc.log.Error("webhook failed", fields...)
	} else {
		wc.log.Warn("webhook rejected", fields...)
	}
	return c.Status(status).JSON(fiber.Map{"error": kind.String()})
}

func (wc *WebhookController) count(ctx context.Context, provider, outcome string) {
	if wc.deps.Counter == nil {
		return
	}
	if err := wc.deps.Counter.Add(context.WithoutCancel(ctx), provider, outcome); err != nil {
		wc.log.Debug("count delivery", zap.Error(err))
	}
}

func (wc *WebhookController) tenant(c *fiber.Ctx) string {
	if t := strings.TrimSpace(c.Params("tenant")); t != "" {
		return t
	}
	return wc.deps.DefaultTenant
}

func connectSignatures(c *fiber.Ctx) []string {
	var sigs []string
	for i := 1; i <= maxConnectSignatures; i++ {
		if v := c.Get(esign.SignatureHeaderPrefix + strconv.Itoa(i)); v != "" {
			sigs = append(sigs, v)
		}
	}
	return sigs
}
