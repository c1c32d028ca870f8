package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/locker"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

// Deps are the collaborators of the billing service. Customers is optional.
type Deps struct {
	Locker    locker.Locker
	Notifier  notify.Enqueuer
	Admins    notify.AdminSource
	Customers CustomerLookup
	Log       *zap.Logger
	BaseURL   string
	Now       func() time.Time
}

// Service reconciles Stripe events with local subscriptions, users and invoices.
type Service struct {
	repo Repository
	deps Deps
	log  *zap.Logger
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, deps Deps) *Service {
	if deps.Locker == nil {
		deps.Locker = locker.NewMemoryLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{repo: repo, deps: deps, log: logger.OrNop(deps.Log).Named("billing")}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, deps Deps) *Service {
	return NewService(NewRepository(db), deps)
}

var errInvoiceChanged = errors.New("invoice status changed concurrently")

// Apply dispatches a verified event. Unhandled event types are acknowledged
// as no-ops.
func (s *Service) Apply(ctx context.Context, ev Event) (reconcile.Result, error) {
	typ := string(ev.Type)
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return reconcile.Result{}, reconcile.Validation("stripe.apply", errors.New("event has no data object"))
	}

	switch typ {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventSubscriptionPaused, EventSubscriptionResumed, EventSubscriptionTrialWillEnd:
		return s.applySubscription(ctx, ev)
	case EventCheckoutCompleted:
		return s.applyCheckout(ctx, ev)
	}
	if _, ok := invoiceTransitions[typ]; ok {
		return s.applyInvoice(ctx, ev)
	}

	s.log.Debug("stripe event ignored", zap.String("type", typ), zap.String("event_id", ev.ID))
	return reconcile.Noop(models.ProviderStripe, typ, "unhandled event type"), nil
}

func (s *Service) applySubscription(ctx context.Context, ev Event) (reconcile.Result, error) {
	const op = "stripe.subscription"
	typ := string(ev.Type)

	var sub stripe.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
		return reconcile.Result{}, reconcile.Validation(op, err)
	}
	if strings.TrimSpace(sub.ID) == "" {
		return reconcile.Result{}, reconcile.Validation(op, errors.New("subscription id is required"))
	}

	unlock, err := s.deps.Locker.Lock(ctx, "stripe:subscription:"+sub.ID)
	if err != nil {
		return reconcile.Result{}, reconcile.Transient(op, err)
	}
	defer unlock()

	existing, err := s.repo.FindSubscription(ctx, models.ProviderStripe, sub.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return reconcile.Result{}, reconcile.Transient(op, err)
	}

	customerID := ""
	customerEmail := sub.Metadata["email"]
	if sub.Customer != nil {
		customerID = sub.Customer.ID
		if sub.Customer.Email != "" {
			customerEmail = sub.Customer.Email
		}
	}

	var userID uint
	if existing != nil {
		userID = existing.UserID
	} else {
		user, err := s.resolveUser(ctx, ev.Tenant, customerID, customerEmail)
		if err != nil {
			return reconcile.Result{}, reconcile.Classify(op, fmt.Errorf("user for subscription %s: %w", sub.ID, err))
		}
		userID = user.ID
	}

	status := MapSubscriptionStatus(string(sub.Status))
	if typ == EventSubscriptionDeleted {
		status = models.SubscriptionStatusCancelled
	}

	row := &models.Subscription{
		UserID:                 userID,
		Provider:               models.ProviderStripe,
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     customerID,
		Status:                 status,
		CurrentPeriodStart:     unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixPtr(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             unixPtr(sub.CanceledAt),
		TrialStart:             unixPtr(sub.TrialStart),
		TrialEnd:               unixPtr(sub.TrialEnd),
		RawPayloadJSON:         string(ev.Data.Raw),
	}
	if row.ProviderCustomerID == "" && existing != nil {
		row.ProviderCustomerID = existing.ProviderCustomerID
	}

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		if err := repo.UpsertSubscription(ctx, row); err != nil {
			return err
		}
		desc := fmt.Sprintf("Subscription %s is now %s (%s)", sub.ID, status, typ)
		if existing != nil && existing.Status != status {
			desc = fmt.Sprintf("Subscription %s moved from %s to %s (%s)", sub.ID, existing.Status, status, typ)
		}
		return repo.CreateActivity(ctx, models.NewActivity(
			"subscription."+strings.ToLower(string(status)), desc, models.ProviderStripe, models.EntitySubscription, row.ID))
	})
	if err != nil {
		return reconcile.Result{}, reconcile.Classify(op, err)
	}

	action := reconcile.ActionUpdated
	if existing == nil {
		action = reconcile.ActionCreated
	}
	s.log.Info("subscription reconciled",
		zap.String("subscription_id", sub.ID), zap.Uint("user_id", userID),
		zap.String("status", string(status)), zap.String("action", string(action)))

	return reconcile.Result{
		Provider:   models.ProviderStripe,
		EventType:  typ,
		EntityType: models.EntitySubscription,
		EntityID:   row.ID,
		Status:     string(status),
		Action:     action,
	}, nil
}

// resolveUser finds the account for a Stripe customer: by linked customer id,
// then by email (from the event or the Stripe API). A match by email links
// the customer id to the account.
func (s *Service) resolveUser(ctx context.Context, tenant, customerID, email string) (*models.User, error) {
	users := s.repo.Users()

	if customerID != "" {
		u, err := users.GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if strings.TrimSpace(email) == "" && customerID != "" && s.deps.Customers != nil {
		looked, err := s.deps.Customers.CustomerEmail(ctx, tenant, customerID)
		if err != nil {
			s.log.Warn("stripe customer lookup failed", zap.String("customer_id", customerID), zap.Error(err))
		}
		email = looked
	}
	if strings.TrimSpace(email) == "" {
		return nil, gorm.ErrRecordNotFound
	}

	u, err := users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if customerID != "" && u.StripeCustomerID == nil {
		if err := users.LinkStripeCustomer(ctx, u.ID, customerID); err != nil {
			return nil, err
		}
		u.StripeCustomerID = &customerID
	}
	return u, nil
}

// applyCheckout provisions the account on first checkout: the user is found
// by email or created, and the session's subscription is recorded if it is
// not known yet.
func (s *Service) applyCheckout(ctx context.Context, ev Event) (reconcile.Result, error) {
	const op = "stripe.checkout"
	typ := string(ev.Type)

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return reconcile.Result{}, reconcile.Validation(op, err)
	}

	email, name := cs.CustomerEmail, ""
	if cs.CustomerDetails != nil {
		if cs.CustomerDetails.Email != "" {
			email = cs.CustomerDetails.Email
		}
		name = cs.CustomerDetails.Name
	}
	customerID := ""
	if cs.Customer != nil {
		customerID = cs.Customer.ID
		if email == "" {
			email = cs.Customer.Email
		}
	}
	if email == "" {
		email = cs.Metadata["email"]
	}
	email = models.NormalizeEmail(email)
	if email == "" {
		return reconcile.Result{}, reconcile.Validation(op, errors.New("checkout session has no customer email"))
	}

	unlock, err := s.deps.Locker.Lock(ctx, "stripe:checkout:"+email)
	if err != nil {
		return reconcile.Result{}, reconcile.Transient(op, err)
	}
	defer unlock()

	subscriptionID := ""
	if cs.Subscription != nil {
		subscriptionID = cs.Subscription.ID
	}
	if subscriptionID != "" {
		unlockSub, err := s.deps.Locker.Lock(ctx, "stripe:subscription:"+subscriptionID)
		if err != nil {
			return reconcile.Result{}, reconcile.Transient(op, err)
		}
		defer unlockSub()
	}
	status := models.SubscriptionStatusIncomplete
	if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		status = models.SubscriptionStatusActive
	}

	var (
		user        *models.User
		userCreated bool
		subRow      *models.Subscription
	)
	err = s.repo.Transaction(ctx, func(repo Repository) error {
		users := repo.Users()
		u, err := users.GetByEmail(ctx, email)
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			u, err = models.NewProvisionedUser(email, name, models.ProviderStripe)
			if err != nil {
				return reconcile.Validation(op, err)
			}
			if customerID != "" {
				u.StripeCustomerID = &customerID
			}
			if err := users.Create(ctx, u); err != nil {
				return err
			}
			userCreated = true
		default:
			return err
		}

		if !userCreated && customerID != "" && u.StripeCustomerID == nil {
			if err := users.LinkStripeCustomer(ctx, u.ID, customerID); err != nil {
				return err
			}
			u.StripeCustomerID = &customerID
		}
		user = u

		if subscriptionID != "" {
			_, err := repo.FindSubscription(ctx, models.ProviderStripe, subscriptionID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := &models.Subscription{
					UserID:                 u.ID,
					Provider:               models.ProviderStripe,
					ProviderSubscriptionID: subscriptionID,
					ProviderCustomerID:     customerID,
					Status:                 status,
					RawPayloadJSON:         string(ev.Data.Raw),
				}
				created, err := repo.CreateSubscriptionIfAbsent(ctx, row)
				if err != nil {
					return err
				}
				if created {
					subRow = row
				}
			case err != nil:
				return err
			}
		}

		desc := fmt.Sprintf("Checkout %s completed for %s", cs.ID, email)
		if userCreated {
			desc = fmt.Sprintf("Checkout %s completed, account provisioned for %s", cs.ID, email)
		}
		return repo.CreateActivity(ctx, models.NewActivity("checkout.completed", desc, models.ProviderStripe, models.EntityUser, u.ID))
	})
	if err != nil {
		return reconcile.Result{}, reconcile.Classify(op, err)
	}

	s.log.Info("checkout reconciled",
		zap.String("session_id", cs.ID), zap.Uint("user_id", user.ID),
		zap.Bool("user_created", userCreated), zap.Bool("subscription_created", subRow != nil))

	res := reconcile.Result{
		Provider:   models.ProviderStripe,
		EventType:  typ,
		EntityType: models.EntityUser,
		EntityID:   user.ID,
		Action:     reconcile.ActionUpdated,
	}
	if subRow != nil {
		res.EntityType, res.EntityID, res.Status = models.EntitySubscription, subRow.ID, string(subRow.Status)
	}
	if userCreated || subRow != nil {
		res.Action = reconcile.ActionCreated
	}
	return res, nil
}

func (s *Service) applyInvoice(ctx context.Context, ev Event) (reconcile.Result, error) {
	const op = "stripe.invoice"
	typ := string(ev.Type)
	tr := invoiceTransitions[typ]

	var inv stripe.Invoice
	if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
		return reconcile.Result{}, reconcile.Validation(op, err)
	}
	if strings.TrimSpace(inv.ID) == "" {
		return reconcile.Result{}, reconcile.Validation(op, errors.New("invoice id is required"))
	}

	unlock, err := s.deps.Locker.Lock(ctx, "stripe:invoice:"+inv.ID)
	if err != nil {
		return reconcile.Result{}, reconcile.Transient(op, err)
	}
	defer unlock()

	local, err := s.repo.FindInvoiceByExternalID(ctx, inv.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) && inv.Subscription != nil && inv.Subscription.ID != "" {
		// Subscription renewals are billed by Stripe and have no local invoice.
		return reconcile.Noop(models.ProviderStripe, typ, "subscription invoice not tracked locally"), nil
	}
	if err != nil {
		return reconcile.Result{}, reconcile.Classify(op, fmt.Errorf("invoice %s: %w", inv.ID, err))
	}

	result := reconcile.Result{
		Provider:   models.ProviderStripe,
		EventType:  typ,
		EntityType: models.EntityInvoice,
		EntityID:   local.ID,
		Status:     string(local.Status),
		Action:     reconcile.ActionNoop,
	}
	if local.Status == tr.Status {
		result.Reason = "status unchanged"
		return result, nil
	}
	if invoiceIsTerminal(local.Status) {
		result.Reason = "invoice is terminal"
		return result, nil
	}

	now := s.deps.Now().UTC()
	at := now
	if tr.Status == models.InvoiceStatusPaid && inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		at = time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
	}

	from := local.Status
	err = s.repo.Transaction(ctx, func(repo Repository) error {
		changed, err := repo.UpdateInvoiceStatus(ctx, local.ID, from, tr.Status, at)
		if err != nil {
			return err
		}
		if !changed {
			return errInvoiceChanged
		}
		return repo.CreateActivity(ctx, models.NewActivity(
			tr.Activity,
			fmt.Sprintf("Invoice %s moved from %s to %s (%s)", local.Number, from, tr.Status, typ),
			models.ProviderStripe,
			models.EntityInvoice,
			local.ID,
		))
	})
	if errors.Is(err, errInvoiceChanged) {
		result.Reason = errInvoiceChanged.Error()
		return result, nil
	}
	if err != nil {
		return reconcile.Result{}, reconcile.Classify(op, err)
	}

	s.log.Info("invoice reconciled",
		zap.String("invoice", local.Number), zap.String("external_id", inv.ID),
		zap.String("from", string(from)), zap.String("to", string(tr.Status)))

	local.Status = tr.Status
	s.notifyInvoice(ctx, local, tr)

	result.Status = string(tr.Status)
	result.Action = reconcile.ActionUpdated
	return result, nil
}

func (s *Service) notifyInvoice(ctx context.Context, inv *models.Invoice, tr invoiceTransition) {
	if s.deps.Notifier == nil || tr.Notify == audienceNone {
		return
	}

	data := map[string]interface{}{
		"invoice_number": inv.Number,
		"amount_cents":   inv.TotalCents,
		"currency":       inv.Currency,
		"status":         string(inv.Status),
		"link":           fmt.Sprintf("%s/invoices/%d", strings.TrimRight(s.deps.BaseURL, "/"), inv.ID),
	}
	if inv.DueAt != nil {
		data["due_date"] = *inv.DueAt
	}

	var recipients []string
	switch tr.Notify {
	case audienceClient:
		if inv.Client != nil && inv.Client.Email != "" {
			recipients = append(recipients, inv.Client.Email)
			data["recipient_name"] = inv.Client.Name
		}
	case audienceAdmins:
		if s.deps.Admins != nil {
			admins, err := s.deps.Admins.AdminEmails(ctx)
			if err != nil {
				s.log.Warn("list admin recipients", zap.Error(err))
			}
			recipients = admins
		}
		data["heading"] = fmt.Sprintf("Invoice %s is %s", inv.Number, strings.ToLower(string(inv.Status)))
		data["message"] = fmt.Sprintf("Stripe reported invoice %s as %s.", inv.Number, strings.ToLower(string(inv.Status)))
	}

	for _, to := range recipients {
		if _, err := s.deps.Notifier.Enqueue(notify.Notification{
			To:       to,
			Template: tr.Template,
			Subject:  fmt.Sprintf("Invoice %s: %s", inv.Number, strings.ToLower(string(inv.Status))),
			Data:     data,
			Priority: notify.PriorityNormal,
		}); err != nil {
			s.log.Warn("enqueue invoice notification", zap.String("to", to), zap.Error(err))
		}
	}
}
