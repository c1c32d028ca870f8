package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/app/repository"
	"github.com/ManuelReschke/ClientHub/internal/pkg/database/databasetest"
	"github.com/ManuelReschke/ClientHub/internal/pkg/locker"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

type fakeCustomers struct {
	emails map[string]string
	calls  int
}

func (f *fakeCustomers) CustomerEmail(_ context.Context, _, customerID string) (string, error) {
	f.calls++
	if e, ok := f.emails[customerID]; ok {
		return e, nil
	}
	return "", errors.New("no such customer")
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	queue     *notify.Queue
	customers *fakeCustomers
	admin     *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.Open(t)

	admin := &models.User{Name: "Admin", Email: "admin@example.com", Role: models.ROLE_ADMIN}
	require.NoError(t, db.Create(admin).Error)

	renderer, err := notify.NewRenderer(notify.RendererOptions{})
	require.NoError(t, err)
	queue := notify.NewQueue(renderer, notify.TransportFunc(func(context.Context, notify.Message) error { return nil }), nil, notify.QueueOptions{})
	customers := &fakeCustomers{emails: map[string]string{}}

	svc := NewServiceFromDB(db, Deps{
		Locker:    locker.NewMemoryLocker(),
		Notifier:  queue,
		Admins:    notify.NewAdminDirectory(repository.NewUserRepository(db), nil),
		Customers: customers,
		BaseURL:   "https://hub.example.com",
		Now:       func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	return &fixture{db: db, svc: svc, queue: queue, customers: customers, admin: admin}
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func stripeEvent(t *testing.T, id, typ string, object interface{}) Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return Event{Event: stripe.Event{
		ID:   id,
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{Raw: raw},
	}}
}

func subscriptionObject(id, customer, status string, extra map[string]interface{}) map[string]interface{} {
	obj := map[string]interface{}{
		"id":       id,
		"object":   "subscription",
		"customer": customer,
		"status":   status,
	}
	for k, v := range extra {
		obj[k] = v
	}
	return obj
}

func TestTrialingSubscriptionLinksExistingUser(t *testing.T) {
	f := newFixture(t)
	client := &models.User{Name: "Dana", Email: "Dana@Example.com", Role: models.ROLE_CLIENT}
	require.NoError(t, f.db.Create(client).Error)
	f.customers.emails["cus_1"] = "dana@example.com"

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	ev := stripeEvent(t, "evt_1", EventSubscriptionCreated, subscriptionObject("sub_1", "cus_1", "trialing", map[string]interface{}{
		"current_period_start": start.Unix(),
		"current_period_end":   end.Unix(),
		"trial_start":          start.Unix(),
		"trial_end":            end.Unix(),
	}))

	res, err := f.svc.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionCreated, res.Action)
	assert.Equal(t, string(models.SubscriptionStatusTrialing), res.Status)

	assert.EqualValues(t, 2, f.count(t, &models.User{}), "no duplicate user")

	var sub models.Subscription
	require.NoError(t, f.db.First(&sub).Error)
	assert.Equal(t, client.ID, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	assert.Equal(t, "cus_1", sub.ProviderCustomerID)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, start.Equal(*sub.CurrentPeriodStart))
	assert.True(t, end.Equal(*sub.CurrentPeriodEnd))
	require.NotNil(t, sub.TrialEnd)

	var linked models.User
	require.NoError(t, f.db.First(&linked, client.ID).Error)
	require.NotNil(t, linked.StripeCustomerID)
	assert.Equal(t, "cus_1", *linked.StripeCustomerID)
	assert.EqualValues(t, 1, f.count(t, &models.Activity{}))
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	cus := "cus_2"
	client := &models.User{Name: "Eve", Email: "eve@example.com", Role: models.ROLE_CLIENT, StripeCustomerID: &cus}
	require.NoError(t, f.db.Create(client).Error)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, stripeEvent(t, "evt_1", EventSubscriptionCreated, subscriptionObject("sub_2", cus, "active", nil)))
	require.NoError(t, err)
	assert.Zero(t, f.customers.calls, "linked customer needs no lookup")

	res, err := f.svc.Apply(ctx, stripeEvent(t, "evt_2", EventSubscriptionUpdated, subscriptionObject("sub_2", cus, "past_due", nil)))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionUpdated, res.Action)
	assert.Equal(t, string(models.SubscriptionStatusPastDue), res.Status)

	res, err = f.svc.Apply(ctx, stripeEvent(t, "evt_3", EventSubscriptionDeleted, subscriptionObject("sub_2", cus, "active", nil)))
	require.NoError(t, err)
	assert.Equal(t, string(models.SubscriptionStatusCancelled), res.Status)

	assert.EqualValues(t, 1, f.count(t, &models.Subscription{}))
	var sub models.Subscription
	require.NoError(t, f.db.First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.EqualValues(t, 3, f.count(t, &models.Activity{}))
}

func TestSubscriptionWithoutKnownUserIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventSubscriptionCreated, subscriptionObject("sub_9", "cus_9", "active", nil)))
	require.Error(t, err)
	assert.True(t, reconcile.IsKind(err, reconcile.KindNotFound), "got %v", err)
	assert.Equal(t, 1, f.customers.calls)
	assert.EqualValues(t, 0, f.count(t, &models.Subscription{}))
}

func TestSubscriptionEventWithoutIDIsValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventSubscriptionUpdated, map[string]interface{}{"object": "subscription"}))
	assert.True(t, reconcile.IsKind(err, reconcile.KindValidation), "got %v", err)
}

func TestCheckoutProvisionsUserAndSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := map[string]interface{}{
		"id":             "cs_1",
		"object":         "checkout.session",
		"customer":       "cus_3",
		"subscription":   "sub_3",
		"payment_status": "paid",
		"customer_details": map[string]interface{}{
			"email": "New.Client@Example.com",
			"name":  "New Client",
		},
	}

	res, err := f.svc.Apply(ctx, stripeEvent(t, "evt_1", EventCheckoutCompleted, session))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionCreated, res.Action)
	assert.Equal(t, models.EntitySubscription, res.EntityType)

	var user models.User
	require.NoError(t, f.db.Where("email = ?", "new.client@example.com").First(&user).Error)
	assert.Equal(t, models.ROLE_CLIENT, user.Role)
	assert.Equal(t, models.ProviderStripe, user.ProvisionedBy)
	require.NotNil(t, user.StripeCustomerID)
	assert.Equal(t, "cus_3", *user.StripeCustomerID)

	var sub models.Subscription
	require.NoError(t, f.db.First(&sub).Error)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	// A replayed session does not create a second user or subscription.
	_, err = f.svc.Apply(ctx, stripeEvent(t, "evt_2", EventCheckoutCompleted, session))
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.count(t, &models.User{}))
	assert.EqualValues(t, 1, f.count(t, &models.Subscription{}))
}

func TestCheckoutWithoutEmailIsValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventCheckoutCompleted, map[string]interface{}{"id": "cs_2", "object": "checkout.session"}))
	assert.True(t, reconcile.IsKind(err, reconcile.KindValidation), "got %v", err)
	assert.EqualValues(t, 1, f.count(t, &models.User{}))
}

func newInvoice(t *testing.T, f *fixture, status models.InvoiceStatus) *models.Invoice {
	t.Helper()
	client := &models.User{Name: "Finn", Email: "finn@example.com", Role: models.ROLE_CLIENT}
	require.NoError(t, f.db.Create(client).Error)
	ext := "in_1"
	inv := &models.Invoice{Number: "INV-2026-001", ClientID: client.ID, Currency: "EUR", TotalCents: 123456, Status: status, ExternalInvoiceID: &ext}
	require.NoError(t, f.db.Create(inv).Error)
	return inv
}

func invoiceObject(id string) map[string]interface{} {
	return map[string]interface{}{"id": id, "object": "invoice"}
}

func TestInvoiceFinalizedNotifiesClient(t *testing.T) {
	f := newFixture(t)
	inv := newInvoice(t, f, models.InvoiceStatusDraft)

	res, err := f.svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventInvoiceFinalized, invoiceObject("in_1")))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionUpdated, res.Action)
	assert.Equal(t, inv.ID, res.EntityID)

	var got models.Invoice
	require.NoError(t, f.db.First(&got, inv.ID).Error)
	assert.Equal(t, models.InvoiceStatusSent, got.Status)
	assert.NotNil(t, got.SentAt)

	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "finn@example.com", pending[0].To)
	assert.Equal(t, notify.TemplateInvoiceReady, pending[0].Template)
	assert.Equal(t, "https://hub.example.com/invoices/1", pending[0].Data["link"])
}

func TestInvoicePaidIsTerminal(t *testing.T) {
	f := newFixture(t)
	inv := newInvoice(t, f, models.InvoiceStatusSent)
	ctx := context.Background()

	paidAt := time.Date(2026, 4, 30, 8, 0, 0, 0, time.UTC)
	obj := invoiceObject("in_1")
	obj["status_transitions"] = map[string]interface{}{"paid_at": paidAt.Unix()}

	_, err := f.svc.Apply(ctx, stripeEvent(t, "evt_1", EventInvoicePaid, obj))
	require.NoError(t, err)

	var got models.Invoice
	require.NoError(t, f.db.First(&got, inv.ID).Error)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(*got.PaidAt))

	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "admin@example.com", pending[0].To)

	res, err := f.svc.Apply(ctx, stripeEvent(t, "evt_2", EventInvoicePaymentFailed, invoiceObject("in_1")))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionNoop, res.Action)
	assert.Equal(t, "invoice is terminal", res.Reason)

	require.NoError(t, f.db.First(&got, inv.ID).Error)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
	assert.EqualValues(t, 1, f.count(t, &models.Activity{}))
}

func TestInvoiceUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, stripeEvent(t, "evt_1", EventInvoicePaid, invoiceObject("in_404")))
	assert.True(t, reconcile.IsKind(err, reconcile.KindNotFound), "got %v", err)

	obj := invoiceObject("in_405")
	obj["subscription"] = "sub_1"
	res, err := f.svc.Apply(ctx, stripeEvent(t, "evt_2", EventInvoicePaid, obj))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionNoop, res.Action)
}

func TestUnhandledEventIsNoop(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Apply(context.Background(), stripeEvent(t, "evt_1", "charge.refunded", map[string]interface{}{"id": "ch_1"}))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionNoop, res.Action)
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) { return nil, locker.ErrNotAcquired }

func TestBusyLockIsTransient(t *testing.T) {
	db := databasetest.Open(t)
	svc := NewServiceFromDB(db, Deps{Locker: busyLocker{}})

	_, err := svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventInvoicePaid, invoiceObject("in_1")))
	assert.True(t, reconcile.IsKind(err, reconcile.KindTransient), "got %v", err)
}

// staleRepo misses subscriptions on lookup, as a reader racing a concurrent
// subscription delivery would.
type staleRepo struct {
	Repository
}

func (staleRepo) FindSubscription(context.Context, string, string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r staleRepo) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.Repository.Transaction(ctx, func(tx Repository) error {
		return fn(staleRepo{Repository: tx})
	})
}

func TestCheckoutKeepsSubscriptionWrittenBySubscriptionEvent(t *testing.T) {
	f := newFixture(t)
	cus := "cus_7"
	client := &models.User{Name: "Gil", Email: "gil@example.com", Role: models.ROLE_CLIENT, StripeCustomerID: &cus}
	require.NoError(t, f.db.Create(client).Error)
	ctx := context.Background()

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	_, err := f.svc.Apply(ctx, stripeEvent(t, "evt_1", EventSubscriptionCreated, subscriptionObject("sub_7", cus, "trialing", map[string]interface{}{
		"current_period_start": start.Unix(),
		"current_period_end":   end.Unix(),
		"trial_start":          start.Unix(),
		"trial_end":            end.Unix(),
	})))
	require.NoError(t, err)

	svc := NewService(staleRepo{Repository: NewRepository(f.db)}, f.svc.deps)
	res, err := svc.Apply(ctx, stripeEvent(t, "evt_2", EventCheckoutCompleted, map[string]interface{}{
		"id":             "cs_7",
		"object":         "checkout.session",
		"customer":       cus,
		"subscription":   "sub_7",
		"payment_status": "paid",
		"customer_email": "gil@example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionUpdated, res.Action)
	assert.Equal(t, models.EntityUser, res.EntityType)

	assert.EqualValues(t, 1, f.count(t, &models.Subscription{}))
	var sub models.Subscription
	require.NoError(t, f.db.First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.NotNil(t, sub.TrialEnd)
	assert.True(t, end.Equal(*sub.CurrentPeriodEnd))
	assert.Contains(t, sub.RawPayloadJSON, `"trialing"`)
}

type recordingLocker struct {
	keys []string
}

func (r *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	r.keys = append(r.keys, key)
	return func() {}, nil
}

func TestCheckoutLocksSubscription(t *testing.T) {
	f := newFixture(t)
	rec := &recordingLocker{}
	deps := f.svc.deps
	deps.Locker = rec
	svc := NewServiceFromDB(f.db, deps)

	_, err := svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventCheckoutCompleted, map[string]interface{}{
		"id":             "cs_8",
		"object":         "checkout.session",
		"subscription":   "sub_8",
		"payment_status": "unpaid",
		"customer_email": "hal@example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"stripe:checkout:hal@example.com", "stripe:subscription:sub_8"}, rec.keys)

	var sub models.Subscription
	require.NoError(t, f.db.First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusIncomplete, sub.Status)
}

func TestSubscriptionWriteFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	cus := "cus_9"
	client := &models.User{Name: "Ivo", Email: "ivo@example.com", Role: models.ROLE_CLIENT, StripeCustomerID: &cus}
	require.NoError(t, f.db.Create(client).Error)
	require.NoError(t, f.db.Migrator().DropTable(&models.Activity{}))

	_, err := f.svc.Apply(context.Background(), stripeEvent(t, "evt_1", EventSubscriptionCreated, subscriptionObject("sub_9", cus, "active", nil)))
	require.Error(t, err)
	assert.True(t, reconcile.IsKind(err, reconcile.KindTransient), "got %v", err)
	assert.Equal(t, 503, reconcile.HTTPStatus(err))
	assert.EqualValues(t, 0, f.count(t, &models.Subscription{}), "rolled back")
}
