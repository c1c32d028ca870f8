package esign

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/archive"
	"github.com/ManuelReschke/ClientHub/internal/pkg/locker"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

// Deps are the collaborators of the e-signature service. Archive is optional.
type Deps struct {
	Locker   locker.Locker
	Notifier notify.Enqueuer
	Admins   notify.AdminSource
	Archive  archive.Archiver
	Log      *zap.Logger
	// BaseURL prefixes contract links in notifications.
	BaseURL string
	Now     func() time.Time
}

// Service applies envelope status events to contracts.
type Service struct {
	repo Repository
	deps Deps
	log  *zap.Logger
}

// NewService creates an e-signature service from an injected repository.
func NewService(repo Repository, deps Deps) *Service {
	if deps.Locker == nil {
		deps.Locker = locker.NewMemoryLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{repo: repo, deps: deps, log: logger.OrNop(deps.Log).Named("esign")}
}

// NewServiceFromDB creates an e-signature service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, deps Deps) *Service {
	return NewService(NewRepository(db), deps)
}

var errStatusChanged = errors.New("contract status changed concurrently")

// Apply transitions the contract bound to the event's envelope. Terminal
// contracts and repeated statuses are accepted without side effects.
func (s *Service) Apply(ctx context.Context, ev EnvelopeEvent) (reconcile.Result, error) {
	const op = "docusign.apply"
	eventType := "envelope-" + strings.ToLower(ev.Status)

	if strings.TrimSpace(ev.EnvelopeID) == "" {
		return reconcile.Result{}, reconcile.Validation(op, errors.New("envelope id is required"))
	}

	tr, ok := MapEnvelopeStatus(ev.Status)
	if !ok {
		s.log.Info("envelope status ignored", zap.String("envelope_id", ev.EnvelopeID), zap.String("status", ev.Status))
		return reconcile.Noop(models.ProviderDocuSign, eventType, "unhandled envelope status"), nil
	}

	unlock, err := s.deps.Locker.Lock(ctx, "envelope:"+ev.EnvelopeID)
	if err != nil {
		return reconcile.Result{}, reconcile.Transient(op, err)
	}
	defer unlock()

	contract, err := s.repo.FindContractByEnvelopeID(ctx, ev.EnvelopeID)
	if err != nil {
		return reconcile.Result{}, reconcile.Classify(op, fmt.Errorf("contract for envelope %s: %w", ev.EnvelopeID, err))
	}

	result := reconcile.Result{
		Provider:   models.ProviderDocuSign,
		EventType:  eventType,
		EntityType: models.EntityContract,
		EntityID:   contract.ID,
		Status:     string(contract.Status),
	}
	if contract.Status.IsTerminal() {
		result.Action, result.Reason = reconcile.ActionNoop, "contract is terminal"
		s.log.Info("event for terminal contract ignored",
			zap.Uint("contract_id", contract.ID), zap.String("status", string(contract.Status)), zap.String("event", eventType))
		return result, nil
	}
	if contract.Status == tr.Status {
		result.Action, result.Reason = reconcile.ActionNoop, "status unchanged"
		return result, nil
	}

	now := s.deps.Now().UTC()
	from := contract.Status
	var signature *models.Signature
	err = s.repo.Transaction(ctx, func(repo Repository) error {
		changed, err := repo.UpdateContractStatus(ctx, contract.ID, from, tr.Status, now)
		if err != nil {
			return err
		}
		if !changed {
			return errStatusChanged
		}

		if tr.Status == models.ContractStatusSigned {
			sig := s.buildSignature(contract, ev, now)
			created, err := repo.CreateSignatureIfAbsent(ctx, sig)
			if err != nil {
				return err
			}
			if created {
				signature = sig
			}
		}

		return repo.CreateActivity(ctx, models.NewActivity(
			tr.Activity,
			fmt.Sprintf("Contract %q moved from %s to %s (envelope %s)", contract.Title, from, tr.Status, ev.EnvelopeID),
			models.ProviderDocuSign,
			models.EntityContract,
			contract.ID,
		))
	})
	if errors.Is(err, errStatusChanged) {
		result.Action, result.Reason = reconcile.ActionNoop, errStatusChanged.Error()
		return result, nil
	}
	if err != nil {
		return reconcile.Result{}, reconcile.Classify(op, err)
	}

	s.log.Info("contract transitioned",
		zap.Uint("contract_id", contract.ID), zap.String("envelope_id", ev.EnvelopeID),
		zap.String("from", string(from)), zap.String("to", string(tr.Status)))

	if signature != nil {
		s.archive(ctx, signature, ev)
	}
	contract.Status = tr.Status
	s.notify(ctx, contract, tr)

	result.Status = string(tr.Status)
	result.Action = reconcile.ActionUpdated
	return result, nil
}

// archive stores the signed envelope once its signature is committed. A
// failed upload leaves the signature without an archive URI.
func (s *Service) archive(ctx context.Context, sig *models.Signature, ev EnvelopeEvent) {
	if s.deps.Archive == nil || len(ev.Raw) == 0 {
		return
	}
	uri, err := s.deps.Archive.ArchiveEnvelope(ctx, models.ProviderDocuSign, ev.EnvelopeID, ev.Raw)
	if err != nil {
		s.log.Warn("archive envelope", zap.String("envelope_id", ev.EnvelopeID), zap.Error(err))
		return
	}
	if err := s.repo.SetSignatureArchiveURI(ctx, sig.ID, uri); err != nil {
		s.log.Warn("record archive uri", zap.Uint("signature_id", sig.ID), zap.String("uri", uri), zap.Error(err))
	}
}

func (s *Service) buildSignature(c *models.Contract, ev EnvelopeEvent, now time.Time) *models.Signature {
	name, email := ev.SignerName, ev.SignerEmail
	if email == "" && c.Client != nil {
		name, email = c.Client.Name, c.Client.Email
	}
	signedAt := now
	if ev.OccurredAt != nil {
		signedAt = ev.OccurredAt.UTC()
	}

	sum := sha256.Sum256(ev.Raw)
	provenance, _ := json.Marshal(map[string]interface{}{
		"provider":    models.ProviderDocuSign,
		"envelope_id": ev.EnvelopeID,
		"status":      ev.Status,
		"received_at": now.Format(time.RFC3339),
	})

	return &models.Signature{
		ContractID:     c.ID,
		EnvelopeID:     ev.EnvelopeID,
		Provider:       models.ProviderDocuSign,
		SignerName:     name,
		SignerEmail:    email,
		SignedAt:       signedAt,
		PayloadSHA256:  hex.EncodeToString(sum[:]),
		ProvenanceJSON: string(provenance),
	}
}

// notify runs after commit. Failures are logged; the transition stands.
func (s *Service) notify(ctx context.Context, c *models.Contract, tr Transition) {
	if s.deps.Notifier == nil || tr.Template == "" {
		return
	}

	var recipients []string
	if tr.NotifyAdmins && s.deps.Admins != nil {
		admins, err := s.deps.Admins.AdminEmails(ctx)
		if err != nil {
			s.log.Warn("list admin recipients", zap.Error(err))
		}
		recipients = append(recipients, admins...)
	}
	if tr.NotifyClient && c.Client != nil && c.Client.Email != "" {
		recipients = append(recipients, c.Client.Email)
	}

	data := map[string]interface{}{
		"contract_title": c.Title,
		"status":         string(tr.Status),
		"link":           fmt.Sprintf("%s/contracts/%d", strings.TrimRight(s.deps.BaseURL, "/"), c.ID),
	}
	for _, to := range recipients {
		if _, err := s.deps.Notifier.Enqueue(notify.Notification{
			To:       to,
			Template: tr.Template,
			Data:     data,
			Priority: tr.Priority,
		}); err != nil {
			s.log.Warn("enqueue contract notification", zap.String("to", to), zap.Error(err))
		}
	}
}
