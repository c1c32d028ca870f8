package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
)

// Enqueuer is what producers need from the queue.
type Enqueuer interface {
	Enqueue(n Notification) (string, error)
}

// TemplateRenderer renders single and digest bodies.
type TemplateRenderer interface {
	Render(id TemplateID, data map[string]interface{}) (string, error)
	RenderDigest(items []Notification) (string, error)
}

type QueueOptions struct {
	From    string
	ReplyTo string
	// SendDelay separates consecutive individual sends to the same recipient.
	SendDelay time.Duration
	// DigestThreshold is the number of grouped notifications a recipient may
	// receive individually; more than that are sent as one digest.
	DigestThreshold int
	// AutoDrain starts a background drain after every enqueue.
	AutoDrain bool
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// DrainReport summarises one drain run.
type DrainReport struct {
	Sent     int
	Digests  int
	Failed   int
	Deferred int
	Skipped  bool
}

type Stats struct {
	Pending    int  `json:"pending"`
	Processing bool `json:"processing"`
}

// Queue is an in-memory, best-effort notification queue. Items are lost if
// the process exits before a drain.
type Queue struct {
	mu         sync.Mutex
	items      []Notification
	processing bool

	renderer  TemplateRenderer
	transport Transport
	opts      QueueOptions
	log       *zap.Logger
	wg        sync.WaitGroup
	// bg scopes background drains; stop cancels them.
	bg   context.Context
	stop context.CancelFunc
}

func NewQueue(renderer TemplateRenderer, transport Transport, log *zap.Logger, opts QueueOptions) *Queue {
	if opts.DigestThreshold <= 0 {
		opts.DigestThreshold = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	bg, stop := context.WithCancel(context.Background())
	return &Queue{
		renderer:  renderer,
		transport: transport,
		opts:      opts,
		log:       logger.OrNop(log).Named("notify"),
		bg:        bg,
		stop:      stop,
	}
}

// Enqueue validates n, assigns an id and appends it.
func (q *Queue) Enqueue(n Notification) (string, error) {
	if err := n.normalize(); err != nil {
		return "", fmt.Errorf("enqueue notification: %w", err)
	}
	n.ID = uuid.NewString()
	n.CreatedAt = q.opts.Now()

	q.mu.Lock()
	q.items = append(q.items, n)
	start := q.opts.AutoDrain && !q.processing
	q.mu.Unlock()

	q.log.Debug("notification queued",
		zap.String("id", n.ID), zap.String("template", string(n.Template)), zap.String("priority", string(n.Priority)))

	if start {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.drainUntilIdle(q.bg)
		}()
	}
	return n.ID, nil
}

// Pending returns a copy of the queued notifications.
func (q *Queue) Pending() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pending: len(q.items), Processing: q.processing}
}

// Wait blocks until background drains started by Enqueue have finished or
// ctx is done. On ctx expiry the running drains are cancelled, their unsent
// items count as failed, and ctx.Err() is returned.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.stop()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) drainUntilIdle(ctx context.Context) {
	for {
		report := q.Drain(ctx)
		if report.Skipped || !q.hasDue() {
			return
		}
	}
}

func (q *Queue) hasDue() bool {
	now := q.opts.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].due(now) {
			return true
		}
	}
	return false
}

// Drain processes the items queued when it starts. High priority items go
// first in enqueue order, the rest are grouped per recipient. Items added
// during the run and items scheduled for later stay queued. Send failures are
// logged and never retried.
func (q *Queue) Drain(ctx context.Context) DrainReport {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return DrainReport{Skipped: true}
	}
	q.processing = true
	snapshot := append([]Notification(nil), q.items...)
	q.mu.Unlock()

	now := q.opts.Now()
	var due []Notification
	report := DrainReport{}
	for _, n := range snapshot {
		if n.due(now) {
			due = append(due, n)
		} else {
			report.Deferred++
		}
	}

	q.process(ctx, due, &report)

	done := make(map[string]struct{}, len(due))
	for _, n := range due {
		done[n.ID] = struct{}{}
	}
	q.mu.Lock()
	kept := make([]Notification, 0, len(q.items))
	for _, n := range q.items {
		if _, ok := done[n.ID]; !ok {
			kept = append(kept, n)
		}
	}
	q.items = kept
	q.processing = false
	q.mu.Unlock()

	if len(due) > 0 {
		q.log.Info("notification queue drained",
			zap.Int("sent", report.Sent), zap.Int("digests", report.Digests),
			zap.Int("failed", report.Failed), zap.Int("deferred", report.Deferred))
	}
	return report
}

func (q *Queue) process(ctx context.Context, due []Notification, report *DrainReport) {
	var order []string
	groups := make(map[string][]Notification)

	for _, n := range due {
		if n.Priority == PriorityHigh {
			q.sendOne(ctx, n, report)
			continue
		}
		k := recipientKey(n.To)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], n)
	}

	for _, k := range order {
		batch := groups[k]
		if len(batch) > q.opts.DigestThreshold {
			q.sendDigest(ctx, batch, report)
			continue
		}
		for i, n := range batch {
			if i > 0 && q.opts.SendDelay > 0 {
				if err := q.opts.Sleep(ctx, q.opts.SendDelay); err != nil {
					report.Failed += len(batch) - i
					q.log.Warn("notification drain interrupted", zap.Error(err), zap.Int("dropped", len(batch)-i))
					break
				}
			}
			q.sendOne(ctx, n, report)
		}
	}
}

func (q *Queue) sendOne(ctx context.Context, n Notification, report *DrainReport) {
	body, err := q.renderer.Render(n.Template, n.Data)
	if err != nil {
		report.Failed++
		q.log.Error("render notification", zap.String("id", n.ID), zap.String("template", string(n.Template)), zap.Error(err))
		return
	}
	if err := q.deliver(ctx, n.To, n.Subject, body); err != nil {
		report.Failed++
		q.log.Error("send notification", zap.String("id", n.ID), zap.String("to", n.To), zap.Error(err))
		return
	}
	report.Sent++
}

func (q *Queue) sendDigest(ctx context.Context, batch []Notification, report *DrainReport) {
	to := batch[0].To
	body, err := q.renderer.RenderDigest(batch)
	if err != nil {
		report.Failed += len(batch)
		q.log.Error("render digest", zap.String("to", to), zap.Error(err))
		return
	}
	subject := fmt.Sprintf("You have %d new notifications", len(batch))
	if err := q.deliver(ctx, to, subject, body); err != nil {
		report.Failed += len(batch)
		q.log.Error("send digest", zap.String("to", to), zap.Int("items", len(batch)), zap.Error(err))
		return
	}
	report.Sent++
	report.Digests++
}

func (q *Queue) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.transport.Send(ctx, Message{
		From:    q.opts.From,
		To:      to,
		ReplyTo: q.opts.ReplyTo,
		Subject: subject,
		HTML:    body,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
