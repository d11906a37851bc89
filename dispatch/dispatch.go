// Package dispatch implements bulk fan-out of a messaging payload over a
// recipient list. Sends are strictly sequential with a configured pause
// between them: the pacing exists to stay under the messaging network's abuse
// detection, and concurrency would defeat it. Small batches run in the
// caller's context and return a full per-recipient report; large batches are
// accepted immediately and continue in the background under a Job handle.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/storage"
	"github.com/rfakhoury/wagate/tenant"
)

var (
	// ErrNoRecipients means no recipient survived normalization.
	ErrNoRecipients = errors.New("no valid recipients; expected international form like 9613578883 or a local mobile like 3578883")
	// ErrEmptyPayload means there is neither text nor media to send.
	ErrEmptyPayload = errors.New("empty payload")
)

const (
	defaultBackgroundThreshold = 10
	defaultDelay               = 500 * time.Millisecond
	// snapshotTTL bounds how long finished-job status stays queryable.
	snapshotTTL = 24 * time.Hour
)

// Dispatcher runs bulk sends for already-ready driver handles. It never
// touches session state.
type Dispatcher struct {
	store storage.Store
	log   *slog.Logger

	backgroundThreshold int
	defaultDelay        time.Duration
	countryCode         string
	domainSuffix        string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithBackgroundThreshold sets the batch size above which Submit detaches.
func WithBackgroundThreshold(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.backgroundThreshold = n
		}
	}
}

// WithDefaultDelay sets the inter-send pause used when a request names none.
func WithDefaultDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.defaultDelay = delay
		}
	}
}

// WithCountryCode overrides the default country code applied to local
// mobile numbers.
func WithCountryCode(cc string) DispatcherOption {
	return func(d *Dispatcher) {
		if cc != "" {
			d.countryCode = cc
		}
	}
}

// WithDomainSuffix overrides the canonical recipient suffix.
func WithDomainSuffix(suffix string) DispatcherOption {
	return func(d *Dispatcher) {
		if suffix != "" {
			d.domainSuffix = suffix
		}
	}
}

// NewDispatcher builds a Dispatcher persisting job snapshots to store.
func NewDispatcher(store storage.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:               store,
		log:                 slog.Default(),
		backgroundThreshold: defaultBackgroundThreshold,
		defaultDelay:        defaultDelay,
		countryCode:         DefaultCountryCode,
		domainSuffix:        DefaultDomainSuffix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Request is one bulk send.
type Request struct {
	Tenant     tenant.ID
	Recipients []string
	// Text is the message body, or the fallback body when Media is set.
	Text string
	// Media, when set, is sent to each recipient with Caption.
	Media   *driver.Media
	Caption string
	// Delay overrides the dispatcher's default inter-send pause.
	Delay time.Duration
	// Cleanup, when set, runs exactly once after the send loop finishes,
	// regardless of outcome. The temporary-attachment lifecycle hangs off it.
	Cleanup func()
}

// Outcome is one recipient's result.
type Outcome struct {
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report aggregates a finished (or partially finished) batch.
type Report struct {
	JobID     string    `json:"jobId"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Submit validates and runs a bulk request against handle. At most one of
// the first two returns is non-nil: a Report when the batch ran in the
// foreground, or a Job when the batch exceeded the background threshold and
// was detached. The background loop survives cancellation of ctx; only
// Job.Cancel stops it.
func (d *Dispatcher) Submit(ctx context.Context, handle driver.Handle, req Request) (*Report, *Job, error) {
	if req.Text == "" && req.Media == nil {
		return nil, nil, ErrEmptyPayload
	}
	recipients := normalizeAll(req.Recipients, d.countryCode, d.domainSuffix)
	if len(recipients) == 0 {
		return nil, nil, ErrNoRecipients
	}
	delay := req.Delay
	if delay <= 0 {
		delay = d.defaultDelay
	}

	job := newJob(req.Tenant, len(recipients), delay)

	if len(recipients) <= d.backgroundThreshold {
		report := d.run(ctx, handle, job, recipients, req)
		return report, nil, nil
	}

	// Detach from the caller: the batch must not die with the request that
	// submitted it. Cancellation is available only through the job handle.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job.cancel = cancel
	go func() {
		defer cancel()
		d.run(runCtx, handle, job, recipients, req)
	}()

	d.log.InfoContext(ctx, "bulk dispatch accepted",
		slog.String("tenant", req.Tenant.String()),
		slog.String("job", job.ID),
		slog.Int("recipients", len(recipients)),
		slog.Duration("estimate", job.Estimate))
	return nil, job, nil
}

// run executes the sequential send loop, recording outcomes on the job and
// persisting a snapshot after every send.
func (d *Dispatcher) run(ctx context.Context, handle driver.Handle, job *Job, recipients []string, req Request) *Report {
	if req.Cleanup != nil {
		defer req.Cleanup()
	}
	defer job.finish()

	for i, recipient := range recipients {
		if i > 0 {
			select {
			case <-ctx.Done():
				job.markCancelled(recipients[i:])
				d.persist(job)
				return job.Report()
			case <-time.After(job.Delay):
			}
		}

		res, err := d.sendOne(ctx, handle, recipient, req)
		if err != nil {
			job.record(Outcome{Recipient: recipient, Error: err.Error()})
			d.log.WarnContext(ctx, "bulk send failed",
				slog.String("tenant", req.Tenant.String()),
				slog.String("job", job.ID),
				slog.String("recipient", recipient),
				slog.String("error", err.Error()))
		} else {
			job.record(Outcome{Recipient: recipient, Success: true, MessageID: res.MessageID})
		}
		d.persist(job)
	}

	job.complete()
	d.persist(job)
	report := job.Report()
	d.log.Info("bulk dispatch finished",
		slog.String("tenant", req.Tenant.String()),
		slog.String("job", job.ID),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed))
	return report
}

func (d *Dispatcher) sendOne(ctx context.Context, handle driver.Handle, recipient string, req Request) (*driver.SendResult, error) {
	if req.Media != nil {
		return handle.SendMedia(ctx, recipient, *req.Media, req.Caption)
	}
	return handle.SendText(ctx, recipient, req.Text)
}

// persist writes the job's current snapshot; a storage failure degrades
// status visibility but never the batch itself.
func (d *Dispatcher) persist(job *Job) {
	if d.store == nil {
		return
	}
	snap := job.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		d.log.Warn("encode job snapshot", slog.String("job", job.ID), slog.String("error", err.Error()))
		return
	}
	err = d.store.Set(context.Background(), "snapshot", raw,
		storage.WithTenantJob(job.Tenant.String(), job.ID), storage.WithTTL(snapshotTTL))
	if err != nil {
		d.log.Warn("persist job snapshot", slog.String("job", job.ID), slog.String("error", err.Error()))
	}
}

// JobStatus loads the persisted snapshot for a tenant's job. It works for
// jobs started by other instances when the store is shared.
func (d *Dispatcher) JobStatus(ctx context.Context, id tenant.ID, jobID string) (*JobSnapshot, error) {
	if d.store == nil {
		return nil, fmt.Errorf("job status unavailable: no snapshot store configured")
	}
	item, err := d.store.Get(ctx, "snapshot", storage.WithTenantJob(id.String(), jobID))
	if err != nil {
		return nil, fmt.Errorf("load job snapshot: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	var snap JobSnapshot
	if err := json.Unmarshal(item.Data, &snap); err != nil {
		return nil, fmt.Errorf("decode job snapshot: %w", err)
	}
	return &snap, nil
}

// ErrJobNotFound means no snapshot exists for the requested job.
var ErrJobNotFound = errors.New("bulk job not found")
