// Package checker runs streaming configuration validation over a client's
// displays: chunked fetch with retry/backoff, pure policy evaluation, and
// strictly ordered per-batch progress events.
package checker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"signagectl/internal/policy"
	"signagectl/internal/wave"
)

const (
	// DefaultBatchSize suits unattended bulk checks.
	DefaultBatchSize = 500
	// InteractiveBatchSize keeps first results fast for console callers.
	InteractiveBatchSize = 50

	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 10 * time.Second

	// Pause between successive chunks to stay inside upstream rate limits.
	defaultBatchPause = 1 * time.Second
)

// Options tunes a Runner. Zero values take the defaults above; tests use
// millisecond delays so no real backoff is ever slept.
type Options struct {
	BatchSize      int
	MaxRetries     uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BatchPause     time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaultMaxBackoff
	}
	if o.BatchPause <= 0 {
		o.BatchPause = defaultBatchPause
	}
	return o
}

// BatchResult reports one processed chunk. A chunk that exhausted its
// retries still produces a result, with Failed set and zero devices.
type BatchResult struct {
	BatchNumber       int                        `json:"batchNumber"`
	TotalBatches      int                        `json:"totalBatches"`
	DevicesProcessed  int                        `json:"devicesProcessed"`
	DevicesWithIssues int                        `json:"devicesWithIssues"`
	Issues            []policy.DeviceIssueReport `json:"issues"`
	ProgressPercent   int                        `json:"progressPercent"`
	Failed            bool                       `json:"failed,omitempty"`
}

// Summary is the terminal aggregate of a validation run.
type Summary struct {
	TotalDevicesChecked int                        `json:"totalDevicesChecked"`
	DevicesWithIssues   int                        `json:"devicesWithIssues"`
	Issues              []policy.DeviceIssueReport `json:"issues"`
	Batches             []BatchResult              `json:"batchResults"`
}

// Event is one notification on a run's stream: either a completed batch or
// the single terminal summary. Exactly one of Batch and Summary is set.
type Event struct {
	RunID   string       `json:"runId"`
	Batch   *BatchResult `json:"batch,omitempty"`
	Summary *Summary     `json:"summary,omitempty"`
}

// ErrInvalidInput rejects a run before any batch starts.
var ErrInvalidInput = errors.New("client handle and at least one device id are required")

// Runner executes validation runs. Safe for concurrent use: each run owns
// its own accumulator and goroutine.
type Runner struct {
	gateway wave.Gateway
	policy  policy.Policy
	opts    Options
}

// New returns a Runner using the given gateway and fleet policy.
func New(gateway wave.Gateway, p policy.Policy, opts Options) *Runner {
	return &Runner{gateway: gateway, policy: p, opts: opts.withDefaults()}
}

// Run starts a validation run and returns its event stream. Batches are
// processed sequentially; batch N's event is emitted before batch N+1
// begins, and the channel closes after the terminal summary. Cancelling ctx
// stops the run between suspension points without revising emitted events.
func (r *Runner) Run(ctx context.Context, clientHandle string, deviceIDs []string, checks policy.CheckSelector) (<-chan Event, error) {
	if clientHandle == "" || len(deviceIDs) == 0 {
		return nil, ErrInvalidInput
	}

	runID := uuid.NewString()
	events := make(chan Event)
	go r.run(ctx, runID, clientHandle, deviceIDs, checks, events)
	return events, nil
}

func (r *Runner) run(ctx context.Context, runID, clientHandle string, deviceIDs []string, checks policy.CheckSelector, events chan<- Event) {
	defer close(events)

	start := time.Now()
	totalBatches := (len(deviceIDs) + r.opts.BatchSize - 1) / r.opts.BatchSize
	log.Printf("[INFO] Validation run %s started: %d devices in %d batches of up to %d",
		runID, len(deviceIDs), totalBatches, r.opts.BatchSize)

	summary := &Summary{
		Issues:  []policy.DeviceIssueReport{},
		Batches: make([]BatchResult, 0, totalBatches),
	}

	for i := 0; i < len(deviceIDs); i += r.opts.BatchSize {
		chunk := deviceIDs[i:min(i+r.opts.BatchSize, len(deviceIDs))]
		batchNumber := i/r.opts.BatchSize + 1

		result := r.processChunk(ctx, clientHandle, chunk, batchNumber, totalBatches, checks)

		summary.TotalDevicesChecked += result.DevicesProcessed
		summary.Issues = append(summary.Issues, result.Issues...)
		summary.Batches = append(summary.Batches, result)

		select {
		case events <- Event{RunID: runID, Batch: &result}:
		case <-ctx.Done():
			log.Printf("[WARN] Validation run %s abandoned after batch %d/%d", runID, batchNumber, totalBatches)
			return
		}

		// Inter-batch pause, skipped after the final chunk.
		if i+r.opts.BatchSize < len(deviceIDs) {
			select {
			case <-time.After(r.opts.BatchPause):
			case <-ctx.Done():
				log.Printf("[WARN] Validation run %s abandoned after batch %d/%d", runID, batchNumber, totalBatches)
				return
			}
		}
	}

	summary.DevicesWithIssues = len(summary.Issues)
	log.Printf("[INFO] Validation run %s complete: %d devices checked, %d with issues in %v",
		runID, summary.TotalDevicesChecked, summary.DevicesWithIssues, time.Since(start))

	select {
	case events <- Event{RunID: runID, Summary: summary}:
	case <-ctx.Done():
	}
}

// processChunk fetches and evaluates one chunk. Failures never propagate:
// an exhausted chunk yields a Failed result and the run continues.
func (r *Runner) processChunk(ctx context.Context, clientHandle string, chunk []string, batchNumber, totalBatches int, checks policy.CheckSelector) BatchResult {
	result := BatchResult{
		BatchNumber:     batchNumber,
		TotalBatches:    totalBatches,
		Issues:          []policy.DeviceIssueReport{},
		ProgressPercent: batchNumber * 100 / totalBatches,
	}

	fetchStart := time.Now()
	var devices []wave.DeviceSnapshot
	err := retry.Do(func() error {
		all, err := wave.FetchDisplaysWithConfig(ctx, r.gateway, clientHandle)
		if err != nil {
			return err
		}
		devices = filterByID(all, chunk)
		return nil
	}, retry.Attempts(r.opts.MaxRetries+1), retry.Delay(r.opts.InitialBackoff), retry.MaxDelay(r.opts.MaxBackoff), retry.Context(ctx))
	if err != nil {
		log.Printf("[ERROR] Batch %d/%d failed after %d retries: %v", batchNumber, totalBatches, r.opts.MaxRetries, err)
		result.Failed = true
		return result
	}

	log.Printf("[INFO] Batch %d/%d fetched %d/%d requested devices in %v",
		batchNumber, totalBatches, len(devices), len(chunk), time.Since(fetchStart))

	for i := range devices {
		device := &devices[i]
		if device.ID == "" {
			log.Printf("[WARN] Skipping device with no id in batch %d", batchNumber)
			continue
		}
		result.DevicesProcessed++
		if report := policy.EvaluateDevice(device, checks, r.policy); report != nil {
			result.Issues = append(result.Issues, *report)
		}
	}
	result.DevicesWithIssues = len(result.Issues)
	return result
}

// filterByID narrows the full display list to the requested chunk. The
// upstream cannot filter by id at batch granularity, so the fetch
// over-returns and is trimmed client-side.
func filterByID(devices []wave.DeviceSnapshot, ids []string) []wave.DeviceSnapshot {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	filtered := make([]wave.DeviceSnapshot, 0, len(ids))
	for _, d := range devices {
		if wanted[d.ID] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
