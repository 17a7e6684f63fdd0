package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/logging"
	"github.com/AgentMesh-Net/bulkops/internal/metrics"
)

// Operation names, also used as background task names.
const (
	OpComplete       = "bulk_complete"
	OpVerify         = "bulk_verify"
	OpSaveAttributes = "bulk_cavs_save"
)

// Outcome is the terminal state of a pipeline run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomePartial   Outcome = "PARTIAL"
	OutcomeFailed    Outcome = "FAILED"
)

// Messages overrides the import engine's default result notification text.
type Messages struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CustomMessages pairs success and failure messages.
type CustomMessages struct {
	Success Messages `json:"success"`
	Failure Messages `json:"failure"`
}

// verifyMessages are passed to the import engine for bulk verify runs.
var verifyMessages = &CustomMessages{
	Success: Messages{
		Title: "Ticket(s) update for your Bulk update action was completed.",
		Body: "The assessments from the Bulk update action that required " +
			"ticket(s) updates have been successfully updated.",
	},
	Failure: Messages{
		Title: "There were some errors in updating ticket(s) for your Bulk update action.",
		Body: "There were errors that prevented updates of some ticket(s) " +
			"after the Bulk update action. The error may be due to your " +
			"lack to sufficient access to generate/update the ticket(s). " +
			"Here is the list of assessment(s) that was not updated.",
	},
}

// ImportOptions controls a single import engine call.
type ImportOptions struct {
	DryRun         bool
	BulkImport     bool
	CustomMessages *CustomMessages
}

// BlockReport holds the messages the import engine produced for one block.
type BlockReport struct {
	Name          string   `json:"name"`
	BlockWarnings []string `json:"block_warnings"`
	RowWarnings   []string `json:"row_warnings"`
	BlockErrors   []string `json:"block_errors"`
	RowErrors     []string `json:"row_errors"`
}

// ImportResult is the outcome of one import engine call.
type ImportResult struct {
	FailedSlugs []string      `json:"failed_slugs"`
	Blocks      []BlockReport `json:"data"`
}

// ImportEngine validates and persists a batch row by row.
type ImportEngine interface {
	Import(ctx context.Context, batch *Batch, opts ImportOptions) (*ImportResult, error)
}

// Notification summarizes one run for the notification subsystem.
type Notification struct {
	Operation     string  `json:"operation"`
	Outcome       Outcome `json:"outcome"`
	UpdateErrors  SlugSet `json:"update_errors"`
	PartialErrors SlugSet `json:"partial_errors"`
	AssessmentIDs []int64 `json:"assessment_ids"`
	Error         string  `json:"error,omitempty"`
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Pipeline drives the bulk operations against the import engine.
type Pipeline struct {
	collector *Collector
	importer  ImportEngine
	notifier  Notifier
	log       *logging.Logger
	now       func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(assessments AssessmentSource, people PersonLookup, importer ImportEngine, notifier Notifier, log *logging.Logger) *Pipeline {
	return &Pipeline{
		collector: NewCollector(assessments, people, log),
		importer:  importer,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for verification timestamps.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Complete updates attributes, then moves every assessment that did not fail
// the update to Completed or In Review. An error is returned only when the
// run failed before any status change was attempted.
func (p *Pipeline) Complete(ctx context.Context, req *Request) (*Notification, error) {
	n := newNotification(OpComplete)

	stubs, err := p.collector.Collect(ctx, req)
	if err != nil {
		return p.fail(ctx, n, req, fmt.Errorf("collect: %w", err))
	}
	n.AssessmentIDs = stubIDs(stubs)

	updateErrors, err := p.runImport(ctx, OpComplete, "update", AttributeUpdateBatch(stubs), nil)
	if err != nil {
		return p.fail(ctx, n, req, fmt.Errorf("update attributes: %w", err))
	}
	n.UpdateErrors = updateErrors

	completion := CompletionBatch(stubs, updateErrors)
	partialErrors, err := p.runImport(ctx, OpComplete, "complete", completion, nil)
	if err != nil {
		p.log.WithContext(ctx).Error("status transition import failed", "error", err)
		partialErrors = NewSlugSet()
		for _, s := range Survivors(stubs, updateErrors) {
			partialErrors[s.Slug] = struct{}{}
		}
	}
	n.PartialErrors = partialErrors

	return p.finish(ctx, n)
}

// Verify completes every requested assessment and stamps its verification
// date with the run's start time. Unknown ids are skipped but still reported.
func (p *Pipeline) Verify(ctx context.Context, req *Request) (*Notification, error) {
	n := newNotification(OpVerify)
	start := p.now()

	stubs, err := p.collector.Collect(ctx, req)
	if err != nil {
		return p.fail(ctx, n, req, fmt.Errorf("collect: %w", err))
	}
	// The summary names every requested id, including ones storage no
	// longer knows.
	n.AssessmentIDs = append([]int64{}, req.AssessmentIDs...)

	verifyErrors, err := p.runImport(ctx, OpVerify, "verify", VerifyBatch(stubs, start), verifyMessages)
	if err != nil {
		return p.fail(ctx, n, req, fmt.Errorf("verify: %w", err))
	}
	n.UpdateErrors = verifyErrors

	return p.finish(ctx, n)
}

// SaveAttributes writes attribute values, evidence and comments without
// changing any assessment status.
func (p *Pipeline) SaveAttributes(ctx context.Context, req *Request) (*Notification, error) {
	n := newNotification(OpSaveAttributes)

	stubs, err := p.collector.Collect(ctx, req)
	if err != nil {
		return p.fail(ctx, n, req, fmt.Errorf("collect: %w", err))
	}
	n.AssessmentIDs = stubIDs(stubs)

	updateErrors, err := p.runImport(ctx, OpSaveAttributes, "update", AttributeUpdateBatch(stubs), nil)
	if err != nil {
		return p.fail(ctx, n, req, fmt.Errorf("update attributes: %w", err))
	}
	n.UpdateErrors = updateErrors

	return p.finish(ctx, n)
}

// runImport sends batch to the import engine and returns the failed slugs.
// Empty batches are not sent.
func (p *Pipeline) runImport(ctx context.Context, op, phase string, batch *Batch, msgs *CustomMessages) (SlugSet, error) {
	if batch.Empty() {
		return NewSlugSet(), nil
	}

	start := time.Now()
	res, err := p.importer.Import(ctx, batch, ImportOptions{
		DryRun:         false,
		BulkImport:     true,
		CustomMessages: msgs,
	})
	metrics.ImportDuration.WithLabelValues(op, phase).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	p.logImport(ctx, phase, res)
	failed := NewSlugSet(res.FailedSlugs...)
	metrics.FailedSlugs.WithLabelValues(op, phase).Add(float64(len(failed)))
	return failed, nil
}

func (p *Pipeline) logImport(ctx context.Context, phase string, res *ImportResult) {
	log := p.log.WithContext(ctx).With("phase", phase)
	for _, blk := range res.Blocks {
		if len(blk.BlockWarnings) > 0 {
			log.Warn("warnings during bulk operation", "block", blk.Name, "block_warnings", blk.BlockWarnings)
		}
		if len(blk.RowWarnings) > 0 {
			log.Warn("warnings during bulk operation", "block", blk.Name, "row_warnings", blk.RowWarnings)
		}
		if len(blk.BlockErrors) > 0 {
			log.Error("errors during bulk operation", "block", blk.Name, "block_errors", blk.BlockErrors)
		}
		if len(blk.RowErrors) > 0 {
			log.Error("errors during bulk operation", "block", blk.Name, "row_errors", blk.RowErrors)
		}
	}
}

func (p *Pipeline) finish(ctx context.Context, n *Notification) (*Notification, error) {
	if len(n.UpdateErrors) > 0 || len(n.PartialErrors) > 0 {
		n.Outcome = OutcomePartial
	} else {
		n.Outcome = OutcomeSucceeded
	}
	p.notify(ctx, n)
	return n, nil
}

func (p *Pipeline) fail(ctx context.Context, n *Notification, req *Request, err error) (*Notification, error) {
	n.Outcome = OutcomeFailed
	n.Error = err.Error()
	if n.AssessmentIDs == nil {
		n.AssessmentIDs = append([]int64{}, req.AssessmentIDs...)
	}
	p.notify(ctx, n)
	return n, err
}

func (p *Pipeline) notify(ctx context.Context, n *Notification) {
	metrics.Runs.WithLabelValues(n.Operation, string(n.Outcome)).Inc()

	log := p.log.WithContext(ctx)
	log.Info("bulk operation finished",
		"operation", n.Operation,
		"outcome", n.Outcome,
		"update_errors", len(n.UpdateErrors),
		"partial_errors", len(n.PartialErrors),
	)
	if err := p.notifier.Notify(ctx, n); err != nil {
		log.Error("send notification", "operation", n.Operation, "error", err)
	}
}

func newNotification(op string) *Notification {
	return &Notification{
		Operation:     op,
		UpdateErrors:  NewSlugSet(),
		PartialErrors: NewSlugSet(),
	}
}

func stubIDs(stubs []*Stub) []int64 {
	ids := make([]int64, 0, len(stubs))
	for _, s := range stubs {
		ids = append(ids, s.ID)
	}
	return ids
}
