// Package orchestrator runs a generation request end to end: resolve
// prompts, reserve credits, dispatch the batch, pack the output, and hand
// the result to the deliverer. Persistence, credit accounting, and
// transport are interfaces; the orchestrator owns only the sequencing and
// the refund rules.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genforge/delivery"
	"genforge/imagegen"
	"genforge/logging"
	"genforge/metrics"
	"genforge/packager"
)

var (
	// ErrNoPrompts means the prompt source resolved an empty batch.
	ErrNoPrompts = errors.New("orchestrator: no prompts to generate")

	// ErrTooManyPrompts means the batch exceeds the configured cap.
	ErrTooManyPrompts = errors.New("orchestrator: too many prompts in one batch")
)

// Request is one inbound generation request.
type Request struct {
	// UserID identifies the requesting account for credit accounting.
	UserID string

	// Platform selects the target aspect ratio (see imagegen.Platforms).
	Platform string

	// Prompts are the raw prompt texts, handed to the PromptSource.
	Prompts []string

	// Reference is an optional reference image applied to every prompt.
	Reference []byte
}

// PromptSource resolves the final prompt list for a request. The trivial
// source returns Request.Prompts unchanged; richer sources may rewrite or
// expand them.
type PromptSource interface {
	ResolvePrompts(ctx context.Context, req Request) ([]string, error)
}

// PassthroughPrompts is the identity PromptSource.
type PassthroughPrompts struct{}

func (PassthroughPrompts) ResolvePrompts(_ context.Context, req Request) ([]string, error) {
	return req.Prompts, nil
}

// CreditLedger reserves and refunds generation credits, one credit per
// image. Both calls return the balance after the operation.
type CreditLedger interface {
	Reserve(ctx context.Context, userID string, n int) (remaining int, err error)
	Refund(ctx context.Context, userID string, n int) (remaining int, err error)
}

// GenerationRecord is the persisted outcome of one request.
type GenerationRecord struct {
	ID          string
	UserID      string
	Platform    string
	Prompts     []string
	Succeeded   int
	Failed      int
	Elapsed     time.Duration
	CompletedAt time.Time
	Archives    []ArchiveSummary
}

// ArchiveSummary describes one produced archive without its payload.
type ArchiveSummary struct {
	Name      string
	Files     int
	SizeBytes int
}

// GenerationStore persists generation records. Best effort: a store
// failure is logged, not fatal, because the images already exist.
type GenerationStore interface {
	SaveGeneration(ctx context.Context, record GenerationRecord) error
}

// Delivery is what the Deliverer receives for a finished request.
type Delivery struct {
	GenerationID string
	Summary      string
	Archives     []packager.Archive
	Result       imagegen.BatchResult
}

// Deliverer sends the finished output to the requester.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Orchestrator sequences the generation pipeline.
type Orchestrator struct {
	dispatcher *imagegen.BatchDispatcher
	packer     *packager.Packager
	store      *metrics.Store
	logger     *logging.Logger

	prompts   PromptSource
	ledger    CreditLedger
	records   GenerationStore
	deliverer Deliverer

	maxImages int

	// now stamps generation records, replaceable in tests.
	now func() time.Time
}

// Deps are the external collaborators of an Orchestrator. Prompts defaults
// to PassthroughPrompts; the rest are required.
type Deps struct {
	Dispatcher *imagegen.BatchDispatcher
	Packer     *packager.Packager
	Metrics    *metrics.Store
	Prompts    PromptSource
	Ledger     CreditLedger
	Records    GenerationStore
	Deliverer  Deliverer

	// MaxImages caps one batch. Zero or negative means no cap.
	MaxImages int
}

// New wires an Orchestrator.
func New(deps Deps, logger *logging.Logger) (*Orchestrator, error) {
	switch {
	case deps.Dispatcher == nil:
		return nil, errors.New("orchestrator: dispatcher is required")
	case deps.Packer == nil:
		return nil, errors.New("orchestrator: packer is required")
	case deps.Ledger == nil:
		return nil, errors.New("orchestrator: credit ledger is required")
	case deps.Deliverer == nil:
		return nil, errors.New("orchestrator: deliverer is required")
	case logger == nil:
		return nil, errors.New("orchestrator: logger is required")
	}
	if deps.Prompts == nil {
		deps.Prompts = PassthroughPrompts{}
	}

	return &Orchestrator{
		dispatcher: deps.Dispatcher,
		packer:     deps.Packer,
		store:      deps.Metrics,
		logger:     logger.Named("orchestrator"),
		prompts:    deps.Prompts,
		ledger:     deps.Ledger,
		records:    deps.Records,
		deliverer:  deps.Deliverer,
		maxImages:  deps.MaxImages,
		now:        time.Now,
	}, nil
}

// Run executes one request end to end and returns its record.
//
// Credit rules: one credit per prompt is reserved up front. A failure in
// any stage between the reservation and the dispatch refunds the full
// count; after dispatch, exactly one credit per failed image is refunded.
// The dispatch itself cannot fail, only individual jobs can.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink imagegen.ProgressSink) (GenerationRecord, error) {
	generationID := uuid.NewString()
	log := o.logger.With(
		zap.String("generation_id", generationID),
		zap.String("user_id", req.UserID),
		zap.String("platform", req.Platform))

	prompts, err := o.prompts.ResolvePrompts(ctx, req)
	if err != nil {
		return GenerationRecord{}, fmt.Errorf("resolving prompts: %w", err)
	}
	if len(prompts) == 0 {
		return GenerationRecord{}, ErrNoPrompts
	}
	if o.maxImages > 0 && len(prompts) > o.maxImages {
		return GenerationRecord{}, fmt.Errorf("%w: %d > %d", ErrTooManyPrompts, len(prompts), o.maxImages)
	}

	remaining, err := o.ledger.Reserve(ctx, req.UserID, len(prompts))
	if err != nil {
		return GenerationRecord{}, fmt.Errorf("reserving %d credits: %w", len(prompts), err)
	}
	log.Info("credits reserved", zap.Int("reserved", len(prompts)), zap.Int("remaining", remaining))

	reference := req.Reference
	if len(reference) > 0 {
		prepared, err := imagegen.PrepareReference(reference)
		if err != nil {
			remaining = o.refund(ctx, log, req.UserID, len(prompts))
			return GenerationRecord{}, fmt.Errorf("preparing reference image: %w", err)
		}
		reference = prepared
	}

	aspect := imagegen.AspectRatioForPlatform(req.Platform)
	jobs := make([]imagegen.Job, len(prompts))
	for i, prompt := range prompts {
		jobs[i] = imagegen.Job{
			Index:       i,
			Prompt:      prompt,
			Reference:   reference,
			AspectRatio: aspect,
		}
	}

	result := o.dispatcher.Dispatch(ctx, jobs, sink)

	refunded := len(result.Failures)
	if refunded > 0 {
		remaining = o.refund(ctx, log, req.UserID, refunded)
	}

	items := make([]packager.Item, len(result.Successes))
	for i, out := range result.Successes {
		items[i] = packager.Item{Index: out.Index, Prompt: out.Prompt, Payload: out.Payload}
	}
	archives, err := o.packer.Pack(generationID, items)
	if err != nil {
		return GenerationRecord{}, fmt.Errorf("packing output: %w", err)
	}

	summaries := make([]ArchiveSummary, len(archives))
	for i, archive := range archives {
		summaries[i] = ArchiveSummary{
			Name:      archive.Name,
			Files:     len(archive.Files),
			SizeBytes: len(archive.Data),
		}
	}

	record := GenerationRecord{
		ID:          generationID,
		UserID:      req.UserID,
		Platform:    req.Platform,
		Prompts:     prompts,
		Succeeded:   len(result.Successes),
		Failed:      len(result.Failures),
		Elapsed:     result.TotalElapsed,
		CompletedAt: o.now(),
		Archives:    summaries,
	}

	if o.records != nil {
		if err := o.records.SaveGeneration(ctx, record); err != nil {
			log.Error("saving generation record failed", zap.Error(err))
		}
	}
	if o.store != nil {
		o.store.RecordBatch(metrics.BatchRecord{
			BatchID:     generationID,
			Jobs:        len(jobs),
			Succeeded:   record.Succeeded,
			Failed:      record.Failed,
			Elapsed:     result.TotalElapsed,
			CompletedAt: record.CompletedAt,
		})
	}

	summary := delivery.BuildSummary(delivery.SummaryInput{
		Result:           result,
		Refunded:         refunded,
		CreditsRemaining: remaining,
	})
	if err := o.deliverer.Deliver(ctx, Delivery{
		GenerationID: generationID,
		Summary:      summary,
		Archives:     archives,
		Result:       result,
	}); err != nil {
		return record, fmt.Errorf("delivering output: %w", err)
	}

	log.Info("generation complete",
		zap.Int("succeeded", record.Succeeded),
		zap.Int("failed", record.Failed),
		zap.Duration("elapsed", record.Elapsed))
	return record, nil
}

// refund returns credits and reports the new balance. A refund failure is
// logged and the last known balance stands; credits must never be double
// refunded by retrying here.
func (o *Orchestrator) refund(ctx context.Context, log *logging.Logger, userID string, n int) int {
	remaining, err := o.ledger.Refund(ctx, userID, n)
	if err != nil {
		log.Error("credit refund failed", zap.Int("credits", n), zap.Error(err))
		return -1
	}
	log.Info("credits refunded", zap.Int("credits", n), zap.Int("remaining", remaining))
	return remaining
}
