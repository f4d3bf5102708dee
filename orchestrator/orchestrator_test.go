package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"genforge/core"
	"genforge/imagegen"
	"genforge/logging"
	"genforge/metrics"
	"genforge/packager"
	"genforge/pool"

	"go.uber.org/zap/zapcore"
)

// promptProvider fails prompts containing "fail" and echoes the rest.
type promptProvider struct{}

func (promptProvider) Generate(_ context.Context, req imagegen.GenerateRequest) ([]byte, error) {
	if strings.Contains(req.Prompt, "fail") {
		return nil, errors.New("rejected by the safety system")
	}
	return []byte("image:" + req.Prompt), nil
}

type fakeLedger struct {
	balance    int
	reserved   int
	refunded   int
	reserveErr error
	refundErr  error
}

func (l *fakeLedger) Reserve(_ context.Context, _ string, n int) (int, error) {
	if l.reserveErr != nil {
		return l.balance, l.reserveErr
	}
	if n > l.balance {
		return l.balance, fmt.Errorf("insufficient credits: have %d, need %d", l.balance, n)
	}
	l.balance -= n
	l.reserved += n
	return l.balance, nil
}

func (l *fakeLedger) Refund(_ context.Context, _ string, n int) (int, error) {
	if l.refundErr != nil {
		return l.balance, l.refundErr
	}
	l.balance += n
	l.refunded += n
	return l.balance, nil
}

type fakeDeliverer struct {
	deliveries []Delivery
	err        error
}

func (d *fakeDeliverer) Deliver(_ context.Context, delivery Delivery) error {
	if d.err != nil {
		return d.err
	}
	d.deliveries = append(d.deliveries, delivery)
	return nil
}

type fakeRecords struct {
	saved []GenerationRecord
	err   error
}

func (r *fakeRecords) SaveGeneration(_ context.Context, record GenerationRecord) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, record)
	return nil
}

type failingPrompts struct{ err error }

func (p failingPrompts) ResolvePrompts(context.Context, Request) ([]string, error) {
	return nil, p.err
}

type harness struct {
	orch      *Orchestrator
	ledger    *fakeLedger
	deliverer *fakeDeliverer
	records   *fakeRecords
	metrics   *metrics.Store
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	logger := logging.NewLoggerWithCore(zapcore.NewNopCore())

	creds := []core.CredentialConfig{{APIKey: "key-1", MaxConcurrent: 4}}
	accountPool, err := pool.New(creds, pool.Config{PollInterval: 2 * time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}
	executor := imagegen.NewRetryExecutor(accountPool, promptProvider{}, imagegen.ExecutorConfig{MaxAttempts: 1}, logger)

	h := &harness{
		ledger:    &fakeLedger{balance: 10},
		deliverer: &fakeDeliverer{},
		records:   &fakeRecords{},
		metrics:   metrics.NewStore(10),
	}
	deps := Deps{
		Dispatcher: imagegen.NewBatchDispatcher(executor, logger),
		Packer:     packager.New(0, 0, logger),
		Metrics:    h.metrics,
		Ledger:     h.ledger,
		Records:    h.records,
		Deliverer:  h.deliverer,
		MaxImages:  5,
	}
	if mutate != nil {
		mutate(&deps)
	}

	h.orch, err = New(deps, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestRun_AllSucceed(t *testing.T) {
	h := newHarness(t, nil)

	record, err := h.orch.Run(context.Background(), Request{
		UserID:   "user-1",
		Platform: "twitter",
		Prompts:  []string{"a", "b", "c"},
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if record.Succeeded != 3 || record.Failed != 0 {
		t.Errorf("record = %d/%d succeeded/failed, want 3/0", record.Succeeded, record.Failed)
	}
	if h.ledger.reserved != 3 || h.ledger.refunded != 0 {
		t.Errorf("ledger = %d reserved, %d refunded, want 3, 0", h.ledger.reserved, h.ledger.refunded)
	}
	if len(h.deliverer.deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(h.deliverer.deliveries))
	}

	d := h.deliverer.deliveries[0]
	if d.GenerationID != record.ID {
		t.Errorf("delivery GenerationID = %q, want %q", d.GenerationID, record.ID)
	}
	if len(d.Archives) != 1 {
		t.Fatalf("archives = %d, want 1", len(d.Archives))
	}
	if got := d.Archives[0].Files; len(got) != 3 {
		t.Errorf("archive files = %v, want 3 entries", got)
	}
	if !strings.Contains(d.Summary, "Generated 3/3 images") {
		t.Errorf("summary missing headline:\n%s", d.Summary)
	}

	if len(h.records.saved) != 1 {
		t.Errorf("saved records = %d, want 1", len(h.records.saved))
	}
	if totals := h.metrics.Totals(); totals.Batches != 1 || totals.Succeeded != 3 {
		t.Errorf("metrics totals = %+v, want 1 batch with 3 succeeded", totals)
	}
}

func TestRun_PartialFailureRefundsFailures(t *testing.T) {
	h := newHarness(t, nil)

	record, err := h.orch.Run(context.Background(), Request{
		UserID:  "user-1",
		Prompts: []string{"a", "fail-b", "c", "fail-d"},
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if record.Succeeded != 2 || record.Failed != 2 {
		t.Errorf("record = %d/%d succeeded/failed, want 2/2", record.Succeeded, record.Failed)
	}
	if h.ledger.refunded != 2 {
		t.Errorf("refunded = %d, want 2", h.ledger.refunded)
	}
	// 10 - 4 reserved + 2 refunded.
	if h.ledger.balance != 8 {
		t.Errorf("balance = %d, want 8", h.ledger.balance)
	}

	summary := h.deliverer.deliveries[0].Summary
	for _, want := range []string{"2 failed; 2 credits refunded", "Credits remaining: 8"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestRun_InsufficientCredits(t *testing.T) {
	h := newHarness(t, nil)
	h.ledger.balance = 1

	_, err := h.orch.Run(context.Background(), Request{
		UserID:  "user-1",
		Prompts: []string{"a", "b"},
	}, nil)
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if h.ledger.refunded != 0 {
		t.Errorf("refunded = %d, want 0", h.ledger.refunded)
	}
	if len(h.deliverer.deliveries) != 0 {
		t.Errorf("deliveries = %d, want 0", len(h.deliverer.deliveries))
	}
}

func TestRun_BadReferenceRefundsEverything(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Run(context.Background(), Request{
		UserID:    "user-1",
		Prompts:   []string{"a", "b", "c"},
		Reference: []byte("not an image"),
	}, nil)
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if h.ledger.reserved != 3 || h.ledger.refunded != 3 {
		t.Errorf("ledger = %d reserved, %d refunded, want 3, 3", h.ledger.reserved, h.ledger.refunded)
	}
	if h.ledger.balance != 10 {
		t.Errorf("balance = %d, want 10", h.ledger.balance)
	}
}

func TestRun_NoPrompts(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Run(context.Background(), Request{UserID: "user-1"}, nil)
	if !errors.Is(err, ErrNoPrompts) {
		t.Errorf("Run() error = %v, want ErrNoPrompts", err)
	}
	if h.ledger.reserved != 0 {
		t.Errorf("reserved = %d, want 0", h.ledger.reserved)
	}
}

func TestRun_TooManyPrompts(t *testing.T) {
	h := newHarness(t, func(deps *Deps) { deps.MaxImages = 2 })

	_, err := h.orch.Run(context.Background(), Request{
		UserID:  "user-1",
		Prompts: []string{"a", "b", "c"},
	}, nil)
	if !errors.Is(err, ErrTooManyPrompts) {
		t.Errorf("Run() error = %v, want ErrTooManyPrompts", err)
	}
	if h.ledger.reserved != 0 {
		t.Errorf("reserved = %d, want 0", h.ledger.reserved)
	}
}

func TestRun_PromptSourceFailureBeforeReserve(t *testing.T) {
	sourceErr := errors.New("prompt backend down")
	h := newHarness(t, func(deps *Deps) { deps.Prompts = failingPrompts{err: sourceErr} })

	_, err := h.orch.Run(context.Background(), Request{UserID: "user-1", Prompts: []string{"a"}}, nil)
	if !errors.Is(err, sourceErr) {
		t.Errorf("Run() error = %v, want wrapped %v", err, sourceErr)
	}
	if h.ledger.reserved != 0 {
		t.Errorf("reserved = %d, want 0", h.ledger.reserved)
	}
}

func TestRun_StoreFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.records.err = errors.New("database offline")

	_, err := h.orch.Run(context.Background(), Request{
		UserID:  "user-1",
		Prompts: []string{"a"},
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.deliverer.deliveries) != 1 {
		t.Errorf("deliveries = %d, want 1", len(h.deliverer.deliveries))
	}
}

func TestRun_DeliverFailure(t *testing.T) {
	h := newHarness(t, nil)
	deliverErr := errors.New("transport closed")
	h.deliverer.err = deliverErr

	record, err := h.orch.Run(context.Background(), Request{
		UserID:  "user-1",
		Prompts: []string{"a"},
	}, nil)
	if !errors.Is(err, deliverErr) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, deliverErr)
	}
	// The record still describes the finished batch.
	if record.Succeeded != 1 {
		t.Errorf("record.Succeeded = %d, want 1", record.Succeeded)
	}
}

func TestRun_ProgressSinkReceivesUpdates(t *testing.T) {
	h := newHarness(t, nil)

	var updates []imagegen.ProgressUpdate
	sink := imagegen.ProgressFunc(func(_ context.Context, u imagegen.ProgressUpdate) {
		updates = append(updates, u)
	})

	if _, err := h.orch.Run(context.Background(), Request{
		UserID:  "user-1",
		Prompts: []string{"a", "b"},
	}, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(updates) != 2 {
		t.Errorf("progress updates = %d, want 2", len(updates))
	}
}
