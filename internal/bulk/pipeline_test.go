package bulk

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/logging"
)

type pipelineFixture struct {
	pipeline *Pipeline
	importer *fakeImporter
	notifier *fakeNotifier
}

func newPipelineFixture(failOn ...string) *pipelineFixture {
	assessments := &fakeAssessments{records: map[int64]AssessmentRecord{
		1: {ID: 1, Slug: "A-1"},
		2: {ID: 2, Slug: "A-2", NeedsVerification: true},
		3: {ID: 3, Slug: "A-3"},
	}}
	importer := &fakeImporter{failOn: map[string]bool{}}
	for _, slug := range failOn {
		importer.failOn[slug] = true
	}
	notifier := &fakeNotifier{}
	p := NewPipeline(assessments, &fakePeople{}, importer, notifier, logging.Discard())
	return &pipelineFixture{pipeline: p, importer: importer, notifier: notifier}
}

const twoAssessments = `{
	"assessments_ids": [1, 2],
	"attributes": [
		{"assessment": {"id": 1, "slug": "A-1"}, "values": [
			{"value": "", "title": "Mandatory", "type": "Text", "id": 5}
		]},
		{"assessment": {"id": 2, "slug": "A-2"}, "values": [
			{"value": "done", "title": "Mandatory", "type": "Text", "id": 6}
		]}
	]
}`

func TestCompletePartialFailure(t *testing.T) {
	// A-1 leaves a mandatory attribute blank, so the first import rejects it.
	f := newPipelineFixture()
	f.importer.failOn["A-1"] = true

	req := mustRequest(t, `{
		"assessments_ids": [1, 3],
		"attributes": [
			{"assessment": {"id": 1, "slug": "A-1"}, "values": [
				{"value": "x", "title": "Mandatory", "type": "Text", "id": 5}
			]},
			{"assessment": {"id": 3, "slug": "A-3"}, "values": [
				{"value": "y", "title": "Mandatory", "type": "Text", "id": 7}
			]}
		]
	}`)
	n, err := f.pipeline.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(f.importer.batches) != 2 {
		t.Fatalf("expected two import calls, got %d", len(f.importer.batches))
	}
	completion := f.importer.batches[1].Blocks[0].Rows
	if !reflect.DeepEqual(completion, [][]string{{"A-3", "Completed"}}) {
		t.Fatalf("completion rows = %v", completion)
	}
	if !reflect.DeepEqual(n.UpdateErrors.Sorted(), []string{"A-1"}) {
		t.Fatalf("update_errors = %v", n.UpdateErrors.Sorted())
	}
	if len(n.PartialErrors) != 0 {
		t.Fatalf("partial_errors = %v", n.PartialErrors.Sorted())
	}
	if n.Outcome != OutcomePartial {
		t.Fatalf("outcome = %s", n.Outcome)
	}
	if !reflect.DeepEqual(n.AssessmentIDs, []int64{1, 3}) {
		t.Fatalf("assessment ids = %v", n.AssessmentIDs)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != n {
		t.Fatalf("expected exactly one notification, got %d", len(f.notifier.sent))
	}
	for _, opts := range f.importer.opts {
		if opts.DryRun || !opts.BulkImport {
			t.Errorf("unexpected import options %+v", opts)
		}
	}
}

func TestCompleteSucceeded(t *testing.T) {
	f := newPipelineFixture()
	n, err := f.pipeline.Complete(context.Background(), mustRequest(t, twoAssessments))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if n.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %s", n.Outcome)
	}
	completion := f.importer.batches[1].Blocks[0].Rows
	want := [][]string{{"A-1", "Completed"}, {"A-2", "In Review"}}
	if !reflect.DeepEqual(completion, want) {
		t.Fatalf("completion rows = %v, want %v", completion, want)
	}
}

func TestCompleteStatusTransitionFailure(t *testing.T) {
	f := newPipelineFixture()
	f.importer.failOn["A-2"] = true

	// A-2 fails both imports; it is only reported as an update error.
	n, err := f.pipeline.Complete(context.Background(), mustRequest(t, twoAssessments))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !reflect.DeepEqual(n.UpdateErrors.Sorted(), []string{"A-2"}) {
		t.Fatalf("update_errors = %v", n.UpdateErrors.Sorted())
	}
	if len(f.importer.batches[1].Blocks[0].Rows) != 1 {
		t.Fatalf("failed slug must be excluded from completion: %v", f.importer.batches[1].Blocks[0].Rows)
	}
}

func TestCompleteSkipsEmptyCompletionBatch(t *testing.T) {
	f := newPipelineFixture("A-1", "A-2")
	req := mustRequest(t, `{
		"assessments_ids": [1, 2],
		"attributes": [
			{"assessment": {"id": 1, "slug": "A-1"}, "values": [{"value": "a", "title": "T", "type": "Text"}]},
			{"assessment": {"id": 2, "slug": "A-2"}, "values": [{"value": "b", "title": "T", "type": "Text"}]}
		]
	}`)
	n, err := f.pipeline.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(f.importer.batches) != 1 {
		t.Fatalf("completion import should be skipped, got %d calls", len(f.importer.batches))
	}
	if len(n.UpdateErrors) != 2 || len(n.PartialErrors) != 0 {
		t.Fatalf("unexpected errors: %v %v", n.UpdateErrors, n.PartialErrors)
	}
}

func TestCompleteTargetsWithoutAttributes(t *testing.T) {
	f := newPipelineFixture()
	n, err := f.pipeline.Complete(context.Background(), mustRequest(t, `{"assessments_ids": [1, 2]}`))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(f.importer.batches) != 1 {
		t.Fatalf("only the completion import should run, got %d calls", len(f.importer.batches))
	}
	if got := len(f.importer.batches[0].Blocks[0].Rows); got != 2 {
		t.Fatalf("completion rows = %d, want 2", got)
	}
	if n.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %s", n.Outcome)
	}
}

func TestCompleteMalformedRequest(t *testing.T) {
	f := newPipelineFixture()
	req := mustRequest(t, `{"assessments_ids": [1], "attributes": [{"assessment": {"id": 1}, "values": []}]}`)
	n, err := f.pipeline.Complete(context.Background(), req)
	if !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
	if len(f.importer.batches) != 0 {
		t.Fatal("no batch may be sent for a malformed request")
	}
	if n.Outcome != OutcomeFailed || len(f.notifier.sent) != 1 {
		t.Fatalf("expected a FAILED notification, got %+v", n)
	}
	if !reflect.DeepEqual(n.AssessmentIDs, []int64{1}) {
		t.Fatalf("assessment ids = %v", n.AssessmentIDs)
	}
}

func TestCompleteUpdateTransportError(t *testing.T) {
	f := newPipelineFixture()
	f.importer.errOn = 1
	n, err := f.pipeline.Complete(context.Background(), mustRequest(t, twoAssessments))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.importer.batches) != 1 {
		t.Fatalf("phase 2 must not run, got %d calls", len(f.importer.batches))
	}
	if n.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s", n.Outcome)
	}
}

func TestCompleteTransitionTransportError(t *testing.T) {
	f := newPipelineFixture()
	f.importer.errOn = 2
	n, err := f.pipeline.Complete(context.Background(), mustRequest(t, twoAssessments))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !reflect.DeepEqual(n.PartialErrors.Sorted(), []string{"A-1", "A-2"}) {
		t.Fatalf("partial_errors = %v", n.PartialErrors.Sorted())
	}
	if n.Outcome != OutcomePartial {
		t.Fatalf("outcome = %s", n.Outcome)
	}
}

func TestVerify(t *testing.T) {
	f := newPipelineFixture("A-2")
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	f.pipeline.WithClock(func() time.Time { return at })

	n, err := f.pipeline.Verify(context.Background(), mustRequest(t, `{"assessments_ids": [1, 2]}`))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(f.importer.batches) != 1 {
		t.Fatalf("expected one import, got %d", len(f.importer.batches))
	}
	rows := f.importer.batches[0].Blocks[0].Rows
	want := [][]string{{"A-1", "Completed", "10/16/2026"}, {"A-2", "Completed", "10/16/2026"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	if f.importer.opts[0].CustomMessages == nil {
		t.Fatal("verify must pass custom messages")
	}
	if !reflect.DeepEqual(n.UpdateErrors.Sorted(), []string{"A-2"}) || len(n.PartialErrors) != 0 {
		t.Fatalf("notification = %+v", n)
	}
}

func TestVerifyReportsRequestedIDs(t *testing.T) {
	f := newPipelineFixture()
	n, err := f.pipeline.Verify(context.Background(), mustRequest(t, `{"assessments_ids": [1, 99]}`))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	rows := f.importer.batches[0].Blocks[0].Rows
	if len(rows) != 1 || rows[0][0] != "A-1" {
		t.Fatalf("rows = %v, unknown id must not be sent", rows)
	}
	if !reflect.DeepEqual(n.AssessmentIDs, []int64{1, 99}) {
		t.Fatalf("assessment ids = %v, want [1 99]", n.AssessmentIDs)
	}
}

func TestSaveAttributes(t *testing.T) {
	f := newPipelineFixture()
	n, err := f.pipeline.SaveAttributes(context.Background(), mustRequest(t, twoAssessments))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(f.importer.batches) != 1 {
		t.Fatalf("save must not transition status, got %d imports", len(f.importer.batches))
	}
	if n.Operation != OpSaveAttributes || n.Outcome != OutcomeSucceeded {
		t.Fatalf("notification = %+v", n)
	}
	if !reflect.DeepEqual(n.AssessmentIDs, []int64{1, 2}) {
		t.Fatalf("assessment ids = %v", n.AssessmentIDs)
	}
}
