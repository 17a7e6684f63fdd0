package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeAssessments struct {
	records map[int64]AssessmentRecord
	calls   [][]int64
	err     error
}

func (f *fakeAssessments) AssessmentRefs(_ context.Context, ids []int64) ([]AssessmentRecord, error) {
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []AssessmentRecord
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePeople struct {
	emails map[int64]string
	calls  [][]int64
}

func (f *fakePeople) PersonEmails(_ context.Context, ids []int64) (map[int64]string, error) {
	f.calls = append(f.calls, ids)
	out := map[int64]string{}
	for _, id := range ids {
		if e, ok := f.emails[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

// fakeImporter fails any row whose slug is listed in failOn, for every call.
type fakeImporter struct {
	failOn  map[string]bool
	errOn   int // 1-based call index that returns a transport error
	batches []*Batch
	opts    []ImportOptions
}

func (f *fakeImporter) Import(_ context.Context, batch *Batch, opts ImportOptions) (*ImportResult, error) {
	f.batches = append(f.batches, batch)
	f.opts = append(f.opts, opts)
	if f.errOn == len(f.batches) {
		return nil, errors.New("import engine unavailable")
	}
	res := &ImportResult{}
	for _, blk := range batch.Blocks {
		report := BlockReport{Name: blk.ObjectType}
		if blk.ObjectType != ObjectTypeAssessment {
			res.Blocks = append(res.Blocks, report)
			continue
		}
		for _, row := range blk.Rows {
			if f.failOn[row[0]] {
				res.FailedSlugs = append(res.FailedSlugs, row[0])
				report.RowErrors = append(report.RowErrors, "rejected "+row[0])
			}
		}
		res.Blocks = append(res.Blocks, report)
	}
	return res, nil
}

type fakeNotifier struct {
	sent []*Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n *Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func mustRequest(t *testing.T, raw string) *Request {
	t.Helper()
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return &req
}
