package bulk

import (
	"context"
	"fmt"

	"github.com/AgentMesh-Net/bulkops/internal/logging"
)

// AssessmentRecord is the stored state the collector needs for one assessment.
type AssessmentRecord struct {
	ID                int64
	Slug              string
	NeedsVerification bool
}

// AssessmentSource loads assessment records with their verifier state.
type AssessmentSource interface {
	AssessmentRefs(ctx context.Context, ids []int64) ([]AssessmentRecord, error)
}

// Stub is the per-assessment working record of one pipeline run.
type Stub struct {
	ID                int64
	Slug              string
	NeedsVerification bool

	// Values maps attribute title to its normalized value; Titles keeps the
	// first-seen order of those titles.
	Values   map[string]string
	Titles   []string
	URLs     []string
	Files    []string
	Comments []StubComment
}

// StubComment is a comment bound to the attribute definition it was left on.
type StubComment struct {
	Description  string
	DefinitionID int64
}

func newStub(id int64, slug string, needsVerification bool) *Stub {
	return &Stub{
		ID:                id,
		Slug:              slug,
		NeedsVerification: needsVerification,
		Values:            map[string]string{},
	}
}

// SetValue stores value under title. A repeated title overwrites the earlier
// value and keeps its original position.
func (s *Stub) SetValue(title, value string) {
	if _, ok := s.Values[title]; !ok {
		s.Titles = append(s.Titles, title)
	}
	s.Values[title] = value
}

// HasContent reports whether the stub would produce a non-blank attribute row.
func (s *Stub) HasContent() bool {
	if len(s.URLs) > 0 || len(s.Files) > 0 {
		return true
	}
	for _, v := range s.Values {
		if v != "" {
			return true
		}
	}
	return false
}

// Collector turns a bulk request into one Stub per target assessment.
type Collector struct {
	assessments AssessmentSource
	people      PersonLookup
	log         *logging.Logger
}

// NewCollector creates a Collector.
func NewCollector(assessments AssessmentSource, people PersonLookup, log *logging.Logger) *Collector {
	return &Collector{assessments: assessments, people: people, log: log}
}

// Collect validates req and builds stubs in first-seen order: target ids
// first, then assessments that only appear in the attribute updates.
func (c *Collector) Collect(ctx context.Context, req *Request) ([]*Stub, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := c.log.WithContext(ctx)

	decoded, personIDs, err := decodeValues(req)
	if err != nil {
		return nil, err
	}

	people, err := NewPersonCache(ctx, c.people, personIDs)
	if err != nil {
		return nil, err
	}

	records, err := c.loadRecords(ctx, req)
	if err != nil {
		return nil, err
	}

	updated := make(map[int64]bool, len(req.Attributes))
	for _, upd := range req.Attributes {
		updated[*upd.Assessment.ID] = true
	}

	byID := map[int64]*Stub{}
	var stubs []*Stub
	for _, id := range req.AssessmentIDs {
		if _, ok := byID[id]; ok {
			continue
		}
		rec, ok := records[id]
		if !ok && !updated[id] {
			log.Warn("assessment not found, skipping", "assessment_id", id)
			continue
		}
		stub := newStub(id, rec.Slug, rec.NeedsVerification)
		byID[id] = stub
		stubs = append(stubs, stub)
	}

	for i, upd := range req.Attributes {
		id := *upd.Assessment.ID
		stub, ok := byID[id]
		if !ok {
			stub = newStub(id, "", records[id].NeedsVerification)
			byID[id] = stub
			stubs = append(stubs, stub)
		}
		stub.Slug = *upd.Assessment.Slug

		for j := range upd.Values {
			v := &upd.Values[j]
			stub.SetValue(*v.Title, NormalizeValue(decoded[i][j], *v.Type, people))

			if v.Extra == nil {
				continue
			}
			stub.URLs = append(stub.URLs, v.Extra.URLs...)
			for _, f := range v.Extra.Files {
				stub.Files = append(stub.Files, *f.SourceGDriveID)
			}
			if v.HasComment() {
				stub.Comments = append(stub.Comments, StubComment{
					Description:  v.Extra.Comment.Description,
					DefinitionID: *v.ID,
				})
			}
		}
	}

	log.Debug("collected assessment stubs", "stubs", len(stubs), "people", people.Len())
	return stubs, nil
}

// loadRecords fetches verifier state for every assessment the request names.
func (c *Collector) loadRecords(ctx context.Context, req *Request) (map[int64]AssessmentRecord, error) {
	seen := map[int64]struct{}{}
	var ids []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range req.AssessmentIDs {
		add(id)
	}
	for _, upd := range req.Attributes {
		add(*upd.Assessment.ID)
	}

	records := make(map[int64]AssessmentRecord, len(ids))
	if len(ids) == 0 {
		return records, nil
	}
	rows, err := c.assessments.AssessmentRefs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load assessments: %w", err)
	}
	for _, r := range rows {
		records[r.ID] = r
	}
	return records, nil
}

// decodeValues decodes every raw value once and gathers the person ids
// referenced by Map:Person values.
func decodeValues(req *Request) ([][]any, []int64, error) {
	decoded := make([][]any, len(req.Attributes))
	var personIDs []int64
	for i, upd := range req.Attributes {
		decoded[i] = make([]any, len(upd.Values))
		for j, v := range upd.Values {
			raw, err := decodeRaw(v.Value)
			if err != nil {
				return nil, nil, malformed("attributes[%d].values[%d].value: %v", i, j, err)
			}
			decoded[i][j] = raw
			if *v.Type != TypePerson {
				continue
			}
			if id, ok := personID(raw); ok {
				personIDs = append(personIDs, id)
			}
		}
	}
	return decoded, personIDs, nil
}
