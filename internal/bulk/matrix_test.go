package bulk

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type fakeMatrixSource struct {
	rows  []MatrixRow
	calls int
}

func (f *fakeMatrixSource) AttributeMatrixRows(_ context.Context, _ []int64) ([]MatrixRow, error) {
	f.calls++
	return f.rows, nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

func matrixRows() []MatrixRow {
	return []MatrixRow{
		{AttributeDefinitionID: 100, Title: "CAV_X", AttributeType: "Text", AssessmentID: 1,
			AssessmentTitle: "First", AssessmentType: "Control", AssessmentStatus: "Not Started", Value: strPtr("one")},
		{AttributeDefinitionID: 101, Title: "Owner", AttributeType: TypePerson, AssessmentID: 1,
			AssessmentTitle: "First", AssessmentType: "Control", AssessmentStatus: "Not Started", PersonID: intPtr(9)},
		{AttributeDefinitionID: 200, Title: "CAV_X", AttributeType: "Text", AssessmentID: 2,
			AssessmentTitle: "Second", AssessmentType: "Risk", AssessmentStatus: "In Progress", Value: strPtr("two")},
		{AttributeDefinitionID: 201, Title: "CAV_X", AttributeType: "Text", Mandatory: true, AssessmentID: 2,
			AssessmentTitle: "Second", AssessmentType: "Risk", AssessmentStatus: "In Progress",
			MultiChoiceOptions: "a,b", MultiChoiceMandatory: "0,1"},
	}
}

func TestMatrixGroupsByColumnKey(t *testing.T) {
	source := &fakeMatrixSource{rows: matrixRows()}
	people := &fakePeople{emails: map[int64]string{9: "owner@example.com"}}
	m, err := NewMatrixReader(source, people).Read(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if len(m.Attributes) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(m.Attributes))
	}

	x := m.Attributes[0]
	if x.Key() != (ColumnKey{Title: "CAV_X", AttributeType: "Text"}) {
		t.Fatalf("first column key = %+v", x.Key())
	}
	if len(x.Values) != 2 {
		t.Fatalf("CAV_X should hold one cell per assessment, got %d", len(x.Values))
	}
	if x.Values[1].AttributeDefinitionID != 100 || x.Values[2].AttributeDefinitionID != 200 {
		t.Errorf("cells keep their own definition ids: %+v", x.Values)
	}
	if *x.Values[2].Value != "two" || x.Values[2].DefinitionID != 2 {
		t.Errorf("cell for assessment 2 = %+v", x.Values[2])
	}

	owner := m.Attributes[1]
	if owner.Values[1].DisplayValue != "owner@example.com" {
		t.Errorf("person display = %q", owner.Values[1].DisplayValue)
	}

	mandatory := m.Attributes[2]
	if !mandatory.Mandatory || mandatory.Values[2].Value != nil {
		t.Errorf("mandatory CAV_X column = %+v", mandatory)
	}
	if mandatory.Values[2].MultiChoiceOptions != "a,b" {
		t.Errorf("multi choice options = %q", mandatory.Values[2].MultiChoiceOptions)
	}

	if len(m.Assessments) != 2 || m.Assessments[0].ID != 1 || m.Assessments[1].Status != "In Progress" {
		t.Errorf("assessments = %+v", m.Assessments)
	}
	if len(people.calls) != 1 {
		t.Errorf("expected one people lookup, got %d", len(people.calls))
	}
}

func TestMatrixIdempotent(t *testing.T) {
	reader := NewMatrixReader(&fakeMatrixSource{rows: matrixRows()}, &fakePeople{})

	first, err := reader.Read(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	second, err := reader.Read(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("matrix differs between builds:\n%s\n%s", a, b)
	}
}

func TestMatrixNoIDs(t *testing.T) {
	source := &fakeMatrixSource{rows: matrixRows()}
	m, err := NewMatrixReader(source, &fakePeople{}).Read(context.Background(), nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if source.calls != 0 {
		t.Fatal("no ids should not query storage")
	}
	raw, _ := json.Marshal(m)
	if string(raw) != `{"attributes":[],"assessments":[]}` {
		t.Fatalf("empty matrix json = %s", raw)
	}
}

func TestMatrixSeparatesMissingAndEmptyDefault(t *testing.T) {
	rows := []MatrixRow{
		{AttributeDefinitionID: 1, Title: "Notes", AttributeType: "Text", AssessmentID: 1},
		{AttributeDefinitionID: 2, Title: "Notes", AttributeType: "Text", DefaultValue: strPtr(""), AssessmentID: 2},
		{AttributeDefinitionID: 3, Title: "Notes", AttributeType: "Text", DefaultValue: strPtr(""), AssessmentID: 3},
	}
	m, err := NewMatrixReader(&fakeMatrixSource{rows: rows}, &fakePeople{}).Read(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(m.Attributes) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(m.Attributes))
	}
	if m.Attributes[0].DefaultValue != nil || len(m.Attributes[0].Values) != 1 {
		t.Errorf("column without default = %+v", m.Attributes[0])
	}
	if d := m.Attributes[1].DefaultValue; d == nil || *d != "" || len(m.Attributes[1].Values) != 2 {
		t.Errorf("column with empty default = %+v", m.Attributes[1])
	}

	raw, _ := json.Marshal(m.Attributes[0])
	if !strings.Contains(string(raw), `"default_value":null`) {
		t.Errorf("missing default should encode as null: %s", raw)
	}
}
