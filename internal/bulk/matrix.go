package bulk

import (
	"context"
	"fmt"
)

// MatrixRow is one joined (attribute definition, assessment, value) record.
// Value and PersonID are nil when the assessment has no stored value.
type MatrixRow struct {
	AttributeDefinitionID int64
	Title                 string
	AttributeType         string
	Mandatory             bool
	DefaultValue          *string
	MultiChoiceOptions    string
	MultiChoiceMandatory  string

	AssessmentID     int64
	AssessmentTitle  string
	AssessmentType   string
	AssessmentStatus string

	Value    *string
	PersonID *int64
}

// MatrixSource returns the local attribute definitions of the given
// assessments joined with their values, in a stable order.
type MatrixSource interface {
	AttributeMatrixRows(ctx context.Context, assessmentIDs []int64) ([]MatrixRow, error)
}

// ColumnKey identifies a logical attribute column across assessments.
// Definitions with equal keys share one column regardless of their ids.
// A missing default and an empty default are different keys.
type ColumnKey struct {
	Title         string
	AttributeType string
	Mandatory     bool
	HasDefault    bool
	DefaultValue  string
}

func columnKey(title, attrType string, mandatory bool, def *string) ColumnKey {
	k := ColumnKey{Title: title, AttributeType: attrType, Mandatory: mandatory}
	if def != nil {
		k.HasDefault = true
		k.DefaultValue = *def
	}
	return k
}

// Cell is the intersection of one column and one assessment.
type Cell struct {
	Value                 *string `json:"value"`
	DisplayValue          string  `json:"display_value,omitempty"`
	PersonID              *int64  `json:"attribute_person_id"`
	DefinitionID          int64   `json:"definition_id"`
	AttributeDefinitionID int64   `json:"attribute_definition_id"`
	MultiChoiceOptions    string  `json:"multi_choice_options"`
	MultiChoiceMandatory  string  `json:"multi_choice_mandatory"`
}

// Column groups the cells of one logical attribute, keyed by assessment id.
type Column struct {
	Title         string         `json:"title"`
	Mandatory     bool           `json:"mandatory"`
	AttributeType string         `json:"attribute_type"`
	DefaultValue  *string        `json:"default_value"`
	Values        map[int64]Cell `json:"values"`
}

// Key returns the column identity.
func (c *Column) Key() ColumnKey {
	return columnKey(c.Title, c.AttributeType, c.Mandatory, c.DefaultValue)
}

// AssessmentSummary describes one assessment shown in the matrix.
type AssessmentSummary struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	AssessmentType string `json:"assessment_type"`
	Status         string `json:"status"`
}

// Matrix is the attribute-by-assessment view used to render bulk editing.
type Matrix struct {
	Attributes  []*Column           `json:"attributes"`
	Assessments []AssessmentSummary `json:"assessments"`
}

// MatrixReader builds attribute matrices from storage.
type MatrixReader struct {
	source MatrixSource
	people PersonLookup
}

// NewMatrixReader creates a MatrixReader.
func NewMatrixReader(source MatrixSource, people PersonLookup) *MatrixReader {
	return &MatrixReader{source: source, people: people}
}

// Read builds the matrix for assessmentIDs. Columns appear in the order their
// key is first met in the source rows; assessments are listed once each.
func (r *MatrixReader) Read(ctx context.Context, assessmentIDs []int64) (*Matrix, error) {
	m := &Matrix{Attributes: []*Column{}, Assessments: []AssessmentSummary{}}
	if len(assessmentIDs) == 0 {
		return m, nil
	}

	rows, err := r.source.AttributeMatrixRows(ctx, assessmentIDs)
	if err != nil {
		return nil, fmt.Errorf("query attribute matrix: %w", err)
	}

	var personIDs []int64
	for _, row := range rows {
		if row.AttributeType == TypePerson && row.PersonID != nil {
			personIDs = append(personIDs, *row.PersonID)
		}
	}
	people, err := NewPersonCache(ctx, r.people, personIDs)
	if err != nil {
		return nil, err
	}

	columns := map[ColumnKey]int{}
	assessments := map[int64]struct{}{}
	for _, row := range rows {
		key := columnKey(row.Title, row.AttributeType, row.Mandatory, row.DefaultValue)
		idx, ok := columns[key]
		if !ok {
			idx = len(m.Attributes)
			columns[key] = idx
			m.Attributes = append(m.Attributes, &Column{
				Title:         row.Title,
				Mandatory:     row.Mandatory,
				AttributeType: row.AttributeType,
				DefaultValue:  row.DefaultValue,
				Values:        map[int64]Cell{},
			})
		}

		cell := Cell{
			Value:                 row.Value,
			PersonID:              row.PersonID,
			DefinitionID:          row.AssessmentID,
			AttributeDefinitionID: row.AttributeDefinitionID,
			MultiChoiceOptions:    row.MultiChoiceOptions,
			MultiChoiceMandatory:  row.MultiChoiceMandatory,
		}
		if row.AttributeType == TypePerson && row.PersonID != nil {
			cell.DisplayValue = people.Lookup(*row.PersonID)
		}
		m.Attributes[idx].Values[row.AssessmentID] = cell

		if _, ok := assessments[row.AssessmentID]; !ok {
			assessments[row.AssessmentID] = struct{}{}
			m.Assessments = append(m.Assessments, AssessmentSummary{
				ID:             row.AssessmentID,
				Title:          row.AssessmentTitle,
				AssessmentType: row.AssessmentType,
				Status:         row.AssessmentStatus,
			})
		}
	}
	return m, nil
}
