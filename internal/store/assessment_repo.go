package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AgentMesh-Net/bulkops/internal/bulk"
)

// VerifierRole is the role whose assignment makes completion go through review.
const VerifierRole = "Verifiers"

// assessmentDefinitionType marks attribute definitions local to one assessment.
const assessmentDefinitionType = "assessment"

// PostgresAssessmentRepo reads assessments, their local attributes and people.
// It implements bulk.AssessmentSource, bulk.MatrixSource and bulk.PersonLookup.
type PostgresAssessmentRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresAssessmentRepo creates a PostgresAssessmentRepo.
func NewPostgresAssessmentRepo(pool *pgxpool.Pool) *PostgresAssessmentRepo {
	return &PostgresAssessmentRepo{pool: pool}
}

func (r *PostgresAssessmentRepo) AssessmentRefs(ctx context.Context, ids []int64) ([]bulk.AssessmentRecord, error) {
	const q = `
SELECT a.id, a.slug,
       EXISTS (SELECT 1 FROM assessment_roles ar
               WHERE ar.assessment_id = a.id AND ar.role_name = $2)
FROM assessments a
WHERE a.id = ANY($1)
ORDER BY a.id`
	rows, err := r.pool.Query(ctx, q, ids, VerifierRole)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	var out []bulk.AssessmentRecord
	for rows.Next() {
		var rec bulk.AssessmentRecord
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.NeedsVerification); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresAssessmentRepo) AttributeMatrixRows(ctx context.Context, ids []int64) ([]bulk.MatrixRow, error) {
	const q = `
SELECT cad.id, cad.title, cad.attribute_type, cad.mandatory,
       cad.default_value,
       COALESCE(cad.multi_choice_options,''), COALESCE(cad.multi_choice_mandatory,''),
       a.id, a.title, COALESCE(a.assessment_type,''), a.status,
       cav.attribute_value, cav.attribute_object_id
FROM custom_attribute_definitions cad
JOIN assessments a ON cad.definition_id = a.id
LEFT JOIN custom_attribute_values cav
       ON cav.custom_attribute_id = cad.id AND cav.attributable_id = a.id
WHERE a.id = ANY($1) AND cad.definition_type = $2
ORDER BY a.id, cad.id`
	rows, err := r.pool.Query(ctx, q, ids, assessmentDefinitionType)
	if err != nil {
		return nil, fmt.Errorf("query attribute matrix: %w", err)
	}
	defer rows.Close()

	var out []bulk.MatrixRow
	for rows.Next() {
		var m bulk.MatrixRow
		if err := rows.Scan(
			&m.AttributeDefinitionID, &m.Title, &m.AttributeType, &m.Mandatory,
			&m.DefaultValue,
			&m.MultiChoiceOptions, &m.MultiChoiceMandatory,
			&m.AssessmentID, &m.AssessmentTitle, &m.AssessmentType, &m.AssessmentStatus,
			&m.Value, &m.PersonID,
		); err != nil {
			return nil, fmt.Errorf("scan attribute matrix: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresAssessmentRepo) PersonEmails(ctx context.Context, ids []int64) (map[int64]string, error) {
	const q = `SELECT id, email FROM people WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var (
			id    int64
			email string
		)
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out[id] = email
	}
	return out, rows.Err()
}

var (
	_ bulk.AssessmentSource = (*PostgresAssessmentRepo)(nil)
	_ bulk.MatrixSource     = (*PostgresAssessmentRepo)(nil)
	_ bulk.PersonLookup     = (*PostgresAssessmentRepo)(nil)
)
