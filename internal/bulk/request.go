package bulk

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRequest is returned when a bulk payload is missing required keys.
// It aborts the whole run; it is never reported per object.
var ErrMalformedRequest = errors.New("malformed bulk request")

// Request is the payload accepted by the bulk complete, verify and save operations.
type Request struct {
	AssessmentIDs []int64            `json:"assessments_ids"`
	Attributes    []AssessmentUpdate `json:"attributes"`
}

// AssessmentUpdate carries the attribute values submitted for one assessment.
type AssessmentUpdate struct {
	Assessment *AssessmentKey `json:"assessment"`
	Values     []ValueEntry   `json:"values"`
}

// AssessmentKey identifies the target assessment of an update.
type AssessmentKey struct {
	ID   *int64  `json:"id"`
	Slug *string `json:"slug"`
}

// ValueEntry is a single attribute value of an update. Value keeps the raw
// JSON so that an absent key can be told apart from an explicit null.
type ValueEntry struct {
	Value        json.RawMessage `json:"value"`
	Title        *string         `json:"title"`
	Type         *string         `json:"type"`
	DefinitionID *int64          `json:"definition_id"`
	ID           *int64          `json:"id"`
	Extra        *Extra          `json:"extra"`
}

// Extra holds the evidence and comment attached to a value entry.
type Extra struct {
	Comment *CommentBody `json:"comment"`
	URLs    []string     `json:"urls"`
	Files   []FileRef    `json:"files"`
}

// CommentBody is the comment attached to an attribute value.
type CommentBody struct {
	Description string `json:"description"`
}

// FileRef references an evidence file in the external document service.
type FileRef struct {
	SourceGDriveID *string `json:"source_gdrive_id"`
}

// HasComment reports whether the entry carries a non-empty comment.
func (v *ValueEntry) HasComment() bool {
	return v.Extra != nil && v.Extra.Comment != nil && v.Extra.Comment.Description != ""
}

// HasFiles reports whether any value entry attaches evidence files.
func (r *Request) HasFiles() bool {
	for _, upd := range r.Attributes {
		for _, v := range upd.Values {
			if v.Extra != nil && len(v.Extra.Files) > 0 {
				return true
			}
		}
	}
	return false
}

// Validate checks that every key the pipeline dereferences is present.
func (r *Request) Validate() error {
	for i, upd := range r.Attributes {
		if upd.Assessment == nil {
			return malformed("attributes[%d].assessment is required", i)
		}
		if upd.Assessment.ID == nil {
			return malformed("attributes[%d].assessment.id is required", i)
		}
		if upd.Assessment.Slug == nil || *upd.Assessment.Slug == "" {
			return malformed("attributes[%d].assessment.slug is required", i)
		}
		if upd.Values == nil {
			return malformed("attributes[%d].values is required", i)
		}
		for j, v := range upd.Values {
			if len(v.Value) == 0 {
				return malformed("attributes[%d].values[%d].value is required", i, j)
			}
			if v.Title == nil {
				return malformed("attributes[%d].values[%d].title is required", i, j)
			}
			if v.Type == nil {
				return malformed("attributes[%d].values[%d].type is required", i, j)
			}
			if v.HasComment() && v.ID == nil {
				return malformed("attributes[%d].values[%d].id is required with a comment", i, j)
			}
			if v.Extra == nil {
				continue
			}
			for k, f := range v.Extra.Files {
				if f.SourceGDriveID == nil {
					return malformed("attributes[%d].values[%d].extra.files[%d].source_gdrive_id is required", i, j, k)
				}
			}
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}
