package bulk

import (
	"strconv"
	"strings"
	"time"
)

// Assessment states written by the completion and verify batches.
const (
	StateCompleted = "Completed"
	StateInReview  = "In Review"
)

const (
	columnCode          = "Code"
	columnEvidenceURL   = "Evidence URL"
	columnEvidenceFile  = "Evidence File"
	columnState         = "State"
	columnVerifiedDate  = "Verified Date"
	columnDescription   = "description"
	columnCommentTarget = "custom_attribute_definition"

	multiValueSeparator = "\n"
	verifiedDateLayout  = "01/02/2006"
)

// AttributeUpdateBatch builds the batch that writes attribute values,
// evidence and comments. Attribute columns follow the first-seen order of
// titles across stubs. Stubs without content get no row; the comment block
// is emitted only when some stub has comments.
func AttributeUpdateBatch(stubs []*Stub) *Batch {
	titles := attributeTitles(stubs)

	var rows [][]string
	for _, s := range stubs {
		if !s.HasContent() {
			continue
		}
		row := []string{
			s.Slug,
			strings.Join(s.URLs, multiValueSeparator),
			strings.Join(s.Files, multiValueSeparator),
		}
		for _, title := range titles {
			row = append(row, s.Values[title])
		}
		rows = append(rows, row)
	}

	batch := &Batch{}
	if len(rows) > 0 {
		columns := append([]string{columnCode, columnEvidenceURL, columnEvidenceFile}, titles...)
		batch.Blocks = append(batch.Blocks, Block{
			ObjectType: ObjectTypeAssessment,
			Columns:    columns,
			Rows:       rows,
		})
	}

	var comments [][]string
	for _, s := range stubs {
		for _, c := range s.Comments {
			comments = append(comments, []string{c.Description, strconv.FormatInt(c.DefinitionID, 10)})
		}
	}
	if len(comments) > 0 {
		batch.Blocks = append(batch.Blocks, Block{
			ObjectType: ObjectTypeLCAComment,
			Columns:    []string{columnDescription, columnCommentTarget},
			Rows:       comments,
		})
	}
	return batch
}

// CompletionBatch builds the status transition batch for every stub whose
// slug is not in failed. Stubs that need verification move to review.
func CompletionBatch(stubs []*Stub, failed SlugSet) *Batch {
	var rows [][]string
	for _, s := range Survivors(stubs, failed) {
		state := StateCompleted
		if s.NeedsVerification {
			state = StateInReview
		}
		rows = append(rows, []string{s.Slug, state})
	}
	if len(rows) == 0 {
		return &Batch{}
	}
	return &Batch{Blocks: []Block{{
		ObjectType: ObjectTypeAssessment,
		Columns:    []string{columnCode, columnState},
		Rows:       rows,
	}}}
}

// VerifyBatch completes every stub unconditionally and stamps the
// verification date with verifiedAt.
func VerifyBatch(stubs []*Stub, verifiedAt time.Time) *Batch {
	if len(stubs) == 0 {
		return &Batch{}
	}
	date := verifiedAt.Format(verifiedDateLayout)
	rows := make([][]string, 0, len(stubs))
	for _, s := range stubs {
		rows = append(rows, []string{s.Slug, StateCompleted, date})
	}
	return &Batch{Blocks: []Block{{
		ObjectType: ObjectTypeAssessment,
		Columns:    []string{columnCode, columnState, columnVerifiedDate},
		Rows:       rows,
	}}}
}

// Survivors returns the stubs whose slug is not in failed, in order.
func Survivors(stubs []*Stub, failed SlugSet) []*Stub {
	out := make([]*Stub, 0, len(stubs))
	for _, s := range stubs {
		if !failed.Has(s.Slug) {
			out = append(out, s)
		}
	}
	return out
}

func attributeTitles(stubs []*Stub) []string {
	seen := map[string]struct{}{}
	var titles []string
	for _, s := range stubs {
		for _, title := range s.Titles {
			if _, ok := seen[title]; ok {
				continue
			}
			seen[title] = struct{}{}
			titles = append(titles, title)
		}
	}
	return titles
}
