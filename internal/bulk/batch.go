package bulk

import (
	"encoding/json"
	"sort"
)

// Object types understood by the import engine.
const (
	ObjectTypeAssessment = "Assessment"
	ObjectTypeLCAComment = "LCA Comment"
)

const objectTypeHeader = "Object type"

// Block is one table of a batch, scoped to a single object type.
type Block struct {
	ObjectType string
	Columns    []string
	Rows       [][]string
}

// Batch is an ordered sequence of blocks consumed once by the import engine.
type Batch struct {
	Blocks []Block
}

// Empty reports whether the batch has no data rows at all.
func (b *Batch) Empty() bool {
	if b == nil {
		return true
	}
	for _, blk := range b.Blocks {
		if len(blk.Rows) > 0 {
			return false
		}
	}
	return true
}

// Rows renders the batch in the import engine's tabular wire format. Each
// block is ["Object type"], then the object type followed by its column names,
// then data rows whose first cell is reserved and left empty, then a blank
// separator row.
func (b *Batch) Rows() [][]string {
	if b == nil {
		return nil
	}
	var out [][]string
	for _, blk := range b.Blocks {
		header := append([]string{blk.ObjectType}, blk.Columns...)
		out = append(out, []string{objectTypeHeader}, header)
		for _, row := range blk.Rows {
			out = append(out, append([]string{""}, row...))
		}
		out = append(out, make([]string, len(header)))
	}
	return out
}

// SlugSet is a set of assessment slugs. It serializes as a sorted array.
type SlugSet map[string]struct{}

// NewSlugSet builds a set from slugs.
func NewSlugSet(slugs ...string) SlugSet {
	s := make(SlugSet, len(slugs))
	for _, slug := range slugs {
		s[slug] = struct{}{}
	}
	return s
}

// Has reports whether slug is in the set.
func (s SlugSet) Has(slug string) bool {
	_, ok := s[slug]
	return ok
}

// Sorted returns the slugs in lexical order.
func (s SlugSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for slug := range s {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s SlugSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SlugSet) UnmarshalJSON(data []byte) error {
	var slugs []string
	if err := json.Unmarshal(data, &slugs); err != nil {
		return err
	}
	*s = NewSlugSet(slugs...)
	return nil
}
