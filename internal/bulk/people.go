package bulk

import (
	"context"
	"fmt"
)

// PersonLookup resolves person identifiers to their display value (email).
type PersonLookup interface {
	PersonEmails(ctx context.Context, ids []int64) (map[int64]string, error)
}

// PersonCache holds the display values of every person referenced by one
// pipeline run. It is filled by a single batched lookup and never refreshed.
type PersonCache struct {
	byID map[int64]string
}

// NewPersonCache resolves ids with one call to lookup. Duplicate ids are
// collapsed; no call is made when ids is empty.
func NewPersonCache(ctx context.Context, lookup PersonLookup, ids []int64) (*PersonCache, error) {
	c := &PersonCache{byID: map[int64]string{}}
	if len(ids) == 0 {
		return c, nil
	}

	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	emails, err := lookup.PersonEmails(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("lookup people: %w", err)
	}
	for id, email := range emails {
		c.byID[id] = email
	}
	return c, nil
}

// Lookup returns the display value for id, or "" when it was not resolved.
func (c *PersonCache) Lookup(id int64) string {
	if c == nil {
		return ""
	}
	return c.byID[id]
}

// Len returns the number of resolved people.
func (c *PersonCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byID)
}
