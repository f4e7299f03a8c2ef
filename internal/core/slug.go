package core

// slug.go derives URL-safe identifiers and makes them unique per collection.
//
// The check-then-use sequence is not atomic across concurrent jobs. A slug
// claimed by another job between FindBySlug and InsertDraft surfaces as
// ErrSlugTaken from the store and fails that row; it is never overwritten.

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
)

// DefaultSlug is used when a title has no alphanumeric characters at all.
const DefaultSlug = "untitled"

// MaxSlugAttempts bounds the -1, -2, ... suffix search.
var MaxSlugAttempts = 10000

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveSlug lower-cases title, collapses every run of non-alphanumeric
// characters to one hyphen and trims leading/trailing hyphens. Accented
// letters are transliterated to ASCII first.
func DeriveSlug(title string) string {
	s := strings.ToLower(unidecode.Unidecode(title))
	s = nonAlnumRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugResolver finds an unused slug in a collection.
type SlugResolver struct {
	store ContentStore
}

// NewSlugResolver creates a resolver backed by store.
func NewSlugResolver(store ContentStore) *SlugResolver {
	return &SlugResolver{store: store}
}

// Resolve returns the base slug of candidateTitle if it is free in
// targetCollection, otherwise the first free base-1, base-2, ...
func (r *SlugResolver) Resolve(ctx context.Context, candidateTitle, targetCollection string) (string, error) {
	base := DeriveSlug(candidateTitle)
	if base == "" {
		base = DefaultSlug
	}
	return r.Unique(ctx, base, targetCollection)
}

// Unique probes base and its numbered variants until one is unused.
func (r *SlugResolver) Unique(ctx context.Context, base, targetCollection string) (string, error) {
	candidate := base
	for i := 1; i <= MaxSlugAttempts; i++ {
		_, taken, err := r.store.FindBySlug(ctx, targetCollection, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, MaxSlugAttempts)
}
