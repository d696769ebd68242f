package sync

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"collection-sync/internal/core/schema"
)

var (
	germanReplacer = strings.NewReplacer(
		"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
		"ä", "ae", "ö", "oe", "ü", "ue",
		"ß", "ss",
	)
	reNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeSlug converts an arbitrary string to a kebab-case ASCII slug.
//   - Replaces German umlauts and ß, strips other diacritics
//   - Lowercases
//   - Replaces runs of non-alphanumerics with single dashes
//   - Trims leading/trailing dashes
//
// The result is empty when nothing slug-worthy remains.
func NormalizeSlug(input string) string {
	s := germanReplacer.Replace(input)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	s = reNonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugCollision records an item dropped because another item already owns
// its slug, either earlier in the batch or from a previous run.
type SlugCollision struct {
	Slug    string
	KeptID  string
	Dropped schema.CollectionItem
}

// DedupeSlugs keeps the first item per slug and reports the rest. Slugs in
// taken (slug to item id) are owned before the batch starts. Input order
// decides which batch item wins.
func DedupeSlugs(items []schema.CollectionItem, taken map[string]string) ([]schema.CollectionItem, []SlugCollision) {
	owner := make(map[string]string, len(items)+len(taken))
	for slug, id := range taken {
		owner[slug] = id
	}
	kept := items[:0:0]
	var collisions []SlugCollision
	for _, it := range items {
		if id, ok := owner[it.Slug]; ok && id != it.ID {
			collisions = append(collisions, SlugCollision{Slug: it.Slug, KeptID: id, Dropped: it})
			continue
		}
		owner[it.Slug] = it.ID
		kept = append(kept, it)
	}
	return kept, collisions
}
