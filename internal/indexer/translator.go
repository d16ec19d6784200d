package indexer

import (
	"github.com/keonramses/Cinephage-sub002/internal/indexer/types"
)

// Translator converts between the canonical category taxonomy and one
// index's native category ids. Built once per index from its declared
// mappings; immutable afterwards.
//
// Every native category maps to at most one canonical category; a
// canonical category may map to many native ones.
type Translator struct {
	forward  map[string]int      // native -> canonical
	reverse  map[int][]string    // canonical -> natives, discovery order
	defaults []string            // natives flagged default, discovery order
	order    []string            // all natives, discovery order
}

// NewTranslator builds a translator from an index's declared mappings.
func NewTranslator(mappings []types.NativeCategory) *Translator {
	t := &Translator{
		forward: make(map[string]int),
		reverse: make(map[int][]string),
	}
	for _, m := range mappings {
		if _, seen := t.forward[m.ID]; seen {
			continue
		}
		t.forward[m.ID] = m.CanonicalID
		t.reverse[m.CanonicalID] = append(t.reverse[m.CanonicalID], m.ID)
		t.order = append(t.order, m.ID)
		if m.Default {
			t.defaults = append(t.defaults, m.ID)
		}
	}
	return t
}

// MapCanonicalToNative unions the native ids for each requested
// canonical id, deduplicated and order-stable by first discovery.
// When none of the requested canonical ids have a native equivalent,
// the index's default set is returned instead: category taxonomies are
// lossy across indexes, so an index with no exact category is still
// searched with its general bucket rather than skipped.
func (t *Translator) MapCanonicalToNative(canonicalIDs []int) []string {
	var natives []string
	seen := make(map[string]bool)
	for _, id := range canonicalIDs {
		for _, native := range t.reverse[id] {
			if !seen[native] {
				seen[native] = true
				natives = append(natives, native)
			}
		}
		// A requested parent category also pulls in its subcategories,
		// walked in declaration order to keep the result stable.
		if id%1000 == 0 {
			for _, native := range t.order {
				canonical := t.forward[native]
				if canonical > id && canonical < id+1000 && !seen[native] {
					seen[native] = true
					natives = append(natives, native)
				}
			}
		}
	}
	if len(natives) == 0 {
		return t.Defaults()
	}
	return natives
}

// MapNativeToCanonical returns the canonical ids for a set of native
// ids, deduplicated, order-stable, unknown natives skipped.
func (t *Translator) MapNativeToCanonical(nativeIDs []string) []int {
	var canonical []int
	seen := make(map[int]bool)
	for _, native := range nativeIDs {
		id, ok := t.forward[native]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		canonical = append(canonical, id)
	}
	return canonical
}

// CanonicalFor returns the canonical id a single native id maps to.
func (t *Translator) CanonicalFor(nativeID string) (int, bool) {
	id, ok := t.forward[nativeID]
	return id, ok
}

// Defaults returns the native categories flagged default, in
// declaration order.
func (t *Translator) Defaults() []string {
	out := make([]string, len(t.defaults))
	copy(out, t.defaults)
	return out
}
