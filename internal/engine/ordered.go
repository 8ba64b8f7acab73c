package engine

// orderedNames is an insertion-ordered, deduplicated set of Names. The
// dedup key is caller-chosen: raw nick key for alias sets, canonical key for
// recipient lists (so two aliases of one user collapse to one entry).
//
// Re-adding a present member leaves its position unchanged; discarding
// forgets the position, so a later re-add appends at the end.
type orderedNames struct {
	key  func(Name) UserKey
	seen map[UserKey]struct{}
	list []Name
}

func newOrderedNames(key func(Name) UserKey) *orderedNames {
	if key == nil {
		key = func(n Name) UserKey { return n.Key }
	}
	return &orderedNames{key: key, seen: map[UserKey]struct{}{}}
}

func (o *orderedNames) add(n Name) {
	k := o.key(n)
	if _, ok := o.seen[k]; ok {
		return
	}
	o.seen[k] = struct{}{}
	o.list = append(o.list, n)
}

func (o *orderedNames) extend(ns []Name) {
	for _, n := range ns {
		o.add(n)
	}
}

func (o *orderedNames) discard(n Name) {
	o.discardKey(o.key(n))
}

func (o *orderedNames) discardKey(k UserKey) {
	if _, ok := o.seen[k]; !ok {
		return
	}
	delete(o.seen, k)
	kept := o.list[:0]
	for _, m := range o.list {
		if o.key(m) != k {
			kept = append(kept, m)
		}
	}
	o.list = kept
}

func (o *orderedNames) contains(n Name) bool {
	_, ok := o.seen[o.key(n)]
	return ok
}

func (o *orderedNames) len() int { return len(o.list) }

// names returns the members in insertion order as a fresh slice.
func (o *orderedNames) names() []Name {
	return append([]Name(nil), o.list...)
}

func cloneNames(ns []Name) []Name {
	return append([]Name(nil), ns...)
}
