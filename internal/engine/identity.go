package engine

// identityRecord is one arena entry: a consolidated alias set addressed by
// its canonical key. Singleton users (no recorded aliasing) have no record;
// they are implied.
type identityRecord struct {
	canonical UserKey
	names     []Name // ordered, deduplicated, includes the canonical nick
}

// resolver owns the identity arena. Merges and splits re-point the
// alias-to-canonical index instead of rewriting lists elsewhere; the engine
// applies the returned remaps to groups, mailboxes, and the store.
//
// Invariant: every alias key maps to exactly one record, and the alias sets
// of distinct records never overlap.
type resolver struct {
	recs  map[UserKey]*identityRecord // canonical key -> record
	index map[UserKey]UserKey         // alias key -> canonical key
}

func newResolver() *resolver {
	return &resolver{
		recs:  map[UserKey]*identityRecord{},
		index: map[UserKey]UserKey{},
	}
}

// canonical maps any known nick key to its canonical key. Unknown keys are
// their own canonical (implied singleton).
func (r *resolver) canonical(key UserKey) UserKey {
	if c, ok := r.index[key]; ok {
		return c
	}
	return key
}

// identity returns the Identity a nick denotes, creating an implied
// singleton for unseen nicks. It never mutates the arena.
func (r *resolver) identity(n Name) Identity {
	c := r.canonical(n.Key)
	if rec, ok := r.recs[c]; ok {
		return Identity{Canonical: rec.canonical, Names: cloneNames(rec.names)}
	}
	return Identity{Canonical: c, Names: []Name{n}}
}

// aliases returns the alias set behind a canonical key, or the fallback as
// an implied singleton.
func (r *resolver) aliases(canonical UserKey, fallback Name) []Name {
	if rec, ok := r.recs[canonical]; ok {
		return cloneNames(rec.names)
	}
	return []Name{fallback}
}

// install loads one consolidated record, used when restoring persisted state.
func (r *resolver) install(names []Name) {
	if len(names) == 0 {
		return
	}
	set := newOrderedNames(nil)
	set.extend(names)
	rec := &identityRecord{canonical: lowestKey(set.list), names: set.names()}
	r.recs[rec.canonical] = rec
	for _, n := range rec.names {
		r.index[n.Key] = rec.canonical
	}
}

// merge consolidates the identities of every listed nick into primary's,
// excluding primary itself even when explicitly listed. The merged alias set
// is the flattened union in user-list order: primary's current set first,
// then each listed identity's set, deduplicated left to right.
//
// It returns the merged Identity and a remap of every former canonical key
// that changed, for the engine to apply to groups, mailboxes, and messages.
func (r *resolver) merge(primary Name, listed []Name) (Identity, map[UserKey]UserKey) {
	primCanon := r.canonical(primary.Key)

	merged := newOrderedNames(nil)
	merged.extend(r.aliases(primCanon, primary))

	absorbed := []UserKey{primCanon}
	taken := map[UserKey]struct{}{primCanon: {}}
	for _, n := range listed {
		c := r.canonical(n.Key)
		if _, ok := taken[c]; ok {
			continue
		}
		taken[c] = struct{}{}
		merged.extend(r.aliases(c, n))
		absorbed = append(absorbed, c)
	}

	names := merged.names()
	newCanon := lowestKey(names)

	for _, c := range absorbed {
		delete(r.recs, c)
	}
	r.recs[newCanon] = &identityRecord{canonical: newCanon, names: names}
	for _, n := range names {
		r.index[n.Key] = newCanon
	}

	remap := map[UserKey]UserKey{}
	for _, c := range absorbed {
		if c != newCanon {
			remap[c] = newCanon
		}
	}
	return Identity{Canonical: newCanon, Names: cloneNames(names)}, remap
}

// unmerge removes the given nicks from primary's alias set. Removed nicks
// become implied singletons; the remaining set (possibly empty) keeps a
// record with a freshly chosen canonical key.
//
// It returns the surviving Identity (zero-valued when every alias was
// removed), the number of aliases actually removed, and the canonical remap.
func (r *resolver) unmerge(primary Name, removals []Name) (Identity, int, map[UserKey]UserKey) {
	primCanon := r.canonical(primary.Key)
	cur := r.aliases(primCanon, primary)

	remaining := newOrderedNames(nil)
	remaining.extend(cur)
	removed := 0
	for _, n := range removals {
		if remaining.contains(n) {
			remaining.discard(n)
			removed++
		}
	}
	if removed == 0 {
		return Identity{Canonical: primCanon, Names: cur}, 0, nil
	}

	delete(r.recs, primCanon)
	for _, n := range cur {
		delete(r.index, n.Key)
	}

	remap := map[UserKey]UserKey{}
	if remaining.len() == 0 {
		// Everything removed; all former aliases are singletons now. The old
		// canonical key still denotes its own singleton, so nothing remaps.
		return Identity{}, removed, remap
	}

	names := remaining.names()
	newCanon := lowestKey(names)
	r.recs[newCanon] = &identityRecord{canonical: newCanon, names: names}
	for _, n := range names {
		r.index[n.Key] = newCanon
	}
	if newCanon != primCanon {
		remap[primCanon] = newCanon
	}
	return Identity{Canonical: newCanon, Names: cloneNames(names)}, removed, remap
}

// lowestKey picks the deterministic canonical representative: the
// alphabetically-lowest alias key (keys are already case-folded).
func lowestKey(names []Name) UserKey {
	low := names[0].Key
	for _, n := range names[1:] {
		if n.Key < low {
			low = n.Key
		}
	}
	return low
}
