package engine

import "strings"

// Op is one parsed token of the user-list expression language.
//
// Bare `@nick` and `*group` tokens are additions; the long forms `+@nick`,
// `+*group`, `-@nick`, `-*group` make the direction explicit. The fold over
// ops is deliberately non-commutative: adding appends at the end unless the
// member is already present, removing forgets the position entirely.
type Op struct {
	Remove bool
	Group  bool
	Ref    string // name without sigils
}

// Token renders the op's addressing token, e.g. "@joe" or "*ops".
func (o Op) Token() string {
	if o.Group {
		return "*" + o.Ref
	}
	return "@" + DisplayNick(o.Ref)
}

// ParseOp recognizes a user-list token. ok is false for anything else
// (options, message text).
func ParseOp(tok string) (Op, bool) {
	switch {
	case strings.HasPrefix(tok, "+@"):
		return Op{Ref: tok[2:]}, true
	case strings.HasPrefix(tok, "+*"):
		return Op{Group: true, Ref: tok[2:]}, true
	case strings.HasPrefix(tok, "-@"):
		return Op{Remove: true, Ref: tok[2:]}, true
	case strings.HasPrefix(tok, "-*"):
		return Op{Remove: true, Group: true, Ref: tok[2:]}, true
	case strings.HasPrefix(tok, "@"):
		return Op{Ref: tok[1:]}, true
	case strings.HasPrefix(tok, "*"):
		return Op{Group: true, Ref: tok[1:]}, true
	default:
		return Op{}, false
	}
}

// Segment is one addressing token's contribution to a resolved list, used
// for the breakdown reply ("*ops (@a, @b, ...)").
type Segment struct {
	Token   string
	Group   bool
	Members []Name // fresh members this token contributed
	Total   int    // full size of the token's expansion at evaluation time
}

// ListResult is the outcome of evaluating a user-list expression.
type ListResult struct {
	// Members is the resolved, ordered list, deduplicated by canonical key.
	// Each Name carries the canonical key and the display nick it was
	// referenced by.
	Members []Name
	// Reasons maps each member's canonical key to the addressing token that
	// caused its inclusion. A direct user token beats an earlier group token.
	Reasons map[UserKey]string
	// Segments is the per-token breakdown in op order.
	Segments []Segment
	// Explicit marks members named directly by a user token (bare @ or +@).
	// Group-derived membership is not explicit.
	Explicit map[UserKey]struct{}
}

// evalList folds ops left-to-right over base. It is a pure computation; no
// store is touched, so callers can reject before mutating.
// Caller must hold e.mu.
func (e *Engine) evalList(base []Name, ops []Op, allowGroups bool) (*ListResult, error) {
	res := &ListResult{
		Reasons:  map[UserKey]string{},
		Explicit: map[UserKey]struct{}{},
	}

	set := newOrderedNames(nil)
	for _, n := range base {
		set.add(Name{Key: e.ids.canonical(n.Key), Display: n.Display})
	}

	// covered tracks members already attributed to some segment, so a later
	// group expansion only reports the fresh ones.
	covered := map[UserKey]struct{}{}
	segIdx := map[string]int{} // group token -> segment index

	for _, op := range ops {
		if op.Group && !allowGroups {
			return nil, reject(KindInvalidListContent, "please do not specify groups")
		}
		switch {
		case !op.Group && !op.Remove:
			n := NameOf(op.Ref)
			member := Name{Key: e.ids.canonical(n.Key), Display: n.Display}
			set.add(member)
			// A direct mention overrides an earlier group attribution.
			if prev, ok := res.Reasons[member.Key]; ok && strings.HasPrefix(prev, "*") {
				if i, ok := segIdx[prev]; ok {
					res.Segments[i].Members = withoutKey(res.Segments[i].Members, member.Key)
				}
			}
			res.Reasons[member.Key] = op.Token()
			res.Explicit[member.Key] = struct{}{}
			covered[member.Key] = struct{}{}
			res.Segments = append(res.Segments, Segment{
				Token:   op.Token(),
				Members: []Name{member},
				Total:   1,
			})

		case op.Group && !op.Remove:
			expansion := e.groups.members(op.Ref)
			seg := Segment{Token: op.Token(), Group: true, Total: len(expansion)}
			for _, m := range expansion {
				member := Name{Key: e.ids.canonical(m.Key), Display: m.Display}
				set.add(member)
				if _, ok := covered[member.Key]; ok {
					continue
				}
				covered[member.Key] = struct{}{}
				res.Reasons[member.Key] = op.Token()
				seg.Members = append(seg.Members, member)
			}
			res.Segments = append(res.Segments, seg)

		case !op.Group: // remove user
			set.discardKey(e.ids.canonical(NormalizeNick(op.Ref)))

		default: // remove group
			for _, m := range e.groups.members(op.Ref) {
				set.discardKey(e.ids.canonical(m.Key))
			}
		}
	}

	res.Members = set.names()

	// Drop segment entries for members removed again later; the final
	// breakdown describes the resulting list, not the journey.
	final := map[UserKey]struct{}{}
	for _, m := range res.Members {
		final[m.Key] = struct{}{}
	}
	for i := range res.Segments {
		kept := res.Segments[i].Members[:0]
		for _, m := range res.Segments[i].Members {
			if _, ok := final[m.Key]; ok {
				kept = append(kept, m)
			}
		}
		res.Segments[i].Members = kept
	}
	return res, nil
}

func withoutKey(ns []Name, k UserKey) []Name {
	kept := ns[:0]
	for _, n := range ns {
		if n.Key != k {
			kept = append(kept, n)
		}
	}
	return kept
}
