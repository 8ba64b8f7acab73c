package engine

import (
	"sort"
	"strings"

	"tellbot/pkg/glob"
)

// groupStore holds the named, ordered member sets. Group names are unique
// case-insensitively; the display casing of the first reference wins.
// Members carry the canonical key of an identity; only the canonical
// representative is ever persisted for aliased users.
type groupStore struct {
	groups map[string]*Group // lowercased name -> group
}

func newGroupStore() *groupStore {
	return &groupStore{groups: map[string]*Group{}}
}

func groupKey(name string) string { return strings.ToLower(name) }

func (g *groupStore) get(name string) (*Group, bool) {
	grp, ok := g.groups[groupKey(name)]
	return grp, ok
}

// members returns a copy of the group's member list, empty when the group
// does not exist (an unknown group is just an empty set to the evaluator).
func (g *groupStore) members(name string) []Name {
	if grp, ok := g.get(name); ok {
		return cloneNames(grp.Members)
	}
	return nil
}

// upsert replaces the member set, creating the group on first reference.
func (g *groupStore) upsert(name string, members []Name) *Group {
	set := newOrderedNames(nil)
	set.extend(members)
	grp, ok := g.get(name)
	if !ok {
		grp = &Group{Name: name}
		g.groups[groupKey(name)] = grp
	}
	grp.Members = set.names()
	return grp
}

func (g *groupStore) description(name string) string {
	if grp, ok := g.get(name); ok {
		return grp.Description
	}
	return ""
}

func (g *groupStore) setDescription(name, desc string) *Group {
	grp, ok := g.get(name)
	if !ok {
		grp = &Group{Name: name}
		g.groups[groupKey(name)] = grp
	}
	grp.Description = desc
	return grp
}

// list enumerates group names matching the pattern (entire-name,
// case-insensitive), sorted case-insensitively ascending. An empty pattern
// matches everything.
func (g *groupStore) list(pattern string) ([]string, error) {
	if pattern != "" {
		// Checked up front so a broken pattern is rejected even when no
		// groups exist to match against.
		if err := glob.Validate(pattern); err != nil {
			return nil, err
		}
	}
	var out []string
	for _, grp := range g.groups {
		if pattern != "" {
			ok, err := glob.Match(pattern, grp.Name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, grp.Name)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out, nil
}

// groupsOf scans membership for the identity with the given canonical key,
// returning group names sorted case-insensitively.
func (g *groupStore) groupsOf(canonical UserKey) []string {
	var out []string
	for _, grp := range g.groups {
		for _, m := range grp.Members {
			if m.Key == canonical {
				out = append(out, grp.Name)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// rekey rewrites member keys after an alias merge or split, deduplicating
// while keeping each surviving member's first position. It returns the
// names of the groups that changed, for write-back.
func (g *groupStore) rekey(remap map[UserKey]UserKey) []string {
	if len(remap) == 0 {
		return nil
	}
	var changed []string
	for _, grp := range g.groups {
		touched := false
		set := newOrderedNames(nil)
		for _, m := range grp.Members {
			if to, ok := remap[m.Key]; ok {
				m.Key = to
				touched = true
			}
			set.add(m)
		}
		if touched {
			grp.Members = set.names()
			changed = append(changed, grp.Name)
		}
	}
	sort.Strings(changed)
	return changed
}
