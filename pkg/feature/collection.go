package feature

// Collection is an ordered set of features, typically all of one type.
type Collection struct {
	Type *FeatureType // May be nil for mixed input collections

	members []*Feature
}

// NewCollection creates a collection holding the given features.
func NewCollection(ft *FeatureType, features ...*Feature) *Collection {
	c := &Collection{Type: ft}
	c.members = append(c.members, features...)
	return c
}

// Len returns the number of members.
func (c *Collection) Len() int {
	return len(c.members)
}

// Features returns the members in order. The slice must not be modified.
func (c *Collection) Features() []*Feature {
	return c.members
}

// Add appends features to the collection.
func (c *Collection) Add(features ...*Feature) {
	c.members = append(c.members, features...)
}

// Get returns the member with the given identifier.
func (c *Collection) Get(id string) (*Feature, bool) {
	for _, f := range c.members {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// Remove removes the given feature (by identity) and reports whether it was
// a member.
func (c *Collection) Remove(f *Feature) bool {
	for i, m := range c.members {
		if m == f {
			c.members = append(c.members[:i:i], c.members[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll removes every member contained in the set in a single pass and
// returns the number removed.
func (c *Collection) RemoveAll(set map[*Feature]struct{}) int {
	if len(set) == 0 {
		return 0
	}
	kept := make([]*Feature, 0, len(c.members))
	for _, m := range c.members {
		if _, drop := set[m]; !drop {
			kept = append(kept, m)
		}
	}
	removed := len(c.members) - len(kept)
	if removed > 0 {
		c.members = kept
	}
	return removed
}

// Replace swaps old for replacement at the same position.
func (c *Collection) Replace(old, replacement *Feature) bool {
	for i, m := range c.members {
		if m == old {
			// Copy before writing so shallow clones never observe the change.
			members := make([]*Feature, len(c.members))
			copy(members, c.members)
			members[i] = replacement
			c.members = members
			return true
		}
	}
	return false
}

// Envelope returns the aggregate envelope of all members, or false if no
// member has geometry. It is computed on every call; the store keeps its own
// per-type aggregates.
func (c *Collection) Envelope() (Envelope, bool) {
	var (
		env Envelope
		ok  bool
	)
	for _, f := range c.members {
		fenv, fok := f.Envelope()
		env, ok = unionAll(env, ok, fenv, fok)
	}
	return env, ok
}

// Clone returns a shallow copy: a new member slice pointing at the same
// features.
func (c *Collection) Clone() *Collection {
	members := make([]*Feature, len(c.members))
	copy(members, c.members)
	return &Collection{Type: c.Type, members: members}
}
