// Package registry keeps the process-local table of group key to attached
// connections.
//
// Every group has its own lock, so joins and leaves in unrelated rooms never
// contend. A group that becomes empty is retired and removed from the table;
// callers that raced with the removal retry against a fresh group.
package registry

import "sync"

// Member is anything that can sit in a group. Two members with the same ID
// are the same member.
type Member interface {
	ID() string
}

type group[M Member] struct {
	mu      sync.Mutex
	members map[string]M
	retired bool
}

// Registry maps group keys to member sets. The zero value is ready to use.
type Registry[M Member] struct {
	groups sync.Map // string -> *group[M]
}

func New[M Member]() *Registry[M] {
	return &Registry[M]{}
}

// lock returns the live group for key with its mutex held, creating it if needed.
func (r *Registry[M]) lock(key string) *group[M] {
	for {
		v, ok := r.groups.Load(key)
		if !ok {
			v, _ = r.groups.LoadOrStore(key, &group[M]{members: make(map[string]M)})
		}
		g := v.(*group[M])
		g.mu.Lock()
		if !g.retired {
			return g
		}
		g.mu.Unlock()
	}
}

// lockExisting is lock without creation. It returns nil if the group does not exist.
func (r *Registry[M]) lockExisting(key string) *group[M] {
	v, ok := r.groups.Load(key)
	if !ok {
		return nil
	}
	g := v.(*group[M])
	g.mu.Lock()
	if g.retired {
		g.mu.Unlock()
		return nil
	}
	return g
}

// retire removes an empty group. Must be called with g.mu held.
func (r *Registry[M]) retire(key string, g *group[M]) {
	g.retired = true
	r.groups.CompareAndDelete(key, g)
}

// Join adds m to the group. It reports whether m was not already a member.
func (r *Registry[M]) Join(key string, m M) bool {
	added, _ := r.JoinFunc(key, m, nil)
	return added
}

// JoinFunc is Join with a hook that runs under the group lock when the group
// goes from empty to one member. If onFirst fails the member is not added.
func (r *Registry[M]) JoinFunc(key string, m M, onFirst func() error) (bool, error) {
	g := r.lock(key)
	defer g.mu.Unlock()

	if _, ok := g.members[m.ID()]; ok {
		return false, nil
	}
	if len(g.members) == 0 && onFirst != nil {
		if err := onFirst(); err != nil {
			r.retire(key, g)
			return false, err
		}
	}
	g.members[m.ID()] = m
	return true, nil
}

// Leave removes m from the group. It reports whether m was a member.
func (r *Registry[M]) Leave(key string, m M) bool {
	return r.LeaveFunc(key, m, nil)
}

// LeaveFunc is Leave with a hook that runs under the group lock when the last
// member leaves.
func (r *Registry[M]) LeaveFunc(key string, m M, onLast func()) bool {
	g := r.lockExisting(key)
	if g == nil {
		return false
	}
	defer g.mu.Unlock()

	if _, ok := g.members[m.ID()]; !ok {
		return false
	}
	delete(g.members, m.ID())
	if len(g.members) == 0 {
		if onLast != nil {
			onLast()
		}
		r.retire(key, g)
	}
	return true
}

// Members returns a snapshot of the group's members in no particular order.
func (r *Registry[M]) Members(key string) []M {
	g := r.lockExisting(key)
	if g == nil {
		return nil
	}
	defer g.mu.Unlock()

	out := make([]M, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	return out
}

func (r *Registry[M]) Contains(key, id string) bool {
	g := r.lockExisting(key)
	if g == nil {
		return false
	}
	defer g.mu.Unlock()

	_, ok := g.members[id]
	return ok
}

func (r *Registry[M]) Len(key string) int {
	g := r.lockExisting(key)
	if g == nil {
		return 0
	}
	defer g.mu.Unlock()
	return len(g.members)
}

// Count returns the number of memberships across all groups.
func (r *Registry[M]) Count() int {
	total := 0
	r.groups.Range(func(_, v any) bool {
		g := v.(*group[M])
		g.mu.Lock()
		if !g.retired {
			total += len(g.members)
		}
		g.mu.Unlock()
		return true
	})
	return total
}

// Groups returns the keys of all non-empty groups.
func (r *Registry[M]) Groups() []string {
	var keys []string
	r.groups.Range(func(k, v any) bool {
		g := v.(*group[M])
		g.mu.Lock()
		if !g.retired && len(g.members) > 0 {
			keys = append(keys, k.(string))
		}
		g.mu.Unlock()
		return true
	})
	return keys
}
