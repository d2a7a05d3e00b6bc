// Package hooks implements the append-only, order-preserving callback
// registries named in spec 4.10: server-link, new-user, del-user,
// nick-change, account, new-channel, join, part, kick, topic, mode-change,
// oper, allow-auth, handle-merge, handle-rename, failpw.
//
// Registration happens once at startup; a Registry is generic over the
// callback's function signature so owning packages (netstate, gline,
// scanner, ...) can declare strongly-typed hook lists without this package
// needing to know their concrete entity types. Grounded on ron's
// append-only Command/Filter registration style (internal/ron/command.go)
// and meshage's ordered dispatch.
package hooks

// Registry holds an ordered list of callbacks of type F, registered via Add
// and iterated via Each/Reverse in registration order (or its inverse).
type Registry[F any] struct {
	fns []F
}

// Add appends fn to the registry. Hooks are registered once at startup;
// there is no remove operation, matching the source's static registration
// model.
func (r *Registry[F]) Add(fn F) {
	r.fns = append(r.fns, fn)
}

// Each iterates callbacks in registration order.
func (r *Registry[F]) Each(fn func(F)) {
	for _, f := range r.fns {
		fn(f)
	}
}

// Reverse iterates callbacks in reverse registration order. Used for
// del-user hooks so higher-layer services clean up presence before
// lower-layer bindings vanish (spec 4.10).
func (r *Registry[F]) Reverse(fn func(F)) {
	for i := len(r.fns) - 1; i >= 0; i-- {
		fn(r.fns[i])
	}
}

// Len reports the number of registered callbacks.
func (r *Registry[F]) Len() int { return len(r.fns) }
