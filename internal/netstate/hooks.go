package netstate

import (
	"github.com/GameSurge/srvx-sub002/internal/hooks"
)

// Hooks holds every named callback registry from spec 4.10 that concerns
// network state. Join hooks may veto (return true to reject); del-user
// hooks run in reverse registration order; all others run in forward
// registration order.
type Hooks struct {
	ServerLink hooks.Registry[func(*Server)]
	Squit      hooks.Registry[func(*Server, string)]
	Reintroduce hooks.Registry[func(*User)]

	NewUser hooks.Registry[func(*User) bool] // true return vetoes
	DelUser hooks.Registry[func(*User, string)]
	NickChange hooks.Registry[func(*User, string)] // (user, oldNick)
	Account    hooks.Registry[func(*User, string)] // (user, accountName)

	NewChannel hooks.Registry[func(*Channel)]
	Join       hooks.Registry[func(*User, *Channel, *Membership) bool] // true vetoes
	Part       hooks.Registry[func(*User, *Channel, string)]
	Kick       hooks.Registry[func(*User, *User, *Channel, string)] // (kicker, victim, chan, reason)
	Topic      hooks.Registry[func(*Channel, *User, string)]
	ModeChange hooks.Registry[func(*Channel)]

	// The remaining registries belong to the external bot/auth layer
	// (spec 1: out of scope as implementations, but the hook points
	// themselves are part of the core's service dispatch glue).
	Oper       hooks.Registry[func(*User, string) bool] // (user, operName) -> veto
	AllowAuth  hooks.Registry[func(*User, string) bool] // (user, accountName) -> veto
	HandleMerge hooks.Registry[func(src, dst string)]   // account merge (src absorbed into dst)
	HandleRename hooks.Registry[func(old, new string)]  // account rename
	FailPW     hooks.Registry[func(*User, string)]       // (user, accountName) failed auth attempt
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) fireServerLink(s *Server) {
	h.ServerLink.Each(func(fn func(*Server)) { fn(s) })
}

func (h *Hooks) fireSquit(s *Server, message string) {
	h.Squit.Each(func(fn func(*Server, string)) { fn(s, message) })
}

func (h *Hooks) fireReintroduce(u *User) {
	h.Reintroduce.Each(func(fn func(*User)) { fn(u) })
}

func (h *Hooks) fireNewUser(u *User) (veto bool) {
	h.NewUser.Each(func(fn func(*User) bool) {
		if fn(u) {
			veto = true
		}
	})
	return veto
}

func (h *Hooks) fireDelUser(u *User, reason string) {
	h.DelUser.Reverse(func(fn func(*User, string)) { fn(u, reason) })
}

func (h *Hooks) fireNickChange(u *User, oldNick string) {
	h.NickChange.Each(func(fn func(*User, string)) { fn(u, oldNick) })
}

func (h *Hooks) fireAccount(u *User, account string) {
	h.Account.Each(func(fn func(*User, string)) { fn(u, account) })
}

func (h *Hooks) fireNewChannel(c *Channel) {
	h.NewChannel.Each(func(fn func(*Channel)) { fn(c) })
}

func (h *Hooks) fireJoin(u *User, c *Channel, m *Membership) (veto bool) {
	h.Join.Each(func(fn func(*User, *Channel, *Membership) bool) {
		if fn(u, c, m) {
			veto = true
		}
	})
	return veto
}

func (h *Hooks) firePart(u *User, c *Channel, reason string) {
	h.Part.Each(func(fn func(*User, *Channel, string)) { fn(u, c, reason) })
}

func (h *Hooks) fireKick(kicker, victim *User, c *Channel, reason string) {
	h.Kick.Each(func(fn func(*User, *User, *Channel, string)) { fn(kicker, victim, c, reason) })
}

func (h *Hooks) fireTopic(c *Channel, setter *User, topic string) {
	h.Topic.Each(func(fn func(*Channel, *User, string)) { fn(c, setter, topic) })
}

func (h *Hooks) fireModeChange(c *Channel) {
	h.ModeChange.Each(func(fn func(*Channel)) { fn(c) })
}
