// Package netstate is the in-memory replica of global network state:
// servers, users, channels, memberships, and per-channel bans. It owns the
// invariants spec'd for burst reconciliation and deletion safety.
//
// Entities are stored in flat arenas indexed by small integer handles
// (ServerID, UserID, ChannelID, MembershipID) rather than native pointers,
// per DESIGN_NOTES: this turns the source's intrusive doubly-linked lists
// into plain slices/maps of handles, avoiding reference cycles without weak
// pointers. Grounded on internal/meshage's adjacency-map style state
// (mesh map[string][]string, routes map[string]string) generalized from a
// flat peer mesh to an owning server tree.
package netstate

import (
	"net"
	"time"
)

// ServerID, UserID, ChannelID, and MembershipID are arena handles. The zero
// value is never a valid handle (arenas are 1-indexed) so a zero handle can
// double as "absent" in maps and structs.
type ServerID uint32
type UserID uint32
type ChannelID uint32
type MembershipID uint32

// User mode bits.
type UserMode uint32

const (
	UserOper UserMode = 1 << iota
	UserInvisible
	UserWallop
	UserDeaf
	UserService
	UserGlobal
	UserHiddenHost
	UserFakeHost
	UserAccount
	UserNoChan
	UserNoIdle
)

// Channel mode bits.
type ChanMode uint32

const (
	ChanPrivate ChanMode = 1 << iota
	ChanSecret
	ChanModerated
	ChanTopicOpOnly
	ChanInviteOnly
	ChanNoExternal
	ChanLimit // presence bit; the limit value itself lives in Channel.Limit
	ChanKey
	ChanAdminPass
	ChanUserPass
	ChanDelayedJoins
	ChanRegisteredOnly
	ChanNoColors
	ChanNoCTCP
	ChanRegisteredChan
)

// Server is one node in the server tree. The network root ("self") has
// Parent == 0.
type Server struct {
	ID          ServerID
	Name        string
	Description string
	BootTS      time.Time
	LinkTS      time.Time
	Hops        int
	NumericHi   string // 1-2 char base-64 numeric prefix
	ClientMask  int    // local numerics run 0..ClientMask inclusive

	Parent   ServerID
	Children []ServerID

	// Bursting is set when AddServer introduces the server and cleared
	// when that server's EOB or EOB_ACK is processed. Server-link hooks
	// fire from AddServer straight away; nothing is held back or replayed
	// while the server is bursting.
	Bursting bool
	SelfBurst bool

	// users is the table of local users, keyed by local numeric modulo
	// (ClientMask+1); a map stands in for the C source's array-of-pointers
	// table.
	users map[int]UserID
}

// User is one network user.
type User struct {
	ID   UserID
	Nick string

	Ident    string
	RealName string
	Hostname string
	FakeHost string
	IP       net.IP

	Modes UserMode

	// TS is the server timestamp: the time of the user's most recent
	// nick change (or introduction). Lower TS wins nick collisions.
	TS time.Time

	Uplink ServerID
	Numeric string // full joint numeric, server prefix + local numeric

	Account string // empty if not authenticated

	Channels []MembershipID

	// Dead marks a user removed from indices but not yet freed; see
	// DB.deferredKills and the deferred-cleanup invariant in spec 4.3/4.4.
	Dead bool
}

// MembershipFlag is the per-(user,channel) incidence bitmask.
type MembershipFlag uint8

const (
	MemberOp MembershipFlag = 1 << iota
	MemberVoice
)

// Membership is the (user, channel) incidence record ("modeNode").
type Membership struct {
	ID      MembershipID
	User    UserID
	Channel ChannelID
	Flags   MembershipFlag
	// Oplevel is -1 when absent, else 0..999.
	Oplevel int
}

// Ban is one entry on a channel's ban list.
type Ban struct {
	Pattern string
	Setter  string
	SetTime time.Time
}

// Channel is one network channel.
type Channel struct {
	ID   ChannelID
	Name string

	TS time.Time

	Modes ChanMode
	Limit int // valid iff Modes&ChanLimit
	Key   string
	AdminPass string
	UserPass  string

	Topic      string
	TopicSetBy string
	TopicTime  time.Time

	Members []MembershipID
	Bans    []Ban

	// Locked channels are never destroyed on last-part (spec 3: "no lock
	// is held"). No code path in this repository sets it.
	Locked bool

	Bad bool // flagged bad-channel (abuse); AddChannelUser does not consult it
}
