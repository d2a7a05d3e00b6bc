package netstate

import (
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// DB is the process-global network state replica: three case-insensitive
// dictionaries (servers by name, channels by name, users by nick) plus the
// arenas that own the actual entities. There is exactly one DB per daemon
// process; it is never accessed concurrently (spec 5: single dispatch
// goroutine owns it).
type DB struct {
	Now func() time.Time // injectable clock, overridden in replay/tests

	servers   map[ServerID]*Server
	serverIdx map[string]ServerID // lower(name) -> id
	numericIdx map[string]ServerID // numeric prefix -> id

	users   map[UserID]*User
	nickIdx map[string]UserID // lower(nick) -> id
	numericUserIdx map[string]UserID // joint server+local numeric -> id

	channels   map[ChannelID]*Channel
	channelIdx map[string]ChannelID // lower(name) -> id

	memberships map[MembershipID]*Membership

	self ServerID

	nextServer ServerID
	nextUser   UserID
	nextChan   ChannelID
	nextMember MembershipID

	Hooks *Hooks

	// deferredKills accumulates users marked Dead during the processing
	// of the current line. Drained by DrainDeferred after the top-level
	// handler returns -- see spec 4.3/4.4 and DESIGN_NOTES.
	deferredKills []UserID
}

// New returns an empty DB. selfName/selfNumeric describe the local ("self")
// server, the network root with no parent.
func New(selfName, selfDescription, selfNumeric string, clientMask int, boot time.Time) *DB {
	db := &DB{
		Now:         time.Now,
		servers:     make(map[ServerID]*Server),
		serverIdx:   make(map[string]ServerID),
		numericIdx:  make(map[string]ServerID),
		users:       make(map[UserID]*User),
		nickIdx:     make(map[string]UserID),
		numericUserIdx: make(map[string]UserID),
		channels:    make(map[ChannelID]*Channel),
		channelIdx:  make(map[string]ChannelID),
		memberships: make(map[MembershipID]*Membership),
		Hooks:       NewHooks(),
	}

	db.nextServer = 1
	db.nextUser, db.nextChan, db.nextMember = 1, 1, 1
	self := &Server{
		ID:          db.nextServer,
		Name:        selfName,
		Description: selfDescription,
		BootTS:      boot,
		LinkTS:      boot,
		NumericHi:   selfNumeric,
		ClientMask:  clientMask,
		users:       make(map[int]UserID),
	}
	db.servers[self.ID] = self
	db.serverIdx[lower(selfName)] = self.ID
	db.numericIdx[selfNumeric] = self.ID
	db.self = self.ID
	db.nextServer++

	return db
}

func lower(s string) string { return strings.ToLower(s) }

func (db *DB) now() time.Time {
	if db.Now != nil {
		return db.Now()
	}
	return time.Now()
}

// Self returns the local root server.
func (db *DB) Self() *Server { return db.servers[db.self] }

// Server looks up a server by case-insensitive name.
func (db *DB) Server(name string) (*Server, bool) {
	id, ok := db.serverIdx[lower(name)]
	if !ok {
		return nil, false
	}
	return db.servers[id], true
}

// ServerByNumeric looks up a server owning the given numeric prefix.
func (db *DB) ServerByNumeric(prefix string) (*Server, bool) {
	id, ok := db.numericIdx[prefix]
	if !ok {
		return nil, false
	}
	return db.servers[id], true
}

// User looks up a user by case-insensitive nick.
func (db *DB) User(nick string) (*User, bool) {
	id, ok := db.nickIdx[lower(nick)]
	if !ok {
		return nil, false
	}
	u := db.users[id]
	if u == nil || u.Dead {
		return nil, false
	}
	return u, true
}

// UserByNumeric looks up a user by its joint server+local numeric, the
// form carried as message origin on the wire for user-sourced commands.
func (db *DB) UserByNumeric(joint string) (*User, bool) {
	id, ok := db.numericUserIdx[joint]
	if !ok {
		return nil, false
	}
	u := db.users[id]
	if u == nil || u.Dead {
		return nil, false
	}
	return u, true
}

// Channel looks up a channel by case-insensitive name.
func (db *DB) Channel(name string) (*Channel, bool) {
	id, ok := db.channelIdx[lower(name)]
	if !ok {
		return nil, false
	}
	return db.channels[id], true
}

// Membership returns the membership record by handle.
func (db *DB) Membership(id MembershipID) (*Membership, bool) {
	m, ok := db.memberships[id]
	return m, ok
}

// FindMembership returns the membership linking user and channel, if any.
func (db *DB) FindMembership(uid UserID, cid ChannelID) (*Membership, bool) {
	u, ok := db.users[uid]
	if !ok {
		return nil, false
	}
	for _, mid := range u.Channels {
		m := db.memberships[mid]
		if m != nil && m.Channel == cid {
			return m, true
		}
	}
	return nil, false
}

// ---- Server lifecycle ----

// AddServer inserts a new server node under parent. If a server already
// owns numericPrefix, that server (and its whole subtree) is destroyed
// first, per spec 4.4.
func (db *DB) AddServer(parent ServerID, name string, hops int, boot, link time.Time, numericPrefix, description string) (*Server, error) {
	if p, ok := db.servers[parent]; !ok || p == nil {
		return nil, fmt.Errorf("netstate: AddServer: unknown parent %d", parent)
	}

	if old, ok := db.numericIdx[numericPrefix]; ok {
		log.Warn("AddServer: numeric %q already in use by %q, destroying old subtree", numericPrefix, db.servers[old].Name)
		db.DelServer(old, false, "numeric collision")
	}

	srv := &Server{
		ID:          db.nextServer,
		Name:        name,
		Description: description,
		BootTS:      boot,
		LinkTS:      link,
		Hops:        hops,
		NumericHi:   numericPrefix,
		ClientMask:  0,
		Parent:      parent,
		Bursting:    true,
		users:       make(map[int]UserID),
	}
	db.nextServer++

	db.servers[srv.ID] = srv
	db.serverIdx[lower(name)] = srv.ID
	db.numericIdx[numericPrefix] = srv.ID
	db.servers[parent].Children = append(db.servers[parent].Children, srv.ID)

	db.Hooks.fireServerLink(srv)
	return srv, nil
}

// DelServer recursively destroys a server's subtree. Children are destroyed
// first, then the server's own users are synthetically quit, then (if
// announce is set and this is not the network root) an SQUIT is emitted via
// the Squit hook.
func (db *DB) DelServer(id ServerID, announce bool, message string) {
	srv, ok := db.servers[id]
	if !ok {
		return
	}

	children := append([]ServerID(nil), srv.Children...)
	for _, c := range children {
		db.DelServer(c, false, message)
	}

	for _, uid := range srv.users {
		if u := db.users[uid]; u != nil && !u.Dead {
			db.QuitUser(uid, message)
		}
	}

	delete(db.servers, id)
	delete(db.serverIdx, lower(srv.Name))
	delete(db.numericIdx, srv.NumericHi)

	if parent, ok := db.servers[srv.Parent]; ok {
		for i, c := range parent.Children {
			if c == id {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				break
			}
		}
	}

	if announce && id != db.self {
		db.Hooks.fireSquit(srv, message)
	}
}

// localNumericSlot returns the Server.users slot for a user's local
// numeric given its owning server's ClientMask.
func localNumericSlot(local int, mask int) int {
	return local % (mask + 1)
}

// ---- User lifecycle ----

// AddUser introduces a new user, or resolves a nick collision per spec
// 4.4. localNumeric is the integer local-numeric value (already decoded
// from base64 by the caller).
func (db *DB) AddUser(uplink ServerID, nick, ident, hostname string, modes UserMode, localNumeric int, numeric, realname string, ts time.Time, ip net.IP) (*User, error) {
	srv, ok := db.servers[uplink]
	if !ok {
		return nil, fmt.Errorf("netstate: AddUser: unknown uplink %d", uplink)
	}

	if existingID, collides := db.nickIdx[lower(nick)]; collides {
		existing := db.users[existingID]
		switch {
		case existing.Modes&UserService != 0:
			// Ours: lower our timestamp and force the peer to kill its
			// copy by re-introducing with an older TS.
			if ts.Before(existing.TS) {
				existing.TS = ts
			} else {
				existing.TS = ts.Add(-time.Second)
			}
			db.Hooks.fireReintroduce(existing)
			return existing, nil
		case existing.TS.After(ts):
			// existing is newer: it loses.
			db.QuitUser(existingID, "Nick collision")
		case existing.TS.Before(ts):
			// new introduction is newer: drop it.
			return nil, fmt.Errorf("netstate: AddUser: nick %q collision, new introduction dropped (older wins)", nick)
		default:
			// Equal timestamps with neither side "ours": collision kills
			// both in the reference implementation; approximate by
			// dropping the new introduction defensively.
			return nil, fmt.Errorf("netstate: AddUser: nick %q collision at equal timestamp", nick)
		}
	}

	u := &User{
		ID:       db.nextUser,
		Nick:     nick,
		Ident:    ident,
		RealName: realname,
		Hostname: hostname,
		Modes:    modes,
		TS:       ts,
		Uplink:   uplink,
		Numeric:  numeric,
		IP:       ip,
	}
	db.nextUser++

	db.users[u.ID] = u
	db.nickIdx[lower(nick)] = u.ID
	db.numericUserIdx[numeric] = u.ID
	slot := localNumericSlot(localNumeric, srv.ClientMask)
	srv.users[slot] = u.ID

	veto := db.Hooks.fireNewUser(u)
	if veto {
		db.QuitUser(u.ID, "new-user hook rejected")
		return nil, fmt.Errorf("netstate: AddUser: rejected by new-user hook")
	}

	return u, nil
}

// NickChange renames user u, stamping TS = now and firing nick-change
// hooks.
func (db *DB) NickChange(uid UserID, newNick string, announce bool) error {
	u, ok := db.users[uid]
	if !ok || u.Dead {
		return fmt.Errorf("netstate: NickChange: unknown user")
	}
	oldNick := u.Nick
	delete(db.nickIdx, lower(oldNick))
	u.Nick = newNick
	u.TS = db.now()
	db.nickIdx[lower(newNick)] = uid

	db.Hooks.fireNickChange(u, oldNick)
	return nil
}

// SetAccount stamps u's authenticated account name (the empty string clears
// it) and fires the Account hook, mirroring cmd_account's ACCOUNT handling:
// a purely informational stamp, never a veto point.
func (db *DB) SetAccount(uid UserID, account string) error {
	u, ok := db.users[uid]
	if !ok || u.Dead {
		return fmt.Errorf("netstate: SetAccount: unknown user")
	}
	u.Account = account
	if account != "" {
		u.Modes |= UserAccount
	} else {
		u.Modes &^= UserAccount
	}
	db.Hooks.fireAccount(u, account)
	return nil
}

// SetFakeHost stamps u's displayed fake hostname, per cmd_fakehost.
func (db *DB) SetFakeHost(uid UserID, fakehost string) error {
	u, ok := db.users[uid]
	if !ok || u.Dead {
		return fmt.Errorf("netstate: SetFakeHost: unknown user")
	}
	u.FakeHost = fakehost
	if fakehost != "" {
		u.Modes |= UserFakeHost
	} else {
		u.Modes &^= UserFakeHost
	}
	return nil
}

// SetTopic stamps ch's topic and fires the Topic hook, per cmd_topic.
func (db *DB) SetTopic(cid ChannelID, setter *User, topic string, when time.Time) error {
	ch, ok := db.channels[cid]
	if !ok {
		return fmt.Errorf("netstate: SetTopic: unknown channel")
	}
	ch.Topic = topic
	ch.TopicTime = when
	if setter != nil {
		ch.TopicSetBy = setter.Nick
	}
	db.Hooks.fireTopic(ch, setter, topic)
	return nil
}

// QuitUser removes a user: drops it from all indices immediately (per spec,
// so subsequent lookups miss it) but marks it Dead rather than freeing it,
// so handlers still running against the current line can dereference it
// safely. DrainDeferred performs the actual removal from arenas.
func (db *DB) QuitUser(uid UserID, reason string) {
	u, ok := db.users[uid]
	if !ok || u.Dead {
		return
	}

	db.Hooks.fireDelUser(u, reason)

	for _, mid := range append([]MembershipID(nil), u.Channels...) {
		if m, ok := db.memberships[mid]; ok {
			db.DelChannelUser(uid, m.Channel, reason, true)
		}
	}

	delete(db.nickIdx, lower(u.Nick))
	delete(db.numericUserIdx, u.Numeric)
	if srv, ok := db.servers[u.Uplink]; ok {
		for slot, id := range srv.users {
			if id == uid {
				delete(srv.users, slot)
				break
			}
		}
	}

	u.Dead = true
	db.deferredKills = append(db.deferredKills, uid)
}

// DrainDeferred releases users tombstoned during the processing of the
// current line. Must be called once, by the top-level dispatcher, after a
// full line (including any nested handlers) has finished running -- never
// from within a nested call. See spec 4.3 and DESIGN_NOTES.
func (db *DB) DrainDeferred() {
	for _, uid := range db.deferredKills {
		delete(db.users, uid)
	}
	db.deferredKills = db.deferredKills[:0]
}

// ---- Channel membership ----

// EnsureChannel returns the channel named channelName, creating it with TS
// createTS (and firing the new-channel hook) if it does not already exist.
// Shared by AddChannelUser (plain JOIN/CREATE) and BURST reconciliation,
// both of which may be the first thing to mention a channel.
func (db *DB) EnsureChannel(channelName string, createTS time.Time) *Channel {
	if cid, exists := db.channelIdx[lower(channelName)]; exists {
		return db.channels[cid]
	}
	ch := &Channel{
		ID:   db.nextChan,
		Name: channelName,
		TS:   createTS,
	}
	db.nextChan++
	db.channels[ch.ID] = ch
	db.channelIdx[lower(channelName)] = ch.ID
	db.Hooks.fireNewChannel(ch)
	return ch
}

// AddChannelUser joins user to channel, creating the channel on first
// member if needed. Idempotent: an existing membership is returned
// unchanged. Join hooks may veto, in which case the membership is
// immediately reverted and ok is false.
func (db *DB) AddChannelUser(uid UserID, channelName string, createTS time.Time) (m *Membership, ok bool) {
	u, exists := db.users[uid]
	if !exists || u.Dead {
		return nil, false
	}

	ch := db.EnsureChannel(channelName, createTS)

	if existing, found := db.FindMembership(uid, ch.ID); found {
		return existing, true
	}

	mem := &Membership{
		ID:      db.nextMember,
		User:    uid,
		Channel: ch.ID,
		Oplevel: -1,
	}
	db.nextMember++
	db.memberships[mem.ID] = mem
	u.Channels = append(u.Channels, mem.ID)
	ch.Members = append(ch.Members, mem.ID)

	if veto := db.Hooks.fireJoin(u, ch, mem); veto {
		db.DelChannelUser(uid, ch.ID, "", false)
		return nil, false
	}

	return mem, true
}

// DelChannelUser removes one membership. If the channel is now empty, not
// locked, and deleting is false, the channel is destroyed.
func (db *DB) DelChannelUser(uid UserID, cid ChannelID, reason string, deleting bool) {
	u, ok := db.users[uid]
	if !ok {
		return
	}
	ch, ok := db.channels[cid]
	if !ok {
		return
	}

	mid, found := db.membershipIDFor(uid, cid)
	if !found {
		return
	}

	removeMembership(&u.Channels, mid)
	removeMembership(&ch.Members, mid)
	delete(db.memberships, mid)

	db.Hooks.firePart(u, ch, reason)

	if len(ch.Members) == 0 && !ch.Locked && !deleting {
		delete(db.channels, cid)
		delete(db.channelIdx, lower(ch.Name))
	}
}

func (db *DB) membershipIDFor(uid UserID, cid ChannelID) (MembershipID, bool) {
	if m, ok := db.FindMembership(uid, cid); ok {
		return m.ID, true
	}
	return 0, false
}

func removeMembership(list *[]MembershipID, id MembershipID) {
	for i, v := range *list {
		if v == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// KickChannelUser handles a peer-originated KICK: trusted, applied
// directly, and the kick hook fires before the membership is dropped so
// bots see (kicker, victim, channel) together.
func (db *DB) KickChannelUser(kicker *User, victim UserID, cid ChannelID, reason string) {
	ch := db.channels[cid]
	v := db.users[victim]
	if ch != nil && v != nil {
		db.Hooks.fireKick(kicker, v, ch, reason)
	}
	db.DelChannelUser(victim, cid, reason, false)
}

// ChannelUserKicked handles a locally-initiated kick (e.g. by an in-process
// bot): identical bookkeeping to KickChannelUser. The caller is responsible
// for emitting the wire KICK line; this only updates local state.
func (db *DB) ChannelUserKicked(kicker *User, victim UserID, cid ChannelID, reason string) {
	db.KickChannelUser(kicker, victim, cid, reason)
}

// FireModeChange fires the ModeChange hook for ch. Exported for
// internal/modes, which mutates Channel/Membership state directly (it
// owns MODE/CLEARMODE parsing and application) but has no other access to
// the hook registry.
func (db *DB) FireModeChange(ch *Channel) {
	db.Hooks.fireModeChange(ch)
}

// ReconcileChannelBurst merges burst-received channel state into the local
// copy, resolving member op/voice/oplevel against the resolved Membership
// records (ReconcileBurst itself stays arena-agnostic; this wrapper
// supplies the missing per-member mutation). See burst.go.
func (db *DB) ReconcileChannelBurst(cid ChannelID, incomingTS time.Time, incomingModes ChanMode, incomingLimit int, incomingKey, incomingAdminPass, incomingUserPass string, incomingBans []Ban, incomingMembers []BurstMember) bool {
	ch, ok := db.channels[cid]
	if !ok {
		return false
	}

	localWins := incomingTS.After(ch.TS)
	won := ReconcileBurst(ch, incomingTS, incomingModes, incomingLimit, incomingKey, incomingAdminPass, incomingUserPass, incomingBans, nil)

	// Local wins: incoming ops/voices/oplevels are discarded.
	if localWins {
		incomingMembers = nil
	}

	if won {
		for _, mid := range ch.Members {
			if m := db.memberships[mid]; m != nil {
				m.Flags = 0
				m.Oplevel = -1
			}
		}
	}
	for _, bm := range incomingMembers {
		m, found := db.FindMembership(bm.User, cid)
		if !found {
			continue
		}
		if bm.Op {
			m.Flags |= MemberOp
		}
		if bm.Voice {
			m.Flags |= MemberVoice
		}
		if bm.Oplevel >= 0 {
			m.Oplevel = bm.Oplevel
		}
	}

	db.Hooks.fireModeChange(ch)
	return won
}
