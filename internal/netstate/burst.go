package netstate

import "time"

// BurstMember describes one member entry parsed from a BURST line's member
// list: a user plus the op/voice/oplevel state attached to it in the burst.
type BurstMember struct {
	User    UserID
	Op      bool
	Voice   bool
	Oplevel int // -1 if not specified
}

// ReconcileBurst merges channel state received at netjoin with local state,
// resolving by timestamp per spec 4.6. It mutates ch in place and returns
// whether the incoming side "won" (local bans/ops were reset) so callers
// know whether to emit a corrective burst back to the peer.
//
// Grounded on meshage's SET/BROADCAST/UNION/INTERSECTION message commands
// (internal/meshage/node.go), which name exactly the three merge
// disciplines this function implements for TS-ordered channel state: the
// incoming-wins case is a SET (replace), the local-wins case is an
// INTERSECTION-like filter (keep local, merge only bans), and the
// equal-TS case is a UNION.
func ReconcileBurst(ch *Channel, incomingTS time.Time, incomingModes ChanMode, incomingLimit int, incomingKey, incomingAdminPass, incomingUserPass string, incomingBans []Ban, _ []BurstMember) (incomingWon bool) {
	switch {
	case incomingTS.Before(ch.TS):
		// Incoming wins: local non-mode state survives (members stay
		// joined) but all op/voice and the local ban list are cleared;
		// incoming modes/bans/ops replace them. Per-member op/voice/
		// oplevel clearing and reapplication is done by the caller
		// (DB.ReconcileChannelBurst), which has access to Membership
		// records; this function stays arena-agnostic.
		ch.TS = incomingTS
		ch.Modes = incomingModes
		ch.Limit = incomingLimit
		ch.Key = incomingKey
		ch.AdminPass = incomingAdminPass
		ch.UserPass = incomingUserPass
		ch.Bans = append([]Ban(nil), incomingBans...)
		return true

	case incomingTS.After(ch.TS):
		// Local wins: incoming ops/voices discarded, bans unioned. The
		// peer is expected to receive a corrective burst separately.
		ch.Bans = unionBans(ch.Bans, incomingBans)
		return false

	default:
		// Equal: union of bans; op/voice union handled by the caller.
		ch.Bans = unionBans(ch.Bans, incomingBans)
		return false
	}
}

func unionBans(local, incoming []Ban) []Ban {
	out := append([]Ban(nil), local...)
	for _, b := range incoming {
		if !containsBan(out, b.Pattern) {
			out = append(out, b)
		}
	}
	return out
}

func containsBan(bans []Ban, pattern string) bool {
	for _, b := range bans {
		if b.Pattern == pattern {
			return true
		}
	}
	return false
}
