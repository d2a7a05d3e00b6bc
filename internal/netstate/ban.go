package netstate

import (
	"strings"
	"time"
)

// AddBan inserts pattern into ch's ban list, enforcing the no-superset
// invariant from spec 4.4: a ban is never added if an existing ban already
// matches everything it would match (it is redundant), and any existing
// ban that pattern is a superset of is removed (the new, broader ban
// subsumes it). Returns the patterns removed as a result.
func (ch *Channel) AddBan(pattern, setter string, when time.Time) []string {
	for _, b := range ch.Bans {
		if maskSubsumes(b.Pattern, pattern) {
			// An existing ban already covers this pattern; nothing to do.
			return nil
		}
	}

	var removed []string
	kept := ch.Bans[:0]
	for _, b := range ch.Bans {
		if maskSubsumes(pattern, b.Pattern) {
			removed = append(removed, b.Pattern)
			continue
		}
		kept = append(kept, b)
	}
	ch.Bans = append(kept, Ban{Pattern: pattern, Setter: setter, SetTime: when})
	return removed
}

// RemoveBan deletes an exact-match ban pattern, returning whether one was
// found.
func (ch *Channel) RemoveBan(pattern string) bool {
	for i, b := range ch.Bans {
		if strings.EqualFold(b.Pattern, pattern) {
			ch.Bans = append(ch.Bans[:i], ch.Bans[i+1:]...)
			return true
		}
	}
	return false
}

// maskSubsumes reports whether every string matched by narrow is also
// matched by wide, i.e. wide is a superset (or equal) mask of narrow.
// Masks are nick!ident@host glob patterns using '*' and '?'; subsumption
// is computed field-by-field (nick, ident, host) split on '!' and '@'.
func maskSubsumes(wide, narrow string) bool {
	if strings.EqualFold(wide, narrow) {
		return true
	}
	wn, wi, wh := splitMask(wide)
	nn, ni, nh := splitMask(narrow)
	return globSubsumes(wn, nn) && globSubsumes(wi, ni) && globSubsumes(wh, nh)
}

func splitMask(mask string) (nick, ident, host string) {
	bang := strings.IndexByte(mask, '!')
	at := strings.IndexByte(mask, '@')
	switch {
	case bang >= 0 && at > bang:
		return mask[:bang], mask[bang+1 : at], mask[at+1:]
	case at >= 0:
		return "*", mask[:at], mask[at+1:]
	default:
		return "*", "*", mask
	}
}

// globSubsumes reports whether every string '?'/'*'-glob pattern narrow
// matches is also matched by wide. Exact equality and "wide is a single
// trailing '*'" are the only cases worth distinguishing for IRC ban masks
// in practice; anything structurally different is treated as
// non-subsuming (conservative: never silently drops a ban that isn't
// provably redundant).
func globSubsumes(wide, narrow string) bool {
	if wide == narrow {
		return true
	}
	if wide == "*" {
		return true
	}
	if strings.HasSuffix(wide, "*") && !strings.Contains(wide[:len(wide)-1], "*") && !strings.Contains(wide[:len(wide)-1], "?") {
		return strings.HasPrefix(narrow, wide[:len(wide)-1])
	}
	return false
}
