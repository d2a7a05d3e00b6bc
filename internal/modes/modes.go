// Package modes implements channel mode-change parsing, application, and
// wire re-announcement: spec 4.5. A Change is built by Parse from an
// incoming MODE line's text form, applied to netstate via Apply, and
// re-serialized for relay via Format/Announce, matching the three-step
// parse/apply/format split in proto-p10.c's mode_process family
// (do_chan_mode / mod_chanmode_announce / mod_chanmode_format).
package modes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GameSurge/srvx-sub002/internal/netstate"
)

// ArgType identifies what kind of parameter (if any) a per-user/per-mask
// mode argument token carries.
type ArgType int

const (
	ArgNone ArgType = iota
	ArgBan
	ArgOp
	ArgVoice
)

// Arg is one per-target mode argument: +o nick, +v nick, or +b mask.
type Arg struct {
	Type   ArgType
	Remove bool
	Target string // nick for Op/Voice, mask for Ban
}

// Change is the parsed, not-yet-applied form of one MODE line: the
// simple-flag deltas plus any per-target args, grouped the way
// proto-p10.c's mod_chanmode struct does (modes_set/modes_clear plus an
// args array) so Apply and Format share one representation.
type Change struct {
	Channel string

	Set   netstate.ChanMode
	Clear netstate.ChanMode

	LimitSet   bool
	Limit      int
	KeySet     bool
	Key        string
	AdminSet   bool
	AdminPass  string
	UserSet    bool
	UserPass   string

	Args []Arg

	Setter string
	When   time.Time
}

var simpleFlags = map[byte]netstate.ChanMode{
	'p': netstate.ChanPrivate,
	's': netstate.ChanSecret,
	'm': netstate.ChanModerated,
	't': netstate.ChanTopicOpOnly,
	'i': netstate.ChanInviteOnly,
	'n': netstate.ChanNoExternal,
	'D': netstate.ChanDelayedJoins,
	'r': netstate.ChanRegisteredOnly,
	'c': netstate.ChanNoColors,
	'C': netstate.ChanNoCTCP,
	'z': netstate.ChanRegisteredChan,
}

var flagChars = func() map[netstate.ChanMode]byte {
	m := make(map[netstate.ChanMode]byte, len(simpleFlags))
	for ch, bit := range simpleFlags {
		m[bit] = ch
	}
	return m
}()

// Parse reads a MODE line's mode-string plus trailing parameter tokens
// into a Change. Unknown mode characters are skipped (peers may send
// modes this build does not implement; silently ignoring them mirrors
// do_chan_mode's 'default: break').
func Parse(channel, setter string, modestr string, params []string, when time.Time) (*Change, error) {
	c := &Change{Channel: channel, Setter: setter, When: when}
	adding := true
	pi := 0

	next := func() (string, error) {
		if pi >= len(params) {
			return "", fmt.Errorf("modes: not enough parameters for %q", modestr)
		}
		v := params[pi]
		pi++
		return v, nil
	}

	for i := 0; i < len(modestr); i++ {
		ch := modestr[i]
		switch ch {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'l':
			if adding {
				v, err := next()
				if err != nil {
					return nil, err
				}
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("modes: bad limit %q: %w", v, err)
				}
				c.LimitSet = true
				c.Limit = n
				c.Set |= netstate.ChanLimit
			} else {
				c.LimitSet = true
				c.Limit = 0
				c.Clear |= netstate.ChanLimit
			}
		case 'k':
			if adding {
				v, err := next()
				if err != nil {
					return nil, err
				}
				c.KeySet = true
				c.Key = v
				c.Set |= netstate.ChanKey
			} else {
				next() // peer sends the old key on removal; ignored
				c.KeySet = true
				c.Key = ""
				c.Clear |= netstate.ChanKey
			}
		case 'U':
			if adding {
				v, err := next()
				if err != nil {
					return nil, err
				}
				c.UserSet = true
				c.UserPass = v
				c.Set |= netstate.ChanUserPass
			} else {
				c.UserSet = true
				c.UserPass = ""
				c.Clear |= netstate.ChanUserPass
			}
		case 'A':
			if adding {
				v, err := next()
				if err != nil {
					return nil, err
				}
				c.AdminSet = true
				c.AdminPass = v
				c.Set |= netstate.ChanAdminPass
			} else {
				c.AdminSet = true
				c.AdminPass = ""
				c.Clear |= netstate.ChanAdminPass
			}
		case 'b':
			v, err := next()
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, Arg{Type: ArgBan, Remove: !adding, Target: v})
		case 'o':
			v, err := next()
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, Arg{Type: ArgOp, Remove: !adding, Target: v})
		case 'v':
			v, err := next()
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, Arg{Type: ArgVoice, Remove: !adding, Target: v})
		default:
			if bit, ok := simpleFlags[ch]; ok {
				if adding {
					c.Set |= bit
				} else {
					c.Clear |= bit
				}
			}
		}
	}

	// 's' implies clearing 'p' and vice versa: they are mutually
	// exclusive bits on the wire (proto-p10.c do_mode_change).
	if c.Set&netstate.ChanSecret != 0 {
		c.Set &^= netstate.ChanPrivate
		c.Clear |= netstate.ChanPrivate
	} else if c.Set&netstate.ChanPrivate != 0 {
		c.Set &^= netstate.ChanSecret
		c.Clear |= netstate.ChanSecret
	}

	return c, nil
}

// Apply mutates ch and its memberships in db according to c, firing the
// channel's mode-change hook exactly once regardless of how many discrete
// flags/args the Change carries (proto-p10.c coalesces a whole MODE line
// into one notification too).
func Apply(db *DB, c *Change) error {
	return apply(db, c)
}

// DB is a type alias for netstate.DB, the state replica Apply mutates.
type DB = netstate.DB

func apply(db *DB, c *Change) error {
	ch, ok := db.Channel(c.Channel)
	if !ok {
		return fmt.Errorf("modes: unknown channel %q", c.Channel)
	}

	ch.Modes = (ch.Modes &^ c.Clear) | c.Set

	if c.LimitSet {
		ch.Limit = c.Limit
	}
	if c.KeySet {
		ch.Key = c.Key
	}
	if c.UserSet {
		ch.UserPass = c.UserPass
	}
	if c.AdminSet {
		ch.AdminPass = c.AdminPass
	}

	for _, a := range c.Args {
		switch a.Type {
		case ArgBan:
			if a.Remove {
				ch.RemoveBan(a.Target)
			} else {
				ch.AddBan(a.Target, c.Setter, c.When)
			}
		case ArgOp, ArgVoice:
			u, ok := db.User(a.Target)
			if !ok {
				continue
			}
			m, ok := db.FindMembership(u.ID, ch.ID)
			if !ok {
				continue
			}
			bit := netstate.MemberOp
			if a.Type == ArgVoice {
				bit = netstate.MemberVoice
			}
			if a.Remove {
				m.Flags &^= bit
			} else {
				m.Flags |= bit
			}
		}
	}

	db.FireModeChange(ch)
	return nil
}

// Clear implements CLEARMODE: per clear_chanmode, each letter in letters
// resets one piece of channel state to its zero value rather than toggling
// a bit, and 'b'/'o'/'v' act on the whole channel (every ban, every
// member's op/voice flag) instead of taking a per-target argument.
func Clear(db *DB, channel, letters string) error {
	ch, ok := db.Channel(channel)
	if !ok {
		return fmt.Errorf("modes: CLEARMODE unknown channel %q", channel)
	}

	for i := 0; i < len(letters); i++ {
		switch letters[i] {
		case 'b':
			ch.Bans = nil
		case 'k':
			ch.Key = ""
			ch.Modes &^= netstate.ChanKey
		case 'l':
			ch.Limit = 0
			ch.Modes &^= netstate.ChanLimit
		case 'A':
			ch.AdminPass = ""
			ch.Modes &^= netstate.ChanAdminPass
		case 'U':
			ch.UserPass = ""
			ch.Modes &^= netstate.ChanUserPass
		case 'o', 'v':
			bit := netstate.MemberOp
			if letters[i] == 'v' {
				bit = netstate.MemberVoice
			}
			for _, mid := range ch.Members {
				if m, ok := db.Membership(mid); ok {
					m.Flags &^= bit
				}
			}
		default:
			if bit, ok := simpleFlags[letters[i]]; ok {
				ch.Modes &^= bit
			}
		}
	}

	db.FireModeChange(ch)
	return nil
}

// Format renders c back into "+modes-modes param param ..." text, the
// diagnostic/log form used by mod_chanmode_format.
func Format(c *Change) string {
	var plus, minus strings.Builder
	var params []string

	for bit, ch := range flagChars {
		if c.Set&bit != 0 {
			plus.WriteByte(ch)
		}
		if c.Clear&bit != 0 {
			minus.WriteByte(ch)
		}
	}
	if c.LimitSet {
		if c.Limit > 0 {
			plus.WriteByte('l')
			params = append(params, strconv.Itoa(c.Limit))
		} else {
			minus.WriteByte('l')
		}
	}
	if c.KeySet {
		if c.Key != "" {
			plus.WriteByte('k')
			params = append(params, c.Key)
		} else {
			minus.WriteByte('k')
		}
	}

	for _, a := range c.Args {
		var ch byte
		switch a.Type {
		case ArgBan:
			ch = 'b'
		case ArgOp:
			ch = 'o'
		case ArgVoice:
			ch = 'v'
		}
		if a.Remove {
			minus.WriteByte(ch)
		} else {
			plus.WriteByte(ch)
		}
		params = append(params, a.Target)
	}

	var out strings.Builder
	if plus.Len() > 0 {
		out.WriteByte('+')
		out.WriteString(plus.String())
	}
	if minus.Len() > 0 {
		out.WriteByte('-')
		out.WriteString(minus.String())
	}
	for _, p := range params {
		out.WriteByte(' ')
		out.WriteString(p)
	}
	return out.String()
}

// Announce batches c's wire form to fit within a 450-byte soft cap per
// relayed MODE line (leaving headroom under the 512-byte hard limit for
// origin/command framing), matching proto-p10.c's chbuf-based batching
// in mod_chanmode_announce. Each returned string is a complete
// "+x-y params..." mode-change fragment.
func Announce(c *Change) []string {
	const softCap = 450

	full := Format(c)
	if len(full) <= softCap {
		return []string{full}
	}

	// Only per-arg (ban/op/voice) changes are split across lines; simple
	// flags+limit+key always stay together in the first fragment, as in
	// the source.
	head := &Change{Set: c.Set, Clear: c.Clear, LimitSet: c.LimitSet, Limit: c.Limit, KeySet: c.KeySet, Key: c.Key}
	var out []string
	cur := head
	for _, a := range c.Args {
		cur.Args = append(cur.Args, a)
		if len(Format(cur)) > softCap && len(cur.Args) > 1 {
			cur.Args = cur.Args[:len(cur.Args)-1]
			out = append(out, Format(cur))
			cur = &Change{Args: []Arg{a}}
		}
	}
	if len(cur.Args) > 0 || cur == head {
		out = append(out, Format(cur))
	}
	return out
}
