// Package gline implements the network-wide ban store from spec 4.8: a
// target-mask-keyed table of G-lines with issue/expiry tracking, the
// extension-never-shortens refresh invariant, and discriminator-based
// searching (subset/exact/superset mask matching). Grounded on
// gline.h/gline.c (struct gline, struct gline_discrim, gline_add,
// gline_refresh_server, gline_discrim_search).
package gline

import (
	"strings"
	"time"
)

// Gline is one network ban, keyed by TargetMask (a "nick!ident@host" or
// "*@host" glob, matched case-insensitively against connecting users).
type Gline struct {
	TargetMask string
	Issuer     string
	Reason     string
	Issued     time.Time
	Expires    time.Time // zero means permanent
}

func (g *Gline) Permanent() bool { return g.Expires.IsZero() }

// Store holds the current gline table plus the hook list fired on
// add/remove, matching spec 4.10's gline-change callback.
type Store struct {
	Now func() time.Time

	byMask map[string]*Gline
	onChange []func(g *Gline, removed bool)
}

func New() *Store {
	return &Store{Now: time.Now, byMask: make(map[string]*Gline)}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// OnChange registers a callback fired whenever a gline is added or
// removed.
func (s *Store) OnChange(fn func(g *Gline, removed bool)) {
	s.onChange = append(s.onChange, fn)
}

func (s *Store) fire(g *Gline, removed bool) {
	for _, fn := range s.onChange {
		fn(g, removed)
	}
}

// Add inserts or refreshes a gline. Per gline_add's refresh semantics, a
// re-add of an existing target mask only ever extends the expiry: if the
// new expiry is earlier than the current one (and the current one is not
// permanent), the existing, longer expiry is kept. A duration of zero
// means permanent and always wins over any finite expiry.
func (s *Store) Add(issuer, targetMask, reason string, duration time.Duration) *Gline {
	key := strings.ToLower(targetMask)
	now := s.now()

	var expires time.Time
	if duration > 0 {
		expires = now.Add(duration)
	}

	if existing, ok := s.byMask[key]; ok {
		if existing.Permanent() || (!expires.IsZero() && expires.Before(existing.Expires)) {
			expires = existing.Expires
		}
		existing.Issuer = issuer
		existing.Reason = reason
		existing.Issued = now
		existing.Expires = expires
		s.fire(existing, false)
		return existing
	}

	g := &Gline{TargetMask: targetMask, Issuer: issuer, Reason: reason, Issued: now, Expires: expires}
	s.byMask[key] = g
	s.fire(g, false)
	return g
}

// Remove deletes the gline exactly matching targetMask, if any.
func (s *Store) Remove(targetMask string) bool {
	key := strings.ToLower(targetMask)
	g, ok := s.byMask[key]
	if !ok {
		return false
	}
	delete(s.byMask, key)
	s.fire(g, true)
	return true
}

// Find returns the gline exactly matching targetMask.
func (s *Store) Find(targetMask string) (*Gline, bool) {
	g, ok := s.byMask[strings.ToLower(targetMask)]
	return g, ok
}

// ExpireAll removes every gline whose expiry has passed as of now. Called
// periodically by the timer loop (spec 4.2/4.8).
func (s *Store) ExpireAll() (expired []*Gline) {
	now := s.now()
	for key, g := range s.byMask {
		if !g.Permanent() && !g.Expires.After(now) {
			delete(s.byMask, key)
			expired = append(expired, g)
		}
	}
	return expired
}

// Count returns the number of active glines.
func (s *Store) Count() int { return len(s.byMask) }

// All returns every active gline in an unspecified order, for
// gline_refresh_server-style bulk resync to a newly linked peer.
func (s *Store) All() []*Gline {
	out := make([]*Gline, 0, len(s.byMask))
	for _, g := range s.byMask {
		out = append(out, g)
	}
	return out
}

// MaskType selects how Discriminator.TargetMask is matched against stored
// gline masks, mirroring gline_discrim's SUBSET/EXACT/SUPERSET enum.
type MaskType int

const (
	Exact MaskType = iota
	Subset
	Superset
)

// Discriminator filters a gline search: Limit caps the number of results
// (0 = unlimited), the mask fields restrict by target/issuer/reason glob,
// and the time fields bound issue/expiry.
type Discriminator struct {
	Limit int

	TargetMask string
	MaskType   MaskType

	IssuerMask string
	ReasonMask string

	MaxIssued time.Time
	MinExpire time.Time
}

// Search runs fn over every gline matching d, stopping early once d.Limit
// results have been visited (if nonzero).
func (s *Store) Search(d Discriminator, fn func(*Gline)) int {
	n := 0
	for _, g := range s.byMask {
		if !matches(d, g) {
			continue
		}
		fn(g)
		n++
		if d.Limit > 0 && n >= d.Limit {
			break
		}
	}
	return n
}

func matches(d Discriminator, g *Gline) bool {
	if d.TargetMask != "" {
		switch d.MaskType {
		case Exact:
			if !strings.EqualFold(d.TargetMask, g.TargetMask) {
				return false
			}
		case Subset:
			// g's mask is at least as narrow as d.TargetMask: every
			// user g would match, d.TargetMask would also match.
			if !globCovers(d.TargetMask, g.TargetMask) {
				return false
			}
		case Superset:
			// g's mask is at least as broad as d.TargetMask.
			if !globCovers(g.TargetMask, d.TargetMask) {
				return false
			}
		}
	}
	if d.IssuerMask != "" && !globCovers(d.IssuerMask, g.Issuer) {
		return false
	}
	if d.ReasonMask != "" && !globCovers(d.ReasonMask, g.Reason) {
		return false
	}
	if !d.MaxIssued.IsZero() && g.Issued.After(d.MaxIssued) {
		return false
	}
	if !d.MinExpire.IsZero() && !g.Permanent() && g.Expires.Before(d.MinExpire) {
		return false
	}
	return true
}

// globCovers reports whether every string glob pattern covers also
// contains candidate as a match; only the common '*'-suffix/prefix and
// exact-match cases used by gline masks are handled, matching the
// practical subset match_ircglob exercises for target masks in the
// source.
func globCovers(pattern, candidate string) bool {
	if strings.EqualFold(pattern, candidate) {
		return true
	}
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 2 {
		return strings.Contains(strings.ToLower(candidate), strings.ToLower(pattern[1:len(pattern)-1]))
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(strings.ToLower(candidate), strings.ToLower(pattern[:len(pattern)-1]))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(strings.ToLower(candidate), strings.ToLower(pattern[1:]))
	}
	return false
}
