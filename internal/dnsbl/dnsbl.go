// Package dnsbl implements the DNS-blacklist checker from spec 4.9's
// sibling module: for each configured zone, a connecting user's reversed
// IP octets are queried as "d.c.b.a.zone" and a 127.0.0.x response is
// decoded against the zone's bitmask-to-reason table, optionally
// triggering a gline. Grounded on mod-blacklist.c's struct dnsbl_zone
// (mask, duration, reasons-by-bit, a catch-all reason) and dnsbl_hit's
// reply-decoding logic, with the lookup itself issued through
// internal/resolver instead of sar.c's request plumbing.
package dnsbl

import (
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// Zone is one configured blacklist: Name is the DNS zone queried
// ("zen.spamhaus.org" etc). Mask selects which response-address bits are
// considered a hit; Reasons maps a bit index to a human-readable reason,
// where an answer of 127.0.0.n sets bit n (so only answers 127.0.0.0
// through 127.0.0.7 fit the 8-bit mask), falling back to DefaultReason
// when no specific bit has one. A Duration of zero means a permanent
// gline.
type Zone struct {
	Name     string
	Mask     uint8
	Reasons  map[int]string
	DefaultReason string
	Duration time.Duration
}

// lookupFunc is a thin adapter over internal/resolver.Resolver.LookupHost:
// the caller wraps resolver.Result into (addrs, err) so this package does
// not need to import resolver's full API surface.
type lookupFunc func(name string, v6 bool, cb func(addrs []net.IP, err error))

// GlineFunc adds a network gline; normally netstate-backed gline.Store.Add
// bound to a "self" issuer name.
type GlineFunc func(targetMask, reason string, duration time.Duration)

// Checker runs the configured zones against connecting users' IPs.
type Checker struct {
	Zones  []Zone
	Lookup lookupFunc
	Gline  GlineFunc
}

func New(zones []Zone, lookup lookupFunc, gline GlineFunc) *Checker {
	return &Checker{Zones: zones, Lookup: lookup, Gline: gline}
}

// Check queries every configured zone for ip, invoking onHit for each
// zone that reports a match (ip is a listed proxy/spam source under that
// zone) and, if c.Gline is set, issuing a gline for the offending host.
func (c *Checker) Check(ip net.IP, targetMask string, onHit func(zone Zone, reason string)) {
	v4 := ip.To4()
	if v4 == nil {
		return // DNSBLs in this generation only cover IPv4
	}
	reversed := fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])

	for _, zone := range c.Zones {
		zone := zone
		qname := reversed + "." + zone.Name
		c.Lookup(qname, false, func(addrs []net.IP, err error) {
			if err != nil || len(addrs) == 0 {
				return
			}
			c.handleReply(zone, addrs, targetMask, onHit)
		})
	}
}

// handleReply accumulates one bit per answer record (mod-blacklist.c's
// mask |= 1 << raw[pos+3], looped over hdr->ancount) before testing the
// accumulated mask against the zone's configured mask -- a single zone
// query can return more than one 127.0.0.x record, and a hit on any bit
// of any record counts.
func (c *Checker) handleReply(zone Zone, addrs []net.IP, targetMask string, onHit func(Zone, string)) {
	var mask uint8
	for _, addr := range addrs {
		v4 := addr.To4()
		if v4 == nil || v4[0] != 127 {
			log.Warn("dnsbl: zone %q returned non-127.0.0.x address %s, ignoring", zone.Name, addr)
			continue
		}
		mask |= 1 << v4[3]
	}
	if mask == 0 {
		return
	}
	if zone.Mask != 0 && mask&zone.Mask == 0 {
		return
	}

	var reasons []string
	for bit := 0; bit < 8; bit++ {
		if mask&(1<<uint(bit)) == 0 {
			continue
		}
		if r, ok := zone.Reasons[bit]; ok {
			reasons = append(reasons, r)
		}
	}
	reason := zone.DefaultReason
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}
	if reason == "" {
		reason = fmt.Sprintf("listed in %s", zone.Name)
	}

	onHit(zone, reason)
	if c.Gline != nil {
		c.Gline(targetMask, reason, zone.Duration)
	}
}
