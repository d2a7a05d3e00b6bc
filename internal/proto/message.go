// Package proto implements the server-link wire dialect: line framing,
// tokenization of a line into origin/command/arguments, the command name
// table (long name plus short token alias), and the numeric-reply
// formatter. It does not interpret messages; internal/netstate and the
// daemon's dispatch table do that.
package proto

import (
	"fmt"
	"strings"
)

// MaxLine is the maximum line length the IRC protocol allows, including the
// terminating CR LF.
const MaxLine = 512

// Message is one decoded wire line: an optional origin token, the resolved
// command name (long form), and its arguments. The last argument may be the
// free-form trailing parameter (ColonArg is true in that case).
type Message struct {
	Origin  string // numeric or server name; empty only during the pre-link handshake
	Command string // long-form command name, e.g. "NICK"
	Args    []string
	// ColonArg reports whether the final element of Args was introduced
	// with a leading ':' and therefore may contain embedded spaces.
	ColonArg bool
}

// Split tokenizes a single already-unframed line (no CR/LF) into an origin
// (if present), a command token, and arguments. It does not resolve the
// command alias to its long form; callers use Resolve for that.
func Split(line string) (origin, command string, args []string, colonArg bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", "", nil, false, fmt.Errorf("proto: empty line")
	}

	fields := splitLine(line)
	if len(fields) == 0 {
		return "", "", nil, false, fmt.Errorf("proto: empty line")
	}

	idx := 0
	if strings.HasPrefix(fields[0], ":") {
		origin = strings.TrimPrefix(fields[0], ":")
		idx = 1
	}

	if idx >= len(fields) {
		return "", "", nil, false, fmt.Errorf("proto: missing command")
	}

	command = fields[idx]
	args = fields[idx+1:]
	if len(args) > 0 && strings.HasPrefix(args[len(args)-1], ":") {
		colonArg = true
	}
	return origin, command, trimTrailingColon(args), colonArg, nil
}

// splitLine implements IRC tokenization: space-delimited fields, except a
// field after the first beginning with ':' consumes the remainder of the
// line verbatim (including embedded spaces) as the final trailing
// argument. A leading ':' field is the origin prefix and ends at a space.
func splitLine(line string) []string {
	var fields []string
	for len(line) > 0 {
		if line[0] == ' ' {
			line = line[1:]
			continue
		}
		if line[0] == ':' && len(fields) > 0 {
			fields = append(fields, line)
			break
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			fields = append(fields, line)
			break
		}
		fields = append(fields, line[:sp])
		line = line[sp:]
	}
	return fields
}

func trimTrailingColon(args []string) []string {
	if len(args) == 0 {
		return args
	}
	last := len(args) - 1
	if strings.HasPrefix(args[last], ":") {
		out := make([]string, len(args))
		copy(out, args)
		out[last] = strings.TrimPrefix(args[last], ":")
		return out
	}
	return args
}

// Format renders a Message back onto the wire. If trailingFree is true, the
// last argument is emitted with a leading ':' regardless of whether it
// contains a space, matching the source command's own formatting
// conventions (numerics and PRIVMSG/NOTICE always quote their last arg this
// way even when it has no spaces).
func Format(origin, command string, args []string, trailingFree bool) string {
	var b strings.Builder
	if origin != "" {
		b.WriteByte(':')
		b.WriteString(origin)
		b.WriteByte(' ')
	}
	b.WriteString(command)
	for i, a := range args {
		b.WriteByte(' ')
		if i == len(args)-1 && (trailingFree || strings.ContainsRune(a, ' ') || a == "" || strings.HasPrefix(a, ":")) {
			b.WriteByte(':')
		}
		b.WriteString(a)
	}
	return truncate(b.String())
}

func truncate(line string) string {
	// MaxLine includes the CR LF the caller appends; reserve 2 bytes.
	if len(line) > MaxLine-2 {
		return line[:MaxLine-2]
	}
	return line
}

// FormatNumeric renders a numeric reply: ":<server> <num> <target>
// <params...>" with the last parameter free-text prefixed by ':'.
func FormatNumeric(server string, num int, target string, params ...string) string {
	args := append([]string{target}, params...)
	return Format(server, fmt.Sprintf("%03d", num), args, true)
}
