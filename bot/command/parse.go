package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Line is the result of parsing an addressed chat message body.
type Line struct {
	// Command is the lower-cased command token.
	Command string
	// Args is the remainder of the line after the command, possibly empty.
	Args string
	// Edit reports whether the body carried a client edit marker.
	Edit bool
	// Empty reports that the body was addressed to the bot but contained no
	// command token.
	Empty bool
}

// ParseAddressed checks body for the bot's addressing prefix (display name
// followed by separator, matched case-insensitively) and extracts the command
// line. The second return value reports whether the body was addressed to the
// bot at all; non-matching bodies require no further action.
func ParseAddressed(body, displayName, separator string) (Line, bool) {
	if strings.TrimSpace(displayName) == "" {
		return Line{}, false
	}
	line := Line{}
	message := strings.TrimSpace(body)

	// Clients prepend "* " to the fallback body of an edited message.
	if rest, ok := strings.CutPrefix(message, "* "); ok {
		line.Edit = true
		message = strings.TrimSpace(rest)
	}

	rest, ok := cutPrefixFold(message, displayName+separator)
	if !ok {
		return Line{}, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		line.Empty = true
		return line, true
	}

	// Split on the first whitespace run: the token is the command, the
	// remainder the raw argument string.
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		line.Command = strings.ToLower(rest[:i])
		line.Args = strings.TrimSpace(rest[i:])
	} else {
		line.Command = strings.ToLower(rest)
	}
	return line, true
}

// cutPrefixFold removes prefix from the front of s under Unicode case
// folding and reports whether it was present. The cut boundary is computed
// on s itself, so the split stays correct for display names whose
// lower-cased form has a different byte length.
func cutPrefixFold(s, prefix string) (string, bool) {
	i := 0
	for n := utf8.RuneCountInString(prefix); n > 0; n-- {
		if i >= len(s) {
			return "", false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	if !strings.EqualFold(s[:i], prefix) {
		return "", false
	}
	return s[i:], true
}
