package policy

import (
	"path"
	"strings"

	"github.com/ryanuber/go-glob"

	"github.com/keanuharrell/catrole/internal/core"
)

// MatchesAction reports whether a policy action and a search pattern match
// in either direction, ignoring case. A stored "s3:*" matches a search for
// "s3:CreateBucket" and a search for "s3:*" matches a stored
// "s3:CreateBucket". A NotAction prefix on action is ignored.
func MatchesAction(action, pattern string) bool {
	a := strings.ToLower(strings.TrimPrefix(action, core.NotActionPrefix))
	p := strings.ToLower(pattern)
	return Wildcard(p, a) || Wildcard(a, p)
}

// MatchesName reports whether a role or policy name matches pattern. The
// comparison is case-sensitive.
func MatchesName(name, pattern string) bool {
	return Wildcard(pattern, name)
}

// FilterByAction returns the rows whose action matches pattern.
func FilterByAction(rows []core.PermissionRow, pattern string) []core.PermissionRow {
	matched := make([]core.PermissionRow, 0, len(rows))
	for _, row := range rows {
		if MatchesAction(row.RawAction(), pattern) {
			matched = append(matched, row)
		}
	}
	return matched
}

// Wildcard matches s against a shell-style pattern. "*" matches any run of
// characters; "?" and "[...]" classes are honored as well, with "[!...]"
// negating a class. A backslash is an ordinary character. An unterminated
// class is matched literally.
func Wildcard(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "?[") {
		return glob.Glob(pattern, s)
	}
	// IAM names and actions never contain "/", so path.Match stars behave
	// like plain shell stars here.
	ok, err := path.Match(shellToPathPattern(pattern), s)
	if err != nil {
		return glob.Glob(pattern, s)
	}
	return ok
}

// shellToPathPattern rewrites shell class syntax into path.Match syntax:
// "[!" negates, a leading "^" in a class is literal and "\" never escapes.
func shellToPathPattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)

	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '[' && !inClass:
			b.WriteByte('[')
			inClass = true
			if i+1 < len(pattern) {
				switch pattern[i+1] {
				case '!':
					b.WriteByte('^')
					i++
				case '^':
					b.WriteString(`\^`)
					i++
				}
			}
		case c == ']' && inClass:
			b.WriteByte(']')
			inClass = false
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
