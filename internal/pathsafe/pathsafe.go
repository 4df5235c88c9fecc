// Package pathsafe confines model-supplied relative paths to a project root.
//
// Two independent layers are provided. Sanitize normalizes a candidate path
// and never fails; IsSafeRelative decides whether a path may be written.
// Callers must apply IsSafeRelative immediately before every write, whether
// or not the path went through Sanitize.
package pathsafe

import (
	"regexp"
	"strings"
)

var (
	drivePrefix   = regexp.MustCompile(`^[A-Za-z]:[\\/]+`)
	driveLetter   = regexp.MustCompile(`^[A-Za-z]:`)
	repeatedSlash = regexp.MustCompile(`/+`)
)

// Sanitize turns an arbitrary candidate path into a relative, forward-slash
// path with traversal tokens removed. Hostile input degrades to an empty or
// neutral string.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	s = drivePrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `\`, "/")
	s = stripLeadingTraversal(s)
	s = strings.TrimLeft(s, ".")
	s = removeParentSegments(s)
	s = repeatedSlash.ReplaceAllString(s, "/")
	return s
}

// IsSafeRelative reports whether p may be joined onto a project root.
// It rejects absolute paths, drive letters, any ".." and any backslash.
func IsSafeRelative(p string) bool {
	if strings.HasPrefix(p, "/") || driveLetter.MatchString(p) {
		return false
	}
	if strings.Contains(p, "..") || strings.Contains(p, `\`) {
		return false
	}
	return true
}

// stripLeadingTraversal removes any leading run of "./", "../" and "/".
func stripLeadingTraversal(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, "./"):
			s = s[2:]
		case strings.HasPrefix(s, "../"):
			s = s[3:]
		case strings.HasPrefix(s, "/"):
			s = s[1:]
		default:
			return s
		}
	}
}

// removeParentSegments drops every whole ".." segment together with the slash
// in front of it. A segment is whole when it is bounded by "/" or the ends of
// the string; "a/..b" and "a/..." are left untouched.
func removeParentSegments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] == '/' && isParentAt(s, i+1) {
			i += 3
			continue
		}
		if i == 0 && isParentAt(s, 0) {
			i += 2
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// isParentAt reports whether s holds ".." at i followed by "/" or the end.
func isParentAt(s string, i int) bool {
	if !strings.HasPrefix(s[i:], "..") {
		return false
	}
	end := i + 2
	return end == len(s) || s[end] == '/'
}
