// Package paths canonicalizes filesystem paths so two processes compare workspaces the same way.
package paths

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalize returns the comparison form of p: absolute, cleaned, slash separated, without a
// trailing slash (except for drive roots such as "c:/") and lower-cased. Empty input yields "".
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	s, ok := cleanAbsolute(strings.ReplaceAll(p, `\`, "/"))
	if !ok {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		slashed := strings.ReplaceAll(filepath.ToSlash(abs), `\`, "/")
		if s, ok = cleanAbsolute(slashed); !ok {
			s = path.Clean(slashed)
		}
	}
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		trimmed := s[:len(s)-1]
		if !isDriveRoot(trimmed) {
			s = trimmed
		}
	}
	return strings.ToLower(s)
}

// Match reports whether a and b name the same workspace or one contains the other. The test is a
// raw string prefix on the normalized forms, so "/proj" also matches "/proj2". An empty path
// matches everything.
func Match(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na)
}

// cleanAbsolute cleans s when it is already absolute in POSIX, UNC or drive-letter form.
func cleanAbsolute(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "//"):
		return "/" + path.Clean(s[1:]), true
	case hasDrive(s):
		return s[:2] + path.Clean("/"+s[2:]), true
	case strings.HasPrefix(s, "/"):
		return path.Clean(s), true
	}
	return "", false
}

func hasDrive(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDriveRoot(s string) bool {
	return len(s) == 2 && hasDrive(s)
}
