package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		"/":                      "/",
		"/a/b/":                  "/a/b",
		"/A/B/../C/./d":          "/a/c/d",
		`C:\Users\Dev\Proj\`:     "c:/users/dev/proj",
		`C:\`:                    "c:/",
		"c:/":                    "c:/",
		"C:":                     "c:/",
		`\\Server\Share\Folder\`: "//server/share/folder",
		"//":                     "/",
		"/tmp//x.txt":            "/tmp/x.txt",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeRelative(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	want := strings.ToLower(filepath.ToSlash(filepath.Join(wd, "sub")))
	require.Equal(t, want, Normalize("./sub/"))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "/", "//", "/a/", "a/b/..", ".", "..", `C:\`, "C:", `D:\x\..\y\`,
		`\\host\share\`, "/Mixed/Case/Path/", "relative/dir/", "/a/./b//c/",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestMatch(t *testing.T) {
	require.True(t, Match("/a/b", "/a/b/c"))
	require.True(t, Match("/a/b/c", "/a/b"))
	require.True(t, Match("/A/B/", "/a/b"))
	require.True(t, Match(`C:\Work\App`, "c:/work/app/App.sln"))
	require.False(t, Match("/a/b", "/z"))
	require.True(t, Match("", "/anything"), "empty filter matches all")
}

// Match is a string-prefix test, not a path-segment test; sibling directories sharing a prefix
// match each other.
func TestMatchSiblingPrefixLooseness(t *testing.T) {
	require.True(t, Match("/proj", "/proj2"))
	require.True(t, Match("/proj2", "/proj"))
}

func TestMatchSymmetric(t *testing.T) {
	inputs := []string{"", "/", "/a", "/a/b", "/ab", "/proj", "/proj2", `C:\x`, "c:/x/y", "rel"}
	for _, a := range inputs {
		for _, b := range inputs {
			require.Equal(t, Match(a, b), Match(b, a), "Match(%q, %q)", a, b)
		}
	}
}
