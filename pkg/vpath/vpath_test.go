package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Path
	}{
		{"Root", "/", "/"},
		{"Empty", "", "/"},
		{"Dot", ".", "/"},
		{"RelativeBecomesAbsolute", "a/b", "/a/b"},
		{"AlreadyNormalized", "/a/b/c.txt", "/a/b/c.txt"},
		{"TrailingSlash", "/a/b/", "/a/b"},
		{"DuplicateSeparators", "//a///b", "/a/b"},
		{"DotSegments", "/a/./b/.", "/a/b"},
		{"DotDotResolves", "/a/b/../c", "/a/c"},
		{"DotDotToRoot", "/a/..", "/"},
		{"OnlySlashes", "////", "/"},
		{"MixedMess", "a//./b/../c/", "/a/c"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsEscapes(t *testing.T) {
	for _, in := range []string{"..", "/..", "/../etc", "/a/../..", "a/../../b"} {
		t.Run(in, func(t *testing.T) {
			_, err := Normalize(in)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestNormalizeRejectsNulByte(t *testing.T) {
	_, err := Normalize("/a/b\x00c")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"/", "", "a/b/", "//x//y", "/a/./b/../c", "/deep/tree/file.bin"}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(string(once))
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

// Already-normalized inputs must come back as a borrowed view of the
// input string, without allocating a new one.
func TestNormalizeNoAllocWhenNormalized(t *testing.T) {
	in := "/already/normal/path.txt"
	allocs := testing.AllocsPerRun(100, func() {
		p, err := Normalize(in)
		if err != nil || string(p) != in {
			t.Fatal("unexpected normalize result")
		}
	})
	assert.Zero(t, allocs)
}

func TestPathKey(t *testing.T) {
	assert.Equal(t, "", Root.Key())
	assert.Equal(t, "a/b", Path("/a/b").Key())
}

func TestPathBase(t *testing.T) {
	assert.Equal(t, "/", Root.Base())
	assert.Equal(t, "c.txt", Path("/a/b/c.txt").Base())
	assert.Equal(t, "a", Path("/a").Base())
}

func TestPathJoin(t *testing.T) {
	assert.Equal(t, Path("/a"), Root.Join("a"))
	assert.Equal(t, Path("/a/b"), Path("/a").Join("b"))
}
