package devicelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuffixOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   string
		want string
	}{
		{"f81d4fae-7dec-11d0-a765-00a0c91e6bf6", "e6bf6"},
		{"device-ABCDE", "ABCDE"},
		{"abc", "abc"},
		{"a1b2c3", "1b2c3"},
		{"-----", "-----"},
		{"", "-----"},
		{"!!##@@", "-----"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SuffixOf(tt.id))
		})
	}
}

func TestResolveIdentityOverride(t *testing.T) {
	t.Parallel()
	id := ResolveIdentity("iOS", " custom-id-1 ")
	assert.Equal(t, "ios", id.Platform)
	assert.Equal(t, "custom-id-1", id.ID)
	assert.Equal(t, "omid1", id.Suffix())
}

func TestResolveIdentityDefaults(t *testing.T) {
	t.Parallel()
	id := ResolveIdentity("", "")
	assert.Equal(t, "android", id.Platform)
	// Machine ID or hostname; either way something non-empty.
	assert.NotEmpty(t, id.ID)
}

func TestClampLines(t *testing.T) {
	t.Parallel()
	assert.Equal(t, MinLines, ClampLines(0))
	assert.Equal(t, MinLines, ClampLines(9))
	assert.Equal(t, 10, ClampLines(10))
	assert.Equal(t, 80, ClampLines(80))
	assert.Equal(t, MaxLines, ClampLines(200))
	assert.Equal(t, MaxLines, ClampLines(5000))
}
