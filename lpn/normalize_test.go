package lpn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("canonical_form", testNormalizeCanonicalForm)
	t.Run("idempotent", testNormalizeIdempotent)
	t.Run("shard_key", testShardKeyFor)
	t.Run("full_lpn_shape", testLooksLikeFullLPN)
}

func testNormalizeCanonicalForm(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "already_canonical", raw: "LPN0000000001", want: "LPN0000000001"},
		{name: "lowercase", raw: "lpnabc", want: "LPNABC"},
		{name: "surrounding_and_inner_spaces", raw: "  lpn 000 01 ", want: "LPN00001"},
		{name: "tabs_and_newlines", raw: "\tLpn\n12\r\n", want: "LPN12"},
		{name: "non_breaking_space", raw: "LPN\u00a01", want: "LPN1"},
		{name: "only_whitespace", raw: " \t\n", want: ""},
		{name: "empty", raw: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.raw))
		})
	}
}

func testNormalizeIdempotent(t *testing.T) {
	for _, raw := range []string{"lpn 1", "  AbC  ", "x", "LPN a b c", ""} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once), "raw=%q", raw)
	}
}

func testShardKeyFor(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "long_identifier", id: "LPN0000000001", want: "LP"},
		{name: "two_chars", id: "AB", want: "AB"},
		{name: "one_char_padded", id: "X", want: "X0"},
		{name: "empty_padded", id: "", want: "00"},
		{name: "normalizes_first", id: "  ab12", want: "AB"},
		{name: "multibyte_counts_runes", id: "ÄÖÜ", want: "ÄÖ"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ShardKeyFor(tc.id)
			assert.Equal(t, tc.want, got)
			assert.Len(t, []rune(got), ShardKeyLength)
		})
	}
}

func testLooksLikeFullLPN(t *testing.T) {
	assert.True(t, LooksLikeFullLPN("LPN0000000001"))
	assert.True(t, LooksLikeFullLPN(" lpn abcdef1234 "))
	assert.False(t, LooksLikeFullLPN("LPN000000001"))
	assert.False(t, LooksLikeFullLPN("LPN00000000012"))
	assert.False(t, LooksLikeFullLPN("ABC0000000001"))
	assert.False(t, LooksLikeFullLPN("LPN-000000001"))
}
