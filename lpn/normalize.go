package lpn

import (
	"regexp"
	"strings"
	"unicode"
)

// ShardKeyLength is the number of leading identifier characters that select a shard.
const ShardKeyLength = 2

// ShardKeyFiller pads identifiers shorter than ShardKeyLength.
const ShardKeyFiller = "0"

var fullLPNPattern = regexp.MustCompile(`^LPN[A-Z0-9]{10}$`)

// Normalize returns the canonical form of a raw identifier: all whitespace
// removed and upper-cased. An empty result means the input carried no identifier.
func Normalize(raw string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw))
}

// ShardKeyFor returns the two-character shard key for an identifier.
func ShardKeyFor(identifier string) string {
	id := []rune(Normalize(identifier))
	if len(id) > ShardKeyLength {
		id = id[:ShardKeyLength]
	}
	key := string(id)
	for len([]rune(key)) < ShardKeyLength {
		key += ShardKeyFiller
	}
	return key
}

// LooksLikeFullLPN reports whether a scan has reached the full "LPN" + 10
// character shape. Scanners use it to decide when to search; the index accepts
// any non-empty canonical identifier.
func LooksLikeFullLPN(raw string) bool {
	return fullLPNPattern.MatchString(Normalize(raw))
}
