package device

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// interestsHashKey domain-separates interest set hashes from any other BLAKE3
// use in the process. ASCII, zero padded to 32 bytes.
var interestsHashKey = [32]byte{
	'c', 'h', 'a', 't', 'k', 'i', 'n', 'g', '.', 'p', 'u', 's', 'h', '.',
	'i', 'n', 't', 'e', 'r', 'e', 's', 't', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Hash returns the hex BLAKE3 keyed hash of the set. Two sets with the same
// members hash identically regardless of insertion order.
func (s InterestSet) Hash() string {
	h, err := blake3.NewKeyed(interestsHashKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic(err)
	}
	_, _ = h.Write([]byte(strings.Join(s.Sorted(), "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
