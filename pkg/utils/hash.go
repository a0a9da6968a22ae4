package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// HashString returns the hex MD5 digest of input. It keys the
// embedding cache and derives deterministic article ids; nothing
// security sensitive depends on it.
func HashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
