// Package entropy supplies run seeds. A configured seed is used as is;
// zero asks for a fresh one from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// Seed returns configured unless it is zero, in which case a random
// positive seed is drawn. The result is never zero.
func Seed(configured int64) int64 {
	if configured != 0 {
		return configured
	}
	return cryptoSeed()
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; the clock is good enough for a seed.
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return nonZero(time.Now().UnixNano())
	}
	// Drop the sign bit so seeds print as positive numbers.
	return nonZero(int64(binary.LittleEndian.Uint64(buf[:]) >> 1))
}

func nonZero(n int64) int64 {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return 1
	}
	return n
}
