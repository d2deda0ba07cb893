// Package ids generates the short random identifiers used as the
// stable id field of Teams, Mentors and Messages (8 lowercase hex
// characters, per spec.md §3).
package ids

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a fresh random 8-hex-character identifier. It panics
// only if the system CSPRNG is broken, matching the teacher's
// convention of treating crypto/rand failures as unrecoverable
// (see common/logging callers throughout roothash/memory).
func New() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("ids: system randomness unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
