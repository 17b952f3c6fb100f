// Package designhash computes the stable identifier used to name a
// node-locked license request/response pair on disk (spec §4.H).
package designhash

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Compute derives the design hash from the controller's DNA, reported
// version, and the VLNV of every attached activator, in that order.
// Two controllers produce the same hash if and only if they carry the
// same design — the property the .req/.lic file naming in
// internal/session/nodelock.go depends on.
func Compute(dna, version string, vlnvs []string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(dna))
	h.Write([]byte{0})
	h.Write([]byte(version))
	for _, v := range vlnvs {
		h.Write([]byte{0})
		h.Write([]byte(v))
	}
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}
