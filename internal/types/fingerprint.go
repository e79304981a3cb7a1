package types

import (
	"crypto/sha256"
	"encoding/base32"
	"strconv"
)

// fingerprintLen is the number of base32 characters kept from the hash,
// long enough to make accidental collisions negligible while staying a
// short, log-friendly string.
const fingerprintLen = 16

// Fingerprint derives a short, deterministic, opaque identity from a
// message/file/line triple. Equal triples always produce equal
// fingerprints; it is not security-sensitive, so a non-keyed hash is fine.
func Fingerprint(message, file string, line int) string {
	h := sha256.New()
	_, _ = h.Write([]byte(message))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(file))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(line)))
	sum := h.Sum(nil)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)
	if len(enc) > fingerprintLen {
		enc = enc[:fingerprintLen]
	}
	return enc
}
