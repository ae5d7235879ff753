package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// FingerprintVersion tags every fingerprint with the analysis format
// generation. Bumping it invalidates all cached artifacts at once,
// which is how incompatible cache layouts are rolled out.
const FingerprintVersion = "v1"

// LocalFingerprint hashes everything the render stage depends on for a
// single model: its raw SQL, the project macro hash, and the format
// version. Two models with equal local fingerprints render to
// byte-identical SQL.
func LocalFingerprint(rawSQL, macroHash string) string {
	h := sha256.New()
	h.Write([]byte(FingerprintVersion))
	h.Write([]byte{0})
	h.Write([]byte(macroHash))
	h.Write([]byte{0})
	h.Write([]byte(rawSQL))
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint folds a model's local fingerprint together with the
// transitive fingerprints of everything it references. Upstream
// fingerprints are sorted before hashing so the result does not depend
// on reference order in the SQL text. An edit anywhere upstream
// therefore changes the fingerprint of every downstream model.
func Fingerprint(local string, upstream []string) string {
	if len(upstream) == 0 {
		return local
	}
	sorted := make([]string, len(upstream))
	copy(sorted, upstream)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(local))
	for _, fp := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(fp))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SourceFingerprint derives the stable fingerprint of a declared
// source table. Sources have no SQL body, so the fingerprint covers
// the declaration itself: qualified name and declared columns.
func SourceFingerprint(s *SourceTable) string {
	h := sha256.New()
	h.Write([]byte(FingerprintVersion))
	h.Write([]byte{0})
	h.Write([]byte(s.RelationName()))
	for _, c := range s.Columns {
		h.Write([]byte{0})
		h.Write([]byte(c.Name))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashStrings hashes an ordered list of strings into one hex digest.
// Used for macro-set hashing where the caller fixes the order.
func HashStrings(parts []string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
