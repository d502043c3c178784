package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// DefaultBackupCodeCount is the number of codes issued per set.
const DefaultBackupCodeCount = 10

const backupCodeLen = 9 // XXXX-XXXX

// GenerateBackupCodes returns count codes of the form XXXX-XXXX, each built from
// four CSPRNG bytes rendered as uppercase hex.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		return nil, errors.New("backup code count must be > 0")
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	var raw [4]byte
	for len(codes) < count {
		if _, err := rand.Read(raw[:]); err != nil {
			return nil, err
		}
		h := strings.ToUpper(hex.EncodeToString(raw[:]))
		code := h[:4] + "-" + h[4:]
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// CanonicalBackupCode trims whitespace, uppercases, and restores the separator
// when the caller typed the eight hex digits without it.
func CanonicalBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, " ", "")
	if len(code) == 8 && !strings.Contains(code, "-") {
		code = code[:4] + "-" + code[4:]
	}
	return code
}

// IsBackupCodeFormat reports whether code (after canonicalization) is XXXX-XXXX
// uppercase hex.
func IsBackupCodeFormat(code string) bool {
	code = CanonicalBackupCode(code)
	if len(code) != backupCodeLen || code[4] != '-' {
		return false
	}
	for i := 0; i < len(code); i++ {
		if i == 4 {
			continue
		}
		c := code[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// HashBackupCode returns the hex SHA-256 digest of the canonical code bound to
// userID. Stores persist only this digest.
func HashBackupCode(userID, code string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + CanonicalBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code in codes for userID.
func HashBackupCodes(userID string, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = HashBackupCode(userID, c)
	}
	return out
}

// ConsumeBackupCode reports whether submitted matches one of the stored digests
// and returns the set with that digest removed. On a miss the returned slice is a
// copy of stored. All digests are compared so timing does not reveal the position
// of a match.
func ConsumeBackupCode(userID string, stored []string, submitted string) (bool, []string) {
	if !IsBackupCodeFormat(submitted) {
		return false, append([]string(nil), stored...)
	}

	want := []byte(HashBackupCode(userID, submitted))
	match := -1
	for i, digest := range stored {
		if subtle.ConstantTimeCompare([]byte(digest), want) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return false, append([]string(nil), stored...)
	}

	remaining := make([]string, 0, len(stored)-1)
	remaining = append(remaining, stored[:match]...)
	remaining = append(remaining, stored[match+1:]...)
	return true, remaining
}
