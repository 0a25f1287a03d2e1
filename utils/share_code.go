package utils

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

// Alphabet tanpa karakter ambigu (0/O, 1/I/L) supaya mudah dibacakan di meja
const shareCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const ShareCodeLength = 6

var shareCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GenerateShareCode returns a short human-shareable code for a session
func GenerateShareCode() string {
	code := make([]byte, ShareCodeLength)
	max := big.NewInt(int64(len(shareCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand hanya gagal jika sumber entropi OS rusak
			code[i] = shareCodeAlphabet[0]
			continue
		}
		code[i] = shareCodeAlphabet[n.Int64()]
	}
	return string(code)
}

// IsValidShareCode checks the share code format before touching the database
func IsValidShareCode(code string) bool {
	return shareCodePattern.MatchString(code)
}
