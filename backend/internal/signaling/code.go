package signaling

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// CodeLength is the number of characters in a room code.
	CodeLength = 6

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator returns a candidate room code. Uniqueness is checked by the
// Registry, which retries on collision.
type CodeGenerator func() (string, error)

// RandomCode draws CodeLength characters from codeAlphabet using crypto/rand.
func RandomCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeCode upper-cases and trims user supplied codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the room code shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
