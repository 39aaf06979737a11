package registry

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// CodeLength is the number of characters in a game code.
const CodeLength = 6

const codeChars = "0123456789"

// maxCodeAttempts bounds the uniqueness loop when the code space is nearly
// exhausted.
const maxCodeAttempts = 64

var ErrCodeSpaceExhausted = errors.New("could not allocate a unique game code")

// CodeGenerator returns a candidate code. Uniqueness is enforced by the
// registry.
type CodeGenerator func() (string, error)

// GenerateCode creates a random 6-digit code.
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code), nil
}

// ValidCode reports whether code has the game code format.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
