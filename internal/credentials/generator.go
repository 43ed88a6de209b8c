// Package credentials generates throwaway directory passwords. The broker
// rotates a user's directory credential on every successful authorization,
// so these values only need to survive the login call that follows.
package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"

	// Length matches the directory's password policy.
	Length = 10
)

// Generate returns a random credential of n characters containing at
// least one numeral. n values below 2 are rejected.
func Generate(n int) (string, error) {
	if n < 2 {
		return "", fmt.Errorf("credentials: length %d too short", n)
	}

	alphabet := letters + digits

	out := make([]byte, n)
	for i := range out {
		c, err := randomIndex(len(alphabet))
		if err != nil {
			return "", err
		}
		out[i] = alphabet[c]
	}

	// Force a numeral at a random position so the directory's
	// complexity check cannot reject the credential.
	pos, err := randomIndex(n)
	if err != nil {
		return "", err
	}
	d, err := randomIndex(len(digits))
	if err != nil {
		return "", err
	}
	out[pos] = digits[d]

	return string(out), nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("credentials: failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}
