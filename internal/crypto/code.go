package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateVerificationCode returns a uniformly sampled 6-digit code,
// zero-padded so the width is always exactly six characters.
func GenerateVerificationCode() (string, error) {
	max := big.NewInt(1000000)
	value, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", value.Int64()), nil
}
