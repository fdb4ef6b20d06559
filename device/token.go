package device

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrNegativeTokenLength reports a token request with length below 0.
var ErrNegativeTokenLength = errors.New("token length needs to be 0 or higher")

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomToken generates an opaque alphanumeric token of the requested
// length. Length 0 yields the empty token (authentication disabled).
func RandomToken(length int) (string, error) {
	if length < 0 {
		return "", ErrNegativeTokenLength
	}
	if length == 0 {
		return "", nil
	}
	// Rejection sampling: only bytes below the largest multiple of the
	// alphabet size map onto characters, keeping the draw uniform.
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
