package shortener

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

// Alphabet is the set of characters short codes are drawn from.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MinCodeLength keeps codes at or above 59 bits of entropy.
const MinCodeLength = 10

// CodeGenerator generates candidate short codes.
type CodeGenerator func() string

// NewCodeGenerator returns a generator of random alphanumeric codes of the given length.
func NewCodeGenerator(length int) (CodeGenerator, error) {
	if length < MinCodeLength {
		return nil, fmt.Errorf("code length must be at least %d", MinCodeLength)
	}

	gen, err := nanoid.CustomASCII(Alphabet, length)
	if err != nil {
		return nil, fmt.Errorf("create code generator: %w", err)
	}

	return gen, nil
}
