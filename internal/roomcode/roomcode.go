package roomcode

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strings"
	"unicode/utf8"
)

const (
	// Length is the number of characters in every room code.
	Length = 6

	// Alphabet is the base-36 symbol set room codes are drawn from.
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// ErrInvalidFormat is returned when a candidate code is not 6 characters
// after trimming and upper-casing.
var ErrInvalidFormat = errors.New("invalid room code format")

// Code is a short, human-shareable room identifier.
type Code string

func (c Code) String() string {
	return string(c)
}

// Generator produces room codes.
type Generator interface {
	Generate() Code
}

// GeneratorFunc adapts a plain function to a Generator.
type GeneratorFunc func() Code

func (f GeneratorFunc) Generate() Code {
	return f()
}

// DefaultGenerator draws codes from crypto/rand.
var DefaultGenerator Generator = GeneratorFunc(Generate)

// Generate returns a fresh room code. Each symbol is drawn independently; no
// check is made against rooms that already exist.
func Generate() Code {
	var b strings.Builder
	b.Grow(Length)
	for range Length {
		b.WriteByte(Alphabet[randomIndex(len(Alphabet))])
	}
	return Code(b.String())
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}

// Validate normalizes a user-entered code and checks its length. Any string
// of the right length is accepted, including codes that were never generated.
func Validate(candidate string) (Code, error) {
	code := strings.ToUpper(strings.TrimSpace(candidate))
	if utf8.RuneCountInString(code) != Length {
		return "", ErrInvalidFormat
	}
	return Code(code), nil
}

// IsAlphanumeric reports whether every character of c is in Alphabet.
func (c Code) IsAlphanumeric() bool {
	for _, r := range string(c) {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
