// Package shortcode generates the random tokens embedded in short URLs.
package shortcode

import (
	"math/rand/v2"
	"sync"
)

const (
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	Length   = 6
)

// Generator draws codes uniformly, with replacement, from Alphabet.
// It makes no attempt to avoid codes it has produced before.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator reading from src. A nil src uses the
// runtime's global random source.
func NewGenerator(src rand.Source) *Generator {
	g := &Generator{}
	if src != nil {
		g.rng = rand.New(src)
	}
	return g
}

func (g *Generator) Generate() string {
	code := make([]byte, Length)

	if g.rng == nil {
		for i := range code {
			code[i] = Alphabet[rand.IntN(len(Alphabet))]
		}
		return string(code)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range code {
		code[i] = Alphabet[g.rng.IntN(len(Alphabet))]
	}
	return string(code)
}

var defaultGenerator = NewGenerator(nil)

func Generate() string {
	return defaultGenerator.Generate()
}

// Valid reports whether s has the shape of a generated code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
