// Package random provides the injectable uniform randomness used for room
// codes, topic selection and impostor selection.
package random

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
)

// Source produces uniformly distributed integers.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// cryptoSource draws from the operating system's secure generator.
type cryptoSource struct {
	r io.Reader
}

// NewCryptoSource returns the Source the server uses outside tests.
func NewCryptoSource() Source {
	return &cryptoSource{r: rand.Reader}
}

// Intn panics for n <= 0 and when the system generator cannot be read.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("random: Intn bound must be positive, got %d", n))
	}
	v, err := rand.Int(c.r, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Errorf("random: reading system generator: %w", err))
	}
	return int(v.Int64())
}

// Sequence is a deterministic Source that replays values in order, reducing
// each modulo n. It wraps around when exhausted. Useful for tests and for
// replaying a recorded game.
type Sequence struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequence returns a Sequence replaying values.
//
// Precondition: values must be non-empty and non-negative.
func NewSequence(values ...int) *Sequence {
	if len(values) == 0 {
		panic("random: NewSequence requires at least one value")
	}
	return &Sequence{values: values}
}

// Intn returns the next recorded value modulo n.
func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		panic("random: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return v % n
}

// Pick returns a uniformly chosen element of items.
//
// Precondition: items must be non-empty; src must be non-nil.
func Pick[T any](src Source, items []T) T {
	return items[src.Intn(len(items))]
}
