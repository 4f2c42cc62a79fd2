package random_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/impostor/internal/game/random"
)

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := random.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(36)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 36)
	}
}

func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := random.NewCryptoSource()
	assert.PanicsWithValue(t, "random: Intn bound must be positive, got 0", func() { src.Intn(0) })
}

func TestSequence_ReplaysAndWraps(t *testing.T) {
	seq := random.NewSequence(1, 2, 7)
	assert.Equal(t, 1, seq.Intn(10))
	assert.Equal(t, 2, seq.Intn(10))
	assert.Equal(t, 2, seq.Intn(5), "7 mod 5")
	assert.Equal(t, 1, seq.Intn(10), "wraps to the first value")
}

func TestSequence_PanicsWhenEmpty(t *testing.T) {
	assert.Panics(t, func() { random.NewSequence() })
}

func TestPick(t *testing.T) {
	items := []string{"a", "b", "c"}
	assert.Equal(t, "c", random.Pick(random.NewSequence(2), items))
}

func TestPick_Property_AlwaysAnElement(t *testing.T) {
	src := random.NewCryptoSource()
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(rapid.String(), 1, 50).Draw(t, "items")
		got := random.Pick(src, items)
		assert.Contains(t, items, got)
	})
}
