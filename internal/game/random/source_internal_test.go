package random

import (
	"errors"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoSource_Intn_PanicsWhenGeneratorFails(t *testing.T) {
	boom := errors.New("entropy exhausted")
	src := &cryptoSource{r: iotest.ErrReader(boom)}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok, "panic value is an error")
		assert.ErrorIs(t, err, boom)
	}()
	src.Intn(10)
	t.Fatal("Intn returned without a working generator")
}
