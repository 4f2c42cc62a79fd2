package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/impostor/internal/game/session"
	"github.com/cory-johannsen/impostor/internal/testutil"
)

func TestOutbox_ZeroValueFlush(t *testing.T) {
	var out session.Outbox
	assert.Equal(t, 0, out.Len())
	assert.Nil(t, out.Flush(context.Background(), time.Second))
}

func TestOutbox_PreservesPerConnectionOrder(t *testing.T) {
	a := testutil.NewFakeConn("a")
	b := testutil.NewFakeConn("b")

	var out session.Outbox
	out.Add("pa", a, []byte("1"))
	out.Add("pb", b, []byte("x"))
	out.Add("pa", a, []byte("2"))

	var more session.Outbox
	more.Add("pa", a, []byte("3"))
	out.Merge(more)
	require.Equal(t, 4, out.Len())

	assert.Empty(t, out.Flush(context.Background(), time.Second))
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, a.Raw())
	assert.Equal(t, [][]byte{[]byte("x")}, b.Raw())
}

func TestOutbox_FailuresAreCollectedPerRecipient(t *testing.T) {
	ok := testutil.NewFakeConn("ok")
	broken := testutil.NewFakeConn("broken")
	stuck := testutil.NewFakeConn("stuck")
	boom := errors.New("boom")
	broken.FailWith(boom)
	stuck.Block()

	var out session.Outbox
	out.Add("p-broken", broken, []byte("1"))
	out.Add("p-ok", ok, []byte("1"))
	out.Add("p-stuck", stuck, []byte("1"))
	out.Add("p-broken", broken, []byte("2"))
	out.Add("p-ok", ok, []byte("2"))

	start := time.Now()
	failures := out.Flush(context.Background(), 50*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second, "a stuck recipient is bounded by the timeout")

	require.Len(t, failures, 2)
	assert.Equal(t, "p-broken", failures[0].RecipientID)
	assert.Equal(t, "broken", failures[0].ConnID)
	assert.ErrorIs(t, failures[0].Err, boom)
	assert.Equal(t, "p-stuck", failures[1].RecipientID)
	assert.ErrorIs(t, failures[1].Err, context.DeadlineExceeded)

	assert.Len(t, ok.Raw(), 2, "healthy recipients still receive everything")
}
