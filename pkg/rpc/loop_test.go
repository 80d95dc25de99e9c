package rpc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func encodeFrames(t *testing.T, frames ...[]any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, frame := range frames {
		require.NoError(t, enc.Encode(frame))
	}
	return &buf
}

func TestLoopDispatchesNotifications(t *testing.T) {
	stream := encodeFrames(t,
		[]any{frameNotification, "ping", []any{"a", int64(2)}},
	)
	loop := NewLoop(stream)

	var gotA string
	var gotB int
	loop.Handle("ping", func(args []msgpack.RawMessage) error {
		return DecodeArgs(args, &gotA, &gotB)
	})

	require.NoError(t, loop.Run())
	assert.Equal(t, "a", gotA)
	assert.Equal(t, 2, gotB)
}

func TestLoopDispatchesRequestsLikeNotifications(t *testing.T) {
	stream := encodeFrames(t,
		[]any{frameRequest, uint64(1), "ping", []any{"x"}},
	)
	loop := NewLoop(stream)

	var got string
	loop.Handle("ping", func(args []msgpack.RawMessage) error {
		return DecodeArgs(args, &got)
	})

	require.NoError(t, loop.Run())
	assert.Equal(t, "x", got)
}

func TestLoopIgnoresUnknownEvents(t *testing.T) {
	stream := encodeFrames(t,
		[]any{frameNotification, "no_such_event", []any{}},
		[]any{frameNotification, "known", []any{}},
	)
	loop := NewLoop(stream)

	called := false
	loop.Handle("known", func([]msgpack.RawMessage) error {
		called = true
		return nil
	})

	require.NoError(t, loop.Run(), "an unregistered event name is a logged no-op, not a fault")
	assert.True(t, called, "events after the unknown one still dispatch")
}

func TestLoopSkipsMalformedFrames(t *testing.T) {
	stream := encodeFrames(t,
		[]any{int64(9), "weird"},
		[]any{frameNotification, "known", []any{}},
	)
	loop := NewLoop(stream)

	called := false
	loop.Handle("known", func([]msgpack.RawMessage) error {
		called = true
		return nil
	})

	require.NoError(t, loop.Run())
	assert.True(t, called)
}

func TestLoopRunsPostedWork(t *testing.T) {
	// a pipe keeps the frame reader blocked so only posted work can run
	pr, pw := io.Pipe()
	defer pw.Close()
	loop := NewLoop(pr)

	done := make(chan struct{})
	loop.Post(func() {
		close(done)
		loop.Stop()
	})

	require.NoError(t, loop.Run())
	select {
	case <-done:
	default:
		t.Fatal("posted function never ran on the loop")
	}
}

func TestDecodeArgsExtraTrailing(t *testing.T) {
	raw, err := msgpack.Marshal([]any{"a", int64(1), "ignored", "also ignored"})
	require.NoError(t, err)
	var args []msgpack.RawMessage
	require.NoError(t, msgpack.Unmarshal(raw, &args))

	var s string
	var n int
	assert.NoError(t, DecodeArgs(args, &s, &n), "trailing args beyond the targets are ignored")
	assert.Error(t, DecodeArgs(args[:1], &s, &n), "missing args are an error")
}
