// Package rpc speaks the editor's msgpack-RPC dialect: a stream of
// request [0,id,method,params], response [1,id,error,result] and
// notification [2,method,params] frames.
package rpc

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/popmux/pkg/merge"
)

const (
	frameRequest      = 0
	frameResponse     = 1
	frameNotification = 2
)

// Editor-facing method names.
const (
	methodComplete      = "popmux#core_complete"
	methodNotifyRefresh = "popmux#notify_sources_to_refresh"
	methodContext       = "popmux#context"
	methodBufferText    = "popmux#buffer"
)

// EditorClient is one connection into the editor. Over the main stdio
// connection only fire-and-forget notifications are sent; over a second
// dialed connection it additionally issues blocking calls, which is how
// the document server re-queries live editor state without deadlocking
// the event loop.
type EditorClient struct {
	mu  sync.Mutex
	enc *msgpack.Encoder
	dec *msgpack.Decoder
	buf *bufio.Writer
	seq uint64
}

// NewEditorClient wraps an existing stream. r may be nil for a
// write-only (notification) connection.
func NewEditorClient(w io.Writer, r io.Reader) *EditorClient {
	buf := bufio.NewWriter(w)
	c := &EditorClient{enc: msgpack.NewEncoder(buf), buf: buf}
	if r != nil {
		c.dec = msgpack.NewDecoder(r)
	}
	return c
}

// Dial opens a second bidirectional connection to the editor. Addresses
// containing a path separator are unix sockets, anything else is TCP.
func Dial(addr string) (*EditorClient, error) {
	network := "tcp"
	if strings.ContainsAny(addr, "/\\") {
		network = "unix"
	}
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial editor at %s: %w", addr, err)
	}
	return NewEditorClient(conn, conn), nil
}

// notify sends a fire-and-forget frame.
func (c *EditorClient) notify(method string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode([3]any{frameNotification, method, args}); err != nil {
		return err
	}
	return c.buf.Flush()
}

// call sends a request and blocks for its response. Only one call is in
// flight per connection; the document server is the sole caller and is
// strictly sequential, so no response multiplexing is needed.
func (c *EditorClient) call(method string, args ...any) (msgpack.RawMessage, error) {
	if c.dec == nil {
		return nil, fmt.Errorf("connection to editor is write-only, cannot call %s", method)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := c.seq
	if err := c.enc.Encode([4]any{frameRequest, id, method, args}); err != nil {
		return nil, err
	}
	if err := c.buf.Flush(); err != nil {
		return nil, err
	}

	var frame []msgpack.RawMessage
	if err := c.dec.Decode(&frame); err != nil {
		return nil, fmt.Errorf("read response to %s: %w", method, err)
	}
	if len(frame) != 4 {
		return nil, fmt.Errorf("malformed response frame with %d elements", len(frame))
	}
	var kind int
	var respID uint64
	if err := msgpack.Unmarshal(frame[0], &kind); err != nil || kind != frameResponse {
		return nil, fmt.Errorf("expected response frame, got kind %d", kind)
	}
	if err := msgpack.Unmarshal(frame[1], &respID); err != nil || respID != id {
		return nil, fmt.Errorf("response id %d does not match request %d", respID, id)
	}
	var callErr any
	if err := msgpack.Unmarshal(frame[2], &callErr); err == nil && callErr != nil {
		return nil, fmt.Errorf("%s: editor error: %v", method, callErr)
	}
	return frame[3], nil
}

// Complete implements merge.Emitter.
func (c *EditorClient) Complete(ctx merge.Context, startcol int, matches []merge.MatchRecord, state map[string]merge.SourceState) error {
	return c.notify(methodComplete, ctx, startcol, matches, state)
}

// NotifyRefresh implements merge.Emitter.
func (c *EditorClient) NotifyRefresh(syncNames []string, channels []merge.ChannelRefresh, ctx merge.Context) error {
	return c.notify(methodNotifyRefresh, syncNames, channels, ctx)
}

// CurrentVersion implements docserve.Editor.
func (c *EditorClient) CurrentVersion() (merge.Version, error) {
	raw, err := c.call(methodContext)
	if err != nil {
		return merge.Version{}, err
	}
	var v merge.Version
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return merge.Version{}, fmt.Errorf("decode context: %w", err)
	}
	return v, nil
}

// DocumentText implements docserve.Editor.
func (c *EditorClient) DocumentText() (string, error) {
	raw, err := c.call(methodBufferText)
	if err != nil {
		return "", err
	}
	var text string
	if err := msgpack.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("decode buffer text: %w", err)
	}
	return text, nil
}
