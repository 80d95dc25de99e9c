package rpc

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// HandlerFunc processes one inbound event's arguments. Arguments stay
// raw so each handler decodes only the shapes it expects; trailing
// arguments it does not read are ignored.
type HandlerFunc func(args []msgpack.RawMessage) error

// Loop is the single event processing goroutine. Frames from the editor
// and functions posted by in-process workers are serialized onto it, so
// handler code never needs locks.
type Loop struct {
	dec      *msgpack.Decoder
	handlers map[string]HandlerFunc

	frames chan []msgpack.RawMessage
	local  chan func()
	quit   chan struct{}
}

// NewLoop reads frames from r. Handlers are registered before Run.
func NewLoop(r io.Reader) *Loop {
	return &Loop{
		dec:      msgpack.NewDecoder(r),
		handlers: make(map[string]HandlerFunc),
		frames:   make(chan []msgpack.RawMessage, 16),
		local:    make(chan func(), 64),
		quit:     make(chan struct{}),
	}
}

// Handle registers fn for the named event. An event arriving with no
// registered handler is logged and dropped, never a dispatch fault.
func (l *Loop) Handle(name string, fn HandlerFunc) {
	l.handlers[name] = fn
}

// Post schedules fn onto the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	select {
	case l.local <- fn:
	case <-l.quit:
	}
}

// Stop makes Run return after the current event.
func (l *Loop) Stop() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
}

// Run decodes and dispatches until the stream ends or Stop is called.
func (l *Loop) Run() error {
	readErr := make(chan error, 1)
	go l.readFrames(readErr)

	for {
		select {
		case <-l.quit:
			return nil
		case err := <-readErr:
			return l.drain(err)
		case fn := <-l.local:
			fn()
		case frame := <-l.frames:
			l.dispatch(frame)
		}
	}
}

// drain dispatches frames that were already queued when the stream
// ended; the select above picks branches at random, so events decoded
// before EOF may still be waiting.
func (l *Loop) drain(err error) error {
	for {
		select {
		case frame := <-l.frames:
			l.dispatch(frame)
		default:
			if errors.Is(err, io.EOF) {
				log.Debug("editor closed the event stream")
				return nil
			}
			return err
		}
	}
}

// readFrames decodes raw frames off the stream on a dedicated goroutine
// so Run can multiplex them with posted work.
func (l *Loop) readFrames(readErr chan<- error) {
	for {
		var frame []msgpack.RawMessage
		if err := l.dec.Decode(&frame); err != nil {
			readErr <- err
			return
		}
		select {
		case l.frames <- frame:
		case <-l.quit:
			return
		}
	}
}

// dispatch unwraps a frame into method name and arguments and hands it
// to the registered handler.
func (l *Loop) dispatch(frame []msgpack.RawMessage) {
	method, args, err := splitFrame(frame)
	if err != nil {
		log.Errorf("dropping malformed frame: %v", err)
		return
	}

	fn, ok := l.handlers[method]
	if !ok {
		log.Infof("no handler for event %q, ignoring", method)
		return
	}
	if err := fn(args); err != nil {
		log.Errorf("event %q: %v", method, err)
	}
}

// splitFrame accepts both notification and request frames; requests are
// treated as notifications since every inbound event is fire-and-forget.
func splitFrame(frame []msgpack.RawMessage) (string, []msgpack.RawMessage, error) {
	if len(frame) < 3 {
		return "", nil, fmt.Errorf("frame with %d elements", len(frame))
	}
	var kind int
	if err := msgpack.Unmarshal(frame[0], &kind); err != nil {
		return "", nil, fmt.Errorf("frame kind: %w", err)
	}

	var methodAt, paramsAt int
	switch kind {
	case frameNotification:
		methodAt, paramsAt = 1, 2
	case frameRequest:
		if len(frame) < 4 {
			return "", nil, fmt.Errorf("request frame with %d elements", len(frame))
		}
		methodAt, paramsAt = 2, 3
	default:
		return "", nil, fmt.Errorf("unexpected frame kind %d", kind)
	}

	var method string
	if err := msgpack.Unmarshal(frame[methodAt], &method); err != nil {
		return "", nil, fmt.Errorf("method name: %w", err)
	}
	var args []msgpack.RawMessage
	if err := msgpack.Unmarshal(frame[paramsAt], &args); err != nil {
		return "", nil, fmt.Errorf("params of %s: %w", method, err)
	}
	return method, args, nil
}

// DecodeArgs unmarshals leading arguments into the given targets.
// Extra trailing arguments are ignored; missing ones are an error.
func DecodeArgs(args []msgpack.RawMessage, targets ...any) error {
	if len(args) < len(targets) {
		return fmt.Errorf("got %d args, need %d", len(args), len(targets))
	}
	for i, target := range targets {
		if err := msgpack.Unmarshal(args[i], target); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	return nil
}
