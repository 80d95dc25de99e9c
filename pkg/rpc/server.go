package rpc

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/popmux/pkg/merge"
)

// Inbound event names dispatched to the coordinator.
const (
	EventComplete    = "complete"
	EventInsertEnter = "insert_enter"
	EventTimeout     = "complete_timeout"
	EventRefresh     = "refresh"
	EventShutdown    = "shutdown"
)

// Server binds the inbound event stream to a coordinator. It owns the
// event loop; everything the coordinator does happens on that loop.
type Server struct {
	loop     *Loop
	coord    *merge.Coordinator
	onClose  func()
	shutdown bool
}

// NewServer registers the event table for coord over the stream read
// from r. onClose runs once when the editor asks for shutdown or the
// stream ends; it may be nil.
func NewServer(r io.Reader, coord *merge.Coordinator, onClose func()) *Server {
	s := &Server{loop: NewLoop(r), coord: coord, onClose: onClose}

	s.loop.Handle(EventComplete, s.handleComplete)
	s.loop.Handle(EventInsertEnter, s.handleInsertEnter)
	s.loop.Handle(EventTimeout, s.handleTimeout)
	s.loop.Handle(EventRefresh, s.handleRefresh)
	s.loop.Handle(EventShutdown, s.handleShutdown)
	return s
}

// Loop exposes the event loop so local sources can post results onto it.
func (s *Server) Loop() *Loop {
	return s.loop
}

// Run serves events until shutdown, then runs the close hook.
func (s *Server) Run() error {
	err := s.loop.Run()
	s.close()
	return err
}

func (s *Server) close() {
	if s.shutdown {
		return
	}
	s.shutdown = true
	if s.onClose != nil {
		s.onClose()
	}
}

func (s *Server) handleComplete(args []msgpack.RawMessage) error {
	var (
		srcs     map[string]merge.SourceDescriptor
		name     string
		ctx      merge.Context
		startcol int
		raw      []any
	)
	if err := DecodeArgs(args, &srcs, &name, &ctx, &startcol, &raw); err != nil {
		return err
	}
	s.coord.OnSourceMatches(srcs, name, ctx, startcol, raw)
	return nil
}

func (s *Server) handleInsertEnter([]msgpack.RawMessage) error {
	s.coord.OnTypedReset()
	return nil
}

func (s *Server) handleTimeout(args []msgpack.RawMessage) error {
	var (
		srcs map[string]merge.SourceDescriptor
		ctx  merge.Context
	)
	if err := DecodeArgs(args, &srcs, &ctx); err != nil {
		return err
	}
	s.coord.OnRefreshTimeout(srcs, ctx)
	return nil
}

func (s *Server) handleRefresh(args []msgpack.RawMessage) error {
	var (
		srcs map[string]merge.SourceDescriptor
		ctx  merge.Context
	)
	if err := DecodeArgs(args, &srcs, &ctx); err != nil {
		return err
	}
	s.coord.OnRefresh(srcs, ctx)
	return nil
}

func (s *Server) handleShutdown([]msgpack.RawMessage) error {
	s.loop.Stop()
	return nil
}
