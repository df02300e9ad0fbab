package sni

import (
	"context"
	"os"
	"sync"

	"github.com/sagernet/sing-sni/common/sniff"
	"github.com/sagernet/sing-sni/common/tls"
	C "github.com/sagernet/sing-sni/constant"

	"github.com/sagernet/sing/common/buf"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"
)

type SessionState uint8

const (
	// StateSniffing accepts data and forwards read demands.
	StateSniffing SessionState = iota
	// StateAwaitingLookup defers read demands until the pending credential
	// lookup completes.
	StateAwaitingLookup
	// StateHandedOff means the credential and buffered bytes were delivered
	// to the handler. The session accepts no further data.
	StateHandedOff
)

// Handler consumes the outcome of a session. Exactly one of NewCredential or
// NewError is called, from the goroutine that drove the session to its
// outcome, with the session lock held.
type Handler interface {
	// NewCredential receives the selected credential together with every
	// byte the session buffered. The handler owns the buffer.
	NewCredential(credential tls.ServerConfig, buffer *buf.Buffer)
	NewError(err error)
}

type SessionOptions struct {
	Context  context.Context
	Logger   logger.ContextLogger
	Resolver Resolver
	Handler  Handler
	// Read forwards a read demand to the transport. It is called with the
	// session lock held and must not block or reenter the session.
	Read func()
}

// Session detects the server name in a client hello, resolves a credential
// for it, and hands the buffered bytes off for termination. While a lookup
// is pending, read demands are deferred so no handshake bytes arrive before
// the credential is known; completion replays at most one deferred demand.
type Session struct {
	ctx      context.Context
	logger   logger.ContextLogger
	resolver Resolver
	handler  Handler
	read     func()

	access       sync.Mutex
	state        SessionState
	closed       bool
	determined   bool
	readDeferred bool
	serverName   string
	credential   tls.ServerConfig
	buffer       *buf.Buffer
}

func NewSession(options SessionOptions) *Session {
	sessionLogger := options.Logger
	if sessionLogger == nil {
		sessionLogger = logger.NOP()
	}
	return &Session{
		ctx:      options.Context,
		logger:   sessionLogger,
		resolver: options.Resolver,
		handler:  options.Handler,
		read:     options.Read,
		buffer:   buf.NewSize(C.MaxClientHelloLength),
	}
}

func (s *Session) State() SessionState {
	s.access.Lock()
	defer s.access.Unlock()
	return s.state
}

// ServerName is the canonical sniffed name, empty until detection finishes
// and empty forever when the stream carries no usable client hello.
func (s *Session) ServerName() string {
	s.access.Lock()
	defer s.access.Unlock()
	return s.serverName
}

func (s *Session) Credential() tls.ServerConfig {
	s.access.Lock()
	defer s.access.Unlock()
	return s.credential
}

// WriteData appends data received from the transport. Each call rescans the
// buffered prefix until detection finalizes, then triggers the credential
// lookup exactly once.
func (s *Session) WriteData(data []byte) error {
	s.access.Lock()
	defer s.access.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if s.state == StateHandedOff {
		return E.New("write after handoff")
	}
	if len(data) > s.buffer.FreeLen() {
		return E.New("client hello too large")
	}
	s.buffer.Write(data)
	if s.determined {
		return nil
	}
	clientHello, err := sniff.ExtractClientHello(s.buffer.Bytes())
	if err != nil {
		return nil
	}
	s.determined = true
	s.serverName = sniff.CanonicalServerName(clientHello.ServerName)
	if s.serverName != "" {
		s.logger.DebugContext(s.ctx, "sniffed server name: ", s.serverName)
	} else {
		s.logger.DebugContext(s.ctx, "no server name in client hello")
	}
	s.startLookup()
	return nil
}

// RequestRead forwards a read demand, or defers it while a lookup is
// pending. Deferred demands collapse into one.
func (s *Session) RequestRead() {
	s.access.Lock()
	defer s.access.Unlock()
	if s.closed {
		return
	}
	if s.state == StateAwaitingLookup {
		s.readDeferred = true
		return
	}
	s.read()
}

// Close orphans any pending lookup completion and releases the buffer.
func (s *Session) Close() error {
	s.access.Lock()
	defer s.access.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	s.closed = true
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
	}
	return nil
}

func (s *Session) startLookup() {
	future := s.resolver.Lookup(s.ctx, s.serverName)
	select {
	case <-future.Done():
		// Synchronous resolution: apply inline, reads were never deferred.
		s.applyLookup(future)
	default:
		s.state = StateAwaitingLookup
		go s.waitLookup(future)
	}
}

func (s *Session) waitLookup(future *Future) {
	select {
	case <-future.Done():
	case <-s.ctx.Done():
	}
	s.access.Lock()
	defer s.access.Unlock()
	if s.closed {
		return
	}
	s.state = StateSniffing
	select {
	case <-future.Done():
		s.applyLookup(future)
	default:
		s.handler.NewError(E.Cause(s.ctx.Err(), "credential lookup"))
	}
	if s.readDeferred {
		s.readDeferred = false
		s.read()
	}
}

func (s *Session) applyLookup(future *Future) {
	credential, err := future.Result()
	if err != nil {
		s.handler.NewError(E.Cause(err, "resolve credential"))
		return
	}
	s.credential = credential
	if !s.determined {
		return
	}
	s.state = StateHandedOff
	buffer := s.buffer
	s.buffer = nil
	s.handler.NewCredential(credential, buffer)
}
