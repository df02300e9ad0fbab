package sni

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/sagernet/sing-sni/adapter"
	"github.com/sagernet/sing-sni/common/listener"
	"github.com/sagernet/sing-sni/common/tls"
	C "github.com/sagernet/sing-sni/constant"
	"github.com/sagernet/sing-sni/log"
	"github.com/sagernet/sing-sni/option"

	"github.com/sagernet/sing/common"
	"github.com/sagernet/sing/common/buf"
	"github.com/sagernet/sing/common/bufio"
	E "github.com/sagernet/sing/common/exceptions"
	N "github.com/sagernet/sing/common/network"
)

type serviceRoute struct {
	patterns []string
	detour   string
}

// Service accepts TCP connections, sniffs the requested server name,
// terminates TLS with the matching credential, and hands the cleartext
// stream to the connection handler. Without a custom handler the stream is
// forwarded to the detour configured for the matched route.
type Service struct {
	ctx           context.Context
	logFactory    log.Factory
	logger        log.ContextLogger
	listener      *listener.Listener
	resolver      Resolver
	credentials   []tls.ServerConfig
	routes        []serviceRoute
	defaultDetour string
	handler       adapter.ConnectionHandler
	sniffTimeout  time.Duration
	lookupTimeout time.Duration
	dialer        net.Dialer
}

func New(ctx context.Context, options option.Options) (*Service, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logFactory, err := log.New(log.Options{
		Options:  common.PtrValueOrDefault(options.Log),
		BaseTime: time.Now(),
	})
	if err != nil {
		return nil, E.Cause(err, "create log factory")
	}
	sniffOptions := common.PtrValueOrDefault(options.Sniff)
	sniffTimeout := time.Duration(sniffOptions.Timeout)
	if sniffTimeout == 0 {
		sniffTimeout = C.SniffTimeout
	}
	lookupTimeout := time.Duration(sniffOptions.LookupTimeout)
	if lookupTimeout == 0 {
		lookupTimeout = C.LookupTimeout
	}
	s := &Service{
		ctx:           ctx,
		logFactory:    logFactory,
		logger:        logFactory.NewLogger("sni"),
		sniffTimeout:  sniffTimeout,
		lookupTimeout: lookupTimeout,
	}
	mapResolver := NewMapResolver()
	for index, credentialOptions := range options.Credentials {
		if credentialOptions.TLS == nil {
			return nil, E.New("credentials[", index, "]: missing tls options")
		}
		serverConfig, err := tls.NewServer(ctx, logFactory.NewLogger("tls"), *credentialOptions.TLS)
		if err != nil {
			return nil, E.Cause(err, "credentials[", index, "]")
		}
		s.credentials = append(s.credentials, serverConfig)
		var patterns []string
		for _, serverName := range credentialOptions.ServerName {
			pattern := strings.ToLower(serverName)
			mapResolver.Add(pattern, serverConfig)
			patterns = append(patterns, pattern)
		}
		isDefault := credentialOptions.Default || len(credentialOptions.ServerName) == 0
		if isDefault {
			mapResolver.SetDefault(serverConfig)
		}
		if credentialOptions.Detour != "" {
			s.routes = append(s.routes, serviceRoute{patterns: patterns, detour: credentialOptions.Detour})
			if isDefault {
				s.defaultDetour = credentialOptions.Detour
			}
		}
	}
	s.resolver = &timeoutResolver{timeout: lookupTimeout, resolver: mapResolver}
	s.listener = listener.New(listener.Options{
		Context:           ctx,
		Logger:            s.logger,
		Listen:            common.PtrValueOrDefault(options.Listen),
		ConnectionHandler: s,
	})
	return s, nil
}

// SetResolver replaces the credential resolver built from the configuration.
// Must be called before Start.
func (s *Service) SetResolver(resolver Resolver) {
	s.resolver = &timeoutResolver{timeout: s.lookupTimeout, resolver: resolver}
}

// SetConnectionHandler overrides the detour forwarder with a custom consumer
// of terminated connections. Must be called before Start.
func (s *Service) SetConnectionHandler(handler adapter.ConnectionHandler) {
	s.handler = handler
}

// ListenAddr is the bound listener address, available after Start.
func (s *Service) ListenAddr() net.Addr {
	return s.listener.TCPListener().Addr()
}

func (s *Service) Start() error {
	for _, credential := range s.credentials {
		err := credential.Start()
		if err != nil {
			return E.Cause(err, "start credential for ", credential.ServerName())
		}
	}
	return s.listener.Start()
}

func (s *Service) Close() error {
	var closers []any
	closers = append(closers, s.listener)
	for _, credential := range s.credentials {
		closers = append(closers, credential)
	}
	closers = append(closers, s.logFactory)
	return common.Close(closers...)
}

// timeoutResolver bounds each lookup with a deadline on its context.
type timeoutResolver struct {
	timeout  time.Duration
	resolver Resolver
}

func (r *timeoutResolver) Lookup(ctx context.Context, serverName string) *Future {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	future := r.resolver.Lookup(ctx, serverName)
	go func() {
		<-future.Done()
		cancel()
	}()
	return future
}

type handoffResult struct {
	credential tls.ServerConfig
	buffer     *buf.Buffer
	err        error
}

type connectionHandoff struct {
	results chan handoffResult
}

func (h *connectionHandoff) NewCredential(credential tls.ServerConfig, buffer *buf.Buffer) {
	h.results <- handoffResult{credential: credential, buffer: buffer}
}

func (h *connectionHandoff) NewError(err error) {
	h.results <- handoffResult{err: err}
}

func (s *Service) NewConnectionEx(ctx context.Context, conn net.Conn, metadata adapter.InboundContext) {
	err := s.processConnection(ctx, conn, metadata)
	if err != nil {
		s.logger.ErrorContext(ctx, E.Cause(err, "process connection from ", metadata.Source))
		conn.Close()
	}
}

func (s *Service) processConnection(ctx context.Context, conn net.Conn, metadata adapter.InboundContext) error {
	handoff := &connectionHandoff{results: make(chan handoffResult, 1)}
	readSignal := make(chan struct{}, 1)
	session := NewSession(SessionOptions{
		Context:  ctx,
		Logger:   s.logger,
		Resolver: s.resolver,
		Handler:  handoff,
		Read: func() {
			select {
			case readSignal <- struct{}{}:
			default:
			}
		},
	})
	defer session.Close()
	conn.SetReadDeadline(time.Now().Add(s.sniffTimeout))
	var data [4096]byte
	for {
		select {
		case result := <-handoff.results:
			return s.finishConnection(ctx, conn, metadata, session, result)
		default:
		}
		session.RequestRead()
		select {
		case <-readSignal:
			// The handoff may race a replayed read demand. Never block on
			// the transport once the outcome is known.
			select {
			case result := <-handoff.results:
				return s.finishConnection(ctx, conn, metadata, session, result)
			default:
			}
			dataLen, err := conn.Read(data[:])
			if err != nil {
				return E.Cause(err, "read client hello")
			}
			err = session.WriteData(data[:dataLen])
			if err != nil {
				return err
			}
		case result := <-handoff.results:
			return s.finishConnection(ctx, conn, metadata, session, result)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) finishConnection(ctx context.Context, conn net.Conn, metadata adapter.InboundContext, session *Session, result handoffResult) error {
	if result.err != nil {
		return result.err
	}
	conn.SetReadDeadline(time.Time{})
	metadata.ServerName = session.ServerName()
	tlsConn, err := tls.ServerHandshake(ctx, bufio.NewCachedConn(conn, result.buffer), result.credential)
	if err != nil {
		return E.Cause(err, "terminate connection")
	}
	if metadata.ServerName != "" {
		s.logger.DebugContext(ctx, "terminated connection for ", metadata.ServerName)
	} else {
		s.logger.DebugContext(ctx, "terminated connection with default credential")
	}
	if s.handler != nil {
		s.handler.NewConnectionEx(ctx, tlsConn, metadata)
		return nil
	}
	return s.forwardConnection(ctx, tlsConn, metadata)
}

func (s *Service) forwardConnection(ctx context.Context, conn net.Conn, metadata adapter.InboundContext) error {
	detour := s.detourFor(metadata.ServerName)
	if detour == "" {
		return E.New("no detour for server name: ", metadata.ServerName)
	}
	upstream, err := s.dialer.DialContext(ctx, N.NetworkTCP, detour)
	if err != nil {
		return E.Cause(err, "dial detour ", detour)
	}
	s.logger.InfoContext(ctx, "forwarding connection to ", detour)
	return bufio.CopyConn(ctx, conn, upstream)
}

func (s *Service) detourFor(serverName string) string {
	for _, route := range s.routes {
		for _, pattern := range route.patterns {
			if matchServerName(pattern, serverName) {
				return route.detour
			}
		}
	}
	return s.defaultDetour
}
