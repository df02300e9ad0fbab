package listener

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/sagernet/sing-sni/adapter"
	"github.com/sagernet/sing-sni/option"

	"github.com/sagernet/sing/common"
	"github.com/sagernet/sing/common/logger"
)

// Listener accepts TCP connections and dispatches each one to the connection
// handler on its own goroutine.
type Listener struct {
	ctx           context.Context
	logger        logger.ContextLogger
	listenOptions option.ListenOptions
	connHandler   adapter.ConnectionHandler

	tcpListener net.Listener
	shutdown    atomic.Bool
}

type Options struct {
	Context           context.Context
	Logger            logger.ContextLogger
	Listen            option.ListenOptions
	ConnectionHandler adapter.ConnectionHandler
}

func New(options Options) *Listener {
	return &Listener{
		ctx:           options.Context,
		logger:        options.Logger,
		listenOptions: options.Listen,
		connHandler:   options.ConnectionHandler,
	}
}

func (l *Listener) Start() error {
	_, err := l.ListenTCP()
	if err != nil {
		return err
	}
	go l.loopTCPIn()
	return nil
}

func (l *Listener) Close() error {
	l.shutdown.Store(true)
	return common.Close(l.tcpListener)
}

func (l *Listener) TCPListener() net.Listener {
	return l.tcpListener
}
