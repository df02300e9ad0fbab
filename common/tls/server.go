package tls

import (
	"context"
	"net"

	C "github.com/sagernet/sing-sni/constant"
	"github.com/sagernet/sing-sni/log"
	"github.com/sagernet/sing-sni/option"
)

func NewServer(ctx context.Context, logger log.ContextLogger, options option.InboundTLSOptions) (ServerConfig, error) {
	return NewSTDServer(ctx, logger, options)
}

// ServerHandshake runs the termination handshake over conn, which must
// replay the sniffed bytes from offset zero.
func ServerHandshake(ctx context.Context, conn net.Conn, config ServerConfig) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, C.TCPTimeout)
	defer cancel()
	tlsConn, err := config.Server(conn)
	if err != nil {
		return nil, err
	}
	err = tlsConn.HandshakeContext(ctx)
	if err != nil {
		return nil, err
	}
	return tlsConn, nil
}
