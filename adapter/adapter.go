package adapter

import (
	"context"
	"net"

	M "github.com/sagernet/sing/common/metadata"
)

type Service interface {
	Start() error
	Close() error
}

// InboundContext carries per-connection metadata from the sniffing stage to
// the handler that consumes the terminated stream.
type InboundContext struct {
	Source     M.Socksaddr
	ServerName string
}

type ConnectionHandler interface {
	NewConnectionEx(ctx context.Context, conn net.Conn, metadata InboundContext)
}
