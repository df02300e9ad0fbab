package tls

import (
	"context"
	"crypto/tls"
	"net"

	E "github.com/sagernet/sing/common/exceptions"

	"github.com/sagernet/sing-sni/adapter"
)

type (
	STDConfig       = tls.Config
	STDConn         = tls.Conn
	ConnectionState = tls.ConnectionState
)

type Config interface {
	ServerName() string
	SetServerName(serverName string)
	NextProtos() []string
	SetNextProtos(nextProto []string)
	Config() (*STDConfig, error)
	Clone() Config
}

// ServerConfig is the credential selected for a sniffed server name: a TLS
// server identity plus the lifecycle of whatever keeps it fresh (file
// watcher, ACME manager).
type ServerConfig interface {
	Config
	adapter.Service
	Server(conn net.Conn) (Conn, error)
}

type Conn interface {
	net.Conn
	HandshakeContext(ctx context.Context) error
	ConnectionState() ConnectionState
}

func ParseTLSVersion(version string) (uint16, error) {
	switch version {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, E.New("unknown tls version: ", version)
	}
}
