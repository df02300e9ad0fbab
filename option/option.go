package option

import (
	"bytes"

	"github.com/sagernet/sing/common/json"
	"github.com/sagernet/sing/common/json/badoption"
)

type _Options struct {
	Log         *LogOptions         `json:"log,omitempty"`
	Listen      *ListenOptions      `json:"listen,omitempty"`
	Sniff       *SniffOptions       `json:"sniff,omitempty"`
	Credentials []CredentialOptions `json:"credentials,omitempty"`
}

type Options _Options

func (o *Options) UnmarshalJSON(content []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	return decoder.Decode((*_Options)(o))
}

type LogOptions struct {
	Disabled     bool   `json:"disabled,omitempty"`
	Level        string `json:"level,omitempty"`
	Output       string `json:"output,omitempty"`
	Timestamp    bool   `json:"timestamp,omitempty"`
	DisableColor bool   `json:"-"`
}

type ListenOptions struct {
	Listen               *badoption.Addr    `json:"listen,omitempty"`
	ListenPort           uint16             `json:"listen_port,omitempty"`
	TCPFastOpen          bool               `json:"tcp_fast_open,omitempty"`
	ReuseAddr            bool               `json:"reuse_addr,omitempty"`
	TCPKeepAlive         badoption.Duration `json:"tcp_keep_alive,omitempty"`
	TCPKeepAliveInterval badoption.Duration `json:"tcp_keep_alive_interval,omitempty"`
}

type SniffOptions struct {
	// Timeout bounds the wait for a complete ClientHello record.
	Timeout badoption.Duration `json:"timeout,omitempty"`
	// LookupTimeout bounds a single credential lookup.
	LookupTimeout badoption.Duration `json:"lookup_timeout,omitempty"`
}

// CredentialOptions binds one server credential to the SNI values it serves.
type CredentialOptions struct {
	ServerName badoption.Listable[string] `json:"server_name,omitempty"`
	Default    bool                       `json:"default,omitempty"`
	Detour     string                     `json:"detour,omitempty"`
	TLS        *InboundTLSOptions         `json:"tls,omitempty"`
}
