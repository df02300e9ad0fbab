package constant

import "time"

const (
	TCPTimeout           = 5 * time.Second
	SniffTimeout         = 30 * time.Second
	LookupTimeout        = 1 * time.Minute
	TCPKeepAliveInitial  = 10 * time.Minute
	TCPKeepAliveInterval = 75 * time.Second
)
