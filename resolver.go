package sni

import (
	"context"
	"strings"
	"sync"

	"github.com/sagernet/sing-sni/common/tls"

	E "github.com/sagernet/sing/common/exceptions"
)

// Future is the completion handle of a credential lookup. Done is closed
// exactly once, when the result is available. A future that is already done
// when Lookup returns is treated as a synchronous resolution.
type Future struct {
	once       sync.Once
	done       chan struct{}
	credential tls.ServerConfig
	err        error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func NewResolvedFuture(credential tls.ServerConfig, err error) *Future {
	future := NewFuture()
	future.Resolve(credential, err)
	return future
}

// Resolve publishes the lookup result. Calls after the first are ignored.
func (f *Future) Resolve(credential tls.ServerConfig, err error) {
	f.once.Do(func() {
		f.credential = credential
		f.err = err
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result is only valid once Done is closed.
func (f *Future) Result() (tls.ServerConfig, error) {
	return f.credential, f.err
}

// Resolver maps a canonical server name, possibly empty, to a server
// credential. Lookup is invoked from the session's serialized context and
// must not reenter the session.
type Resolver interface {
	Lookup(ctx context.Context, serverName string) *Future
}

// ResolverFunc adapts a synchronous lookup. Sessions take the fast path for
// it and never defer reads.
type ResolverFunc func(ctx context.Context, serverName string) (tls.ServerConfig, error)

func (f ResolverFunc) Lookup(ctx context.Context, serverName string) *Future {
	return NewResolvedFuture(f(ctx, serverName))
}

// GoResolver runs a blocking lookup on its own goroutine and resolves the
// future when it returns.
type GoResolver func(ctx context.Context, serverName string) (tls.ServerConfig, error)

func (f GoResolver) Lookup(ctx context.Context, serverName string) *Future {
	future := NewFuture()
	go func() {
		future.Resolve(f(ctx, serverName))
	}()
	return future
}

var _ Resolver = (*MapResolver)(nil)

// MapResolver selects credentials by server name: exact match first, then
// single-label wildcard patterns in insertion order, then the default
// credential. A lookup that matches nothing fails.
type MapResolver struct {
	access            sync.RWMutex
	exact             map[string]tls.ServerConfig
	wildcard          []wildcardEntry
	defaultCredential tls.ServerConfig
}

type wildcardEntry struct {
	pattern    string
	credential tls.ServerConfig
}

func NewMapResolver() *MapResolver {
	return &MapResolver{
		exact: make(map[string]tls.ServerConfig),
	}
}

// Add registers credential for pattern. A pattern starting with "*." matches
// exactly one additional label. Patterns are canonicalized the same way
// sniffed names are.
func (r *MapResolver) Add(pattern string, credential tls.ServerConfig) {
	r.access.Lock()
	defer r.access.Unlock()
	if strings.HasPrefix(pattern, "*") {
		r.wildcard = append(r.wildcard, wildcardEntry{
			pattern:    strings.ToLower(pattern),
			credential: credential,
		})
	} else {
		r.exact[strings.ToLower(pattern)] = credential
	}
}

func (r *MapResolver) SetDefault(credential tls.ServerConfig) {
	r.access.Lock()
	defer r.access.Unlock()
	r.defaultCredential = credential
}

func (r *MapResolver) Match(serverName string) (tls.ServerConfig, bool) {
	r.access.RLock()
	defer r.access.RUnlock()
	if credential, loaded := r.exact[serverName]; loaded {
		return credential, true
	}
	for _, entry := range r.wildcard {
		if matchServerName(entry.pattern, serverName) {
			return entry.credential, true
		}
	}
	if r.defaultCredential != nil {
		return r.defaultCredential, true
	}
	return nil, false
}

// matchServerName reports whether serverName matches pattern. A "*." prefix
// matches exactly one additional label.
func matchServerName(pattern string, serverName string) bool {
	if suffix, isWildcard := strings.CutPrefix(pattern, "*"); isWildcard {
		label, matched := strings.CutSuffix(serverName, suffix)
		return matched && label != "" && !strings.Contains(label, ".")
	}
	return pattern == serverName
}

func (r *MapResolver) Lookup(ctx context.Context, serverName string) *Future {
	credential, matched := r.Match(serverName)
	if !matched {
		if serverName == "" {
			return NewResolvedFuture(nil, E.New("no default credential"))
		}
		return NewResolvedFuture(nil, E.New("no credential for server name: ", serverName))
	}
	return NewResolvedFuture(credential, nil)
}
