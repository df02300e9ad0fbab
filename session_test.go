package sni_test

import (
	"context"
	stdtls "crypto/tls"
	"net"
	"sync/atomic"
	"testing"
	"time"

	sni "github.com/sagernet/sing-sni"
	"github.com/sagernet/sing-sni/common/tls"
	"github.com/sagernet/sing-sni/log"
	"github.com/sagernet/sing-sni/option"

	"github.com/sagernet/sing/common/buf"
	"github.com/sagernet/sing/common/json/badoption"

	"github.com/stretchr/testify/require"
)

func testCredential(t *testing.T, serverName string) tls.ServerConfig {
	t.Helper()
	privateKeyPem, publicKeyPem, err := tls.GenerateCertificate(time.Now, serverName, time.Now().Add(time.Hour))
	require.NoError(t, err)
	serverConfig, err := tls.NewServer(context.Background(), log.NewNOPFactory().Logger(), option.InboundTLSOptions{
		ServerName:  serverName,
		Certificate: badoption.Listable[string]{string(publicKeyPem)},
		Key:         badoption.Listable[string]{string(privateKeyPem)},
	})
	require.NoError(t, err)
	return serverConfig
}

func clientHelloPayload(t *testing.T, serverName string) []byte {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	go func() {
		client := stdtls.Client(clientConn, &stdtls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: true,
		})
		client.Handshake()
	}()
	payload := make([]byte, 16384)
	serverConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	payloadLen, err := serverConn.Read(payload)
	require.NoError(t, err)
	return payload[:payloadLen]
}

type sessionRecorder struct {
	credentials chan tls.ServerConfig
	buffers     chan *buf.Buffer
	errors      chan error
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{
		credentials: make(chan tls.ServerConfig, 1),
		buffers:     make(chan *buf.Buffer, 1),
		errors:      make(chan error, 1),
	}
}

func (h *sessionRecorder) NewCredential(credential tls.ServerConfig, buffer *buf.Buffer) {
	h.credentials <- credential
	h.buffers <- buffer
}

func (h *sessionRecorder) NewError(err error) {
	h.errors <- err
}

type futureResolver struct {
	future      *sni.Future
	serverNames chan string
}

func newFutureResolver() *futureResolver {
	return &futureResolver{
		future:      sni.NewFuture(),
		serverNames: make(chan string, 1),
	}
}

func (r *futureResolver) Lookup(ctx context.Context, serverName string) *sni.Future {
	r.serverNames <- serverName
	return r.future
}

func TestSessionSyncLookup(t *testing.T) {
	t.Parallel()
	credential := testCredential(t, "example.org")
	recorder := newSessionRecorder()
	var readCount atomic.Int32
	session := sni.NewSession(sni.SessionOptions{
		Context: context.Background(),
		Resolver: sni.ResolverFunc(func(ctx context.Context, serverName string) (tls.ServerConfig, error) {
			require.Equal(t, "example.org", serverName)
			return credential, nil
		}),
		Handler: recorder,
		Read: func() {
			readCount.Add(1)
		},
	})
	defer session.Close()
	session.RequestRead()
	require.Equal(t, int32(1), readCount.Load())
	payload := clientHelloPayload(t, "example.org")
	require.NoError(t, session.WriteData(payload))
	require.Equal(t, sni.StateHandedOff, session.State())
	require.Equal(t, "example.org", session.ServerName())
	require.Equal(t, credential, <-recorder.credentials)
	buffer := <-recorder.buffers
	require.Equal(t, payload, buffer.Bytes())
	buffer.Release()
	require.Equal(t, int32(1), readCount.Load())
}

func TestSessionAsyncLookup(t *testing.T) {
	t.Parallel()
	credential := testCredential(t, "example.org")
	recorder := newSessionRecorder()
	resolver := newFutureResolver()
	var readCount atomic.Int32
	session := sni.NewSession(sni.SessionOptions{
		Context:  context.Background(),
		Resolver: resolver,
		Handler:  recorder,
		Read: func() {
			readCount.Add(1)
		},
	})
	defer session.Close()
	payload := clientHelloPayload(t, "example.org")
	require.NoError(t, session.WriteData(payload))
	require.Equal(t, sni.StateAwaitingLookup, session.State())
	require.Equal(t, "example.org", <-resolver.serverNames)

	session.RequestRead()
	session.RequestRead()
	require.Equal(t, int32(0), readCount.Load())

	resolver.future.Resolve(credential, nil)
	require.Equal(t, credential, <-recorder.credentials)
	buffer := <-recorder.buffers
	require.Equal(t, payload, buffer.Bytes())
	buffer.Release()
	require.Eventually(t, func() bool {
		return readCount.Load() == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, sni.StateHandedOff, session.State())
}

func TestSessionAsyncLookupFailure(t *testing.T) {
	t.Parallel()
	recorder := newSessionRecorder()
	resolver := newFutureResolver()
	var readCount atomic.Int32
	session := sni.NewSession(sni.SessionOptions{
		Context:  context.Background(),
		Resolver: resolver,
		Handler:  recorder,
		Read: func() {
			readCount.Add(1)
		},
	})
	defer session.Close()
	require.NoError(t, session.WriteData(clientHelloPayload(t, "missing.example.org")))
	session.RequestRead()
	resolver.future.Resolve(nil, context.DeadlineExceeded)
	require.ErrorIs(t, <-recorder.errors, context.DeadlineExceeded)
	require.Eventually(t, func() bool {
		return readCount.Load() == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, sni.StateSniffing, session.State())
}

func TestSessionCloseOrphansLookup(t *testing.T) {
	t.Parallel()
	recorder := newSessionRecorder()
	resolver := newFutureResolver()
	session := sni.NewSession(sni.SessionOptions{
		Context:  context.Background(),
		Resolver: resolver,
		Handler:  recorder,
		Read:     func() {},
	})
	require.NoError(t, session.WriteData(clientHelloPayload(t, "example.org")))
	require.NoError(t, session.Close())
	resolver.future.Resolve(testCredential(t, "example.org"), nil)
	select {
	case <-recorder.credentials:
		t.Fatal("credential delivered after close")
	case err := <-recorder.errors:
		t.Fatal("error delivered after close: ", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionNoServerName(t *testing.T) {
	t.Parallel()
	credential := testCredential(t, "fallback.example.org")
	recorder := newSessionRecorder()
	session := sni.NewSession(sni.SessionOptions{
		Context: context.Background(),
		Resolver: sni.ResolverFunc(func(ctx context.Context, serverName string) (tls.ServerConfig, error) {
			require.Empty(t, serverName)
			return credential, nil
		}),
		Handler: recorder,
		Read:    func() {},
	})
	defer session.Close()
	require.NoError(t, session.WriteData(clientHelloPayload(t, "")))
	require.Equal(t, credential, <-recorder.credentials)
	buffer := <-recorder.buffers
	buffer.Release()
	require.Empty(t, session.ServerName())
}

func TestSessionNotTLS(t *testing.T) {
	t.Parallel()
	credential := testCredential(t, "fallback.example.org")
	recorder := newSessionRecorder()
	session := sni.NewSession(sni.SessionOptions{
		Context: context.Background(),
		Resolver: sni.ResolverFunc(func(ctx context.Context, serverName string) (tls.ServerConfig, error) {
			require.Empty(t, serverName)
			return credential, nil
		}),
		Handler: recorder,
		Read:    func() {},
	})
	defer session.Close()
	payload := []byte("GET / HTTP/1.1\r\nHost: example.org\r\n\r\n")
	require.NoError(t, session.WriteData(payload))
	require.Equal(t, credential, <-recorder.credentials)
	buffer := <-recorder.buffers
	require.Equal(t, payload, buffer.Bytes())
	buffer.Release()
}

func TestSessionSkipsNonHandshakeRecords(t *testing.T) {
	t.Parallel()
	resolver := newFutureResolver()
	session := sni.NewSession(sni.SessionOptions{
		Context:  context.Background(),
		Resolver: resolver,
		Handler:  newSessionRecorder(),
		Read:     func() {},
	})
	defer session.Close()
	require.NoError(t, session.WriteData([]byte{20, 3, 3, 0, 1, 1}))
	require.Equal(t, sni.StateSniffing, session.State())
	select {
	case serverName := <-resolver.serverNames:
		t.Fatal("unexpected lookup for ", serverName)
	default:
	}
}

func TestSessionFragmentedWrites(t *testing.T) {
	t.Parallel()
	credential := testCredential(t, "example.org")
	recorder := newSessionRecorder()
	session := sni.NewSession(sni.SessionOptions{
		Context: context.Background(),
		Resolver: sni.ResolverFunc(func(ctx context.Context, serverName string) (tls.ServerConfig, error) {
			return credential, nil
		}),
		Handler: recorder,
		Read:    func() {},
	})
	defer session.Close()
	payload := clientHelloPayload(t, "example.org")
	for index := 0; index < len(payload); index += 10 {
		end := index + 10
		if end > len(payload) {
			end = len(payload)
		}
		require.NoError(t, session.WriteData(payload[index:end]))
	}
	require.Equal(t, "example.org", session.ServerName())
	buffer := <-recorder.buffers
	require.Equal(t, payload, buffer.Bytes())
	buffer.Release()
}
