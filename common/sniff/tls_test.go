package sniff_test

import (
	"bytes"
	"crypto/tls"
	"encoding/binary"
	"net"
	"testing"

	C "github.com/sagernet/sing-sni/constant"
	"github.com/sagernet/sing-sni/common/sniff"

	"github.com/sagernet/sing/common/buf"
	"github.com/stretchr/testify/require"
)

type extension struct {
	extensionType uint16
	data          []byte
}

func serverNameExtension(serverNameType byte, serverName string) extension {
	var data bytes.Buffer
	binary.Write(&data, binary.BigEndian, uint16(1+2+len(serverName)))
	data.WriteByte(serverNameType)
	binary.Write(&data, binary.BigEndian, uint16(len(serverName)))
	data.WriteString(serverName)
	return extension{extensionType: 0, data: data.Bytes()}
}

func buildClientHello(extensions ...extension) []byte {
	var extensionsData bytes.Buffer
	for _, ext := range extensions {
		binary.Write(&extensionsData, binary.BigEndian, ext.extensionType)
		binary.Write(&extensionsData, binary.BigEndian, uint16(len(ext.data)))
		extensionsData.Write(ext.data)
	}
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint16(0x0303))
	body.Write(make([]byte, 32))
	body.WriteByte(0)
	binary.Write(&body, binary.BigEndian, uint16(4))
	binary.Write(&body, binary.BigEndian, uint16(0x1301))
	binary.Write(&body, binary.BigEndian, uint16(0x1302))
	body.WriteByte(1)
	body.WriteByte(0)
	binary.Write(&body, binary.BigEndian, uint16(extensionsData.Len()))
	body.Write(extensionsData.Bytes())

	var handshake bytes.Buffer
	handshake.WriteByte(1)
	handshake.Write([]byte{0, byte(body.Len() >> 8), byte(body.Len())})
	handshake.Write(body.Bytes())

	var record bytes.Buffer
	record.WriteByte(C.ContentTypeHandshake)
	binary.Write(&record, binary.BigEndian, uint16(0x0301))
	binary.Write(&record, binary.BigEndian, uint16(handshake.Len()))
	record.Write(handshake.Bytes())
	return record.Bytes()
}

func TestExtractServerName(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "Example.COM"))
	clientHello, err := sniff.ExtractClientHello(payload)
	require.NoError(t, err)
	require.Equal(t, "Example.COM", clientHello.ServerName)
	require.Equal(t, "example.com", sniff.CanonicalServerName(clientHello.ServerName))
}

func TestExtractServerNameAfterOtherExtensions(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(
		extension{extensionType: 0x000a, data: []byte{0x00, 0x02, 0x00, 0x1d}},
		serverNameExtension(0, "sni.example.org"),
	)
	clientHello, err := sniff.ExtractClientHello(payload)
	require.NoError(t, err)
	require.Equal(t, "sni.example.org", clientHello.ServerName)
}

func TestExtractNoServerName(t *testing.T) {
	t.Parallel()
	payload := buildClientHello()
	clientHello, err := sniff.ExtractClientHello(payload)
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractInvalidServerNameType(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(1, "example.com"))
	clientHello, err := sniff.ExtractClientHello(payload)
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractShortBuffer(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "example.com"))
	for length := 0; length < 5; length++ {
		_, err := sniff.ExtractClientHello(payload[:length])
		require.ErrorIs(t, err, sniff.ErrNeedMoreData)
	}
}

func TestExtractFragmentedRecord(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "example.com"))
	for length := 5; length < len(payload); length++ {
		_, err := sniff.ExtractClientHello(payload[:length])
		require.ErrorIs(t, err, sniff.ErrNeedMoreData)
	}
}

func TestExtractNotClientHello(t *testing.T) {
	t.Parallel()
	for _, contentType := range []byte{C.ContentTypeChangeCipherSpec, C.ContentTypeAlert, C.ContentTypeApplicationData} {
		payload := []byte{contentType, 3, 3, 0, 1, 0}
		_, err := sniff.ExtractClientHello(payload)
		require.ErrorIs(t, err, sniff.ErrNotClientHello)
	}
}

func TestExtractNotTLS(t *testing.T) {
	t.Parallel()
	clientHello, err := sniff.ExtractClientHello([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractUnsupportedVersion(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "example.com"))
	payload[1] = 2
	clientHello, err := sniff.ExtractClientHello(payload)
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractEmptyRecord(t *testing.T) {
	t.Parallel()
	clientHello, err := sniff.ExtractClientHello([]byte{C.ContentTypeHandshake, 3, 1, 0, 0})
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractOversizedRecord(t *testing.T) {
	t.Parallel()
	clientHello, err := sniff.ExtractClientHello([]byte{C.ContentTypeHandshake, 3, 1, 0xff, 0xff})
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractMalformedLengths(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "example.com"))
	// cipher suite length pointing past the record end
	payload[44] = 0xff
	payload[45] = 0xff
	clientHello, err := sniff.ExtractClientHello(payload)
	require.NoError(t, err)
	require.Empty(t, clientHello.ServerName)
}

func TestExtractRealClientHello(t *testing.T) {
	t.Parallel()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	go tls.Client(clientConn, &tls.Config{ServerName: "sni.example.org"}).Handshake()
	buffer := buf.NewSize(C.MaxClientHelloLength)
	defer buffer.Release()
	clientHello, err := sniff.PeekClientHello(serverConn, buffer)
	require.NoError(t, err)
	require.Equal(t, "sni.example.org", clientHello.ServerName)
}

func TestPeekClientHello(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "example.com"))
	buffer := buf.NewSize(C.MaxClientHelloLength)
	defer buffer.Release()
	clientHello, err := sniff.PeekClientHello(bytes.NewReader(payload), buffer)
	require.NoError(t, err)
	require.Equal(t, "example.com", clientHello.ServerName)
	require.Equal(t, payload, buffer.Bytes())
}

func TestPeekClientHelloTruncated(t *testing.T) {
	t.Parallel()
	payload := buildClientHello(serverNameExtension(0, "example.com"))
	buffer := buf.NewSize(C.MaxClientHelloLength)
	defer buffer.Release()
	_, err := sniff.PeekClientHello(bytes.NewReader(payload[:len(payload)-1]), buffer)
	require.ErrorIs(t, err, sniff.ErrNeedMoreData)
}
