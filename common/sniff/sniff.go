package sniff

import (
	"io"

	E "github.com/sagernet/sing/common/exceptions"

	"github.com/sagernet/sing/common/buf"
)

var (
	ErrNeedMoreData   = E.New("need more data")
	ErrNotClientHello = E.New("not a client hello record")
)

// PeekClientHello reads from reader into buffer until SNI detection is
// final, then returns the outcome. The buffer keeps every byte read, so the
// caller can replay the stream unchanged to a TLS server afterwards.
func PeekClientHello(reader io.Reader, buffer *buf.Buffer) (*ClientHello, error) {
	for {
		clientHello, err := ExtractClientHello(buffer.Bytes())
		if err == nil {
			return clientHello, nil
		}
		if buffer.IsFull() {
			return nil, E.Cause(ErrNeedMoreData, "buffer full")
		}
		var data [4096]byte
		n, readErr := reader.Read(data[:min(len(data), buffer.FreeLen())])
		if n > 0 {
			buffer.Write(data[:n])
		}
		if readErr != nil {
			return nil, E.Cause1(err, readErr)
		}
	}
}
