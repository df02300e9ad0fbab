package constant

const (
	ContentTypeChangeCipherSpec = 20
	ContentTypeAlert            = 21
	ContentTypeHandshake        = 22
	ContentTypeApplicationData  = 23
)

// MaxClientHelloLength caps the record length the sniffer will wait for:
// the maximum TLS plaintext record plus the 5-byte record header. A peer
// declaring more than this is not sending a ClientHello we can use.
const MaxClientHelloLength = 16384 + 5
