package sniff

import (
	"encoding/binary"

	C "github.com/sagernet/sing-sni/constant"
)

// ClientHello is the final outcome of SNI detection on a connection.
// ServerName is empty when the peer sent no usable server_name extension,
// when the stream is not TLS at all, or when the record is malformed.
type ClientHello struct {
	ServerName string
}

// ExtractClientHello inspects the unconsumed prefix of a stream without
// advancing it. A nil error means detection is final and no further attempt
// will succeed; ErrNeedMoreData and ErrNotClientHello mean the caller should
// retry once more bytes or the next record arrived.
func ExtractClientHello(payload []byte) (*ClientHello, error) {
	if len(payload) < recordHeaderLen {
		return nil, ErrNeedMoreData
	}
	switch payload[0] {
	case C.ContentTypeChangeCipherSpec, C.ContentTypeAlert, C.ContentTypeApplicationData:
		// TLS, but not the start of a handshake. Another record may follow.
		return nil, ErrNotClientHello
	case C.ContentTypeHandshake:
	default:
		// not TLS or SSLv3, do not try SNI
		return &ClientHello{}, nil
	}
	if payload[1] != 3 {
		return &ClientHello{}, nil
	}
	recordLength := int(binary.BigEndian.Uint16(payload[3:recordHeaderLen])) + recordHeaderLen
	if recordLength > C.MaxClientHelloLength {
		return &ClientHello{}, nil
	}
	if len(payload) < recordLength {
		return nil, ErrNeedMoreData
	}
	return &ClientHello{ServerName: scanServerName(payload[:recordLength])}, nil
}

const (
	recordHeaderLen = 5

	// record header, handshake type and length, client version, random
	clientHelloSessionOffset = recordHeaderLen + 4 + 2 + 32

	extensionServerName = 0
	serverNameTypeHost  = 0
)

// scanServerName walks the ClientHello body for the server_name extension.
// Any malformed length degrades to "no server name": a bad ClientHello is
// still a connection worth serving with the default credential.
func scanServerName(record []byte) string {
	offset := clientHelloSessionOffset
	if offset >= len(record) {
		return ""
	}
	offset += 1 + int(record[offset])
	if offset+2 > len(record) {
		return ""
	}
	offset += 2 + int(binary.BigEndian.Uint16(record[offset:]))
	if offset >= len(record) {
		return ""
	}
	offset += 1 + int(record[offset])
	if offset+2 > len(record) {
		return ""
	}
	extensionsLimit := offset + 2 + int(binary.BigEndian.Uint16(record[offset:]))
	offset += 2
	for offset < extensionsLimit {
		if offset+4 > len(record) {
			return ""
		}
		extensionType := binary.BigEndian.Uint16(record[offset:])
		extensionLength := int(binary.BigEndian.Uint16(record[offset+2:]))
		offset += 4
		if extensionType == extensionServerName {
			// skip the server_name_list length, read the first entry
			if offset+5 > len(record) {
				return ""
			}
			if record[offset+2] != serverNameTypeHost {
				// invalid enum value
				return ""
			}
			serverNameLength := int(binary.BigEndian.Uint16(record[offset+3:]))
			if offset+5+serverNameLength > len(record) {
				return ""
			}
			return string(record[offset+5 : offset+5+serverNameLength])
		}
		offset += extensionLength
	}
	return ""
}
