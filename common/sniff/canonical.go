package sniff

import (
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalServerName converts a sniffed server name to its ASCII
// compatible encoding and lowercases it. The transform is idempotent.
// A name that cannot be mapped degrades to the lowercased input: credential
// selection should keep working even for odd client input.
func CanonicalServerName(serverName string) string {
	if serverName == "" {
		return ""
	}
	asciiName, err := idna.ToASCII(serverName)
	if err != nil {
		asciiName = serverName
	}
	return strings.ToLower(asciiName)
}
