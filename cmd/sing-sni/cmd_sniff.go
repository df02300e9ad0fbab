package main

import (
	"os"

	"github.com/sagernet/sing-sni/common/sniff"
	C "github.com/sagernet/sing-sni/constant"
	"github.com/sagernet/sing-sni/log"

	"github.com/sagernet/sing/common/buf"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/spf13/cobra"
)

var commandSniff = &cobra.Command{
	Use:   "sniff",
	Short: "Extract the server name from a client hello read from stdin",
	Run: func(cmd *cobra.Command, args []string) {
		err := sniffStdin()
		if err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	mainCommand.AddCommand(commandSniff)
}

func sniffStdin() error {
	buffer := buf.NewSize(C.MaxClientHelloLength)
	defer buffer.Release()
	clientHello, err := sniff.PeekClientHello(os.Stdin, buffer)
	if err != nil {
		return err
	}
	serverName := sniff.CanonicalServerName(clientHello.ServerName)
	if serverName == "" {
		return E.New("no server name found")
	}
	os.Stdout.WriteString(serverName + "\n")
	return nil
}
