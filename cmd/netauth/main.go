// netauth runs and exercises the login handshake over TCP.
//
// Usage:
//
//	netauth <command> [options]
//
// Commands:
//
//	serve    Accept logins and echo session traffic back
//	keygen   Generate a server sealing key pair or a user signing key
//	token    Issue a login token for a server
//	connect  Log in to a server and exchange lines with it
//
// Example:
//
//	netauth keygen --out server.json
//	netauth serve --key server.json --auth required --metrics-addr :9100
//	netauth keygen --signing --out user.pem
//	netauth connect --addr 127.0.0.1:1212 --user Alice --signing-key user.pem --encrypt
package main

import (
	"fmt"
	"os"

	"github.com/backkem/netauth/cmd/netauth/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
