// Command katapayadi transcodes text with the Katapayadi system and serves
// the transcoder over the RPC transports.
package main

import (
	"os"

	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/transport/memory"
)

func main() {
	a := &app{store: &config.Store, memory: memory.New()}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}
