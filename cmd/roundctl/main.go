// Command roundctl is a local demonstration harness for the assignment
// engine: it builds a Scheduler from command-line flags, runs a single
// scheduling round against synthetic offers and task requests, and
// prints the result. There is no persistence or RPC layer; each
// invocation constructs fresh in-memory state.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newCLI().Execute(); err != nil {
		log.WithError(err).Error("roundctl failed")
		os.Exit(1)
	}
}
