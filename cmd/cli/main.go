// latlog - Node-to-node network latency and loss analysis
//
// latlog pairs outgoing and incoming ICMP probe samples from node logs and
// reports latency histograms, packet loss and network quality.
package main

import (
	"os"

	"github.com/ccollicutt/latlog/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
