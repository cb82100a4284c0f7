// Command snapharness runs task definitions against a snap daemon and
// reports which of them completed their lifecycle.
package main

import (
	"os"

	"github.com/snap-telemetry/snapharness/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
