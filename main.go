// The main package for the event-ingestor executable.
package main

import (
	"github.com/JakeFAU/event-ingestor/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
