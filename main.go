// The main package for the fleetscore executable.
package main

import (
	"github.com/greenproof/fleetscore/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
