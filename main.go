// The main package for the contentrelay executable.
package main

import (
	"github.com/JakeFAU/contentrelay/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
