// ./main.go
package main

import (
	"github.com/lablnet/stepwright/cmd"
)

// main is the entry point for the StepWright CLI.
func main() {
	cmd.Execute()
}
