// ./main.go
package main

import (
	"github.com/xkilldash9x/flowcheck/cmd"
)

// main is the entry point for the flowcheck CLI.
func main() {
	cmd.Execute()
}
