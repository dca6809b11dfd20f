// The main package for the dealposter executable.
package main

import (
	"github.com/clicou/dealposter/cmd"
)

func main() {
	cmd.Execute()
}
