// The main package for the trafficpeek executable.
package main

import (
	"github.com/JakeFAU/trafficpeek/cmd"
)

func main() {
	cmd.Execute()
}
