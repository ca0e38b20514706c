package main

import (
	"os"

	"github.com/moolen/jiotty/cmd/jiotty/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
