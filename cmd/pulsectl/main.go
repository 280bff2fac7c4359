package main

import (
	"os"

	"github.com/clinicore/pulsehook/cmd/pulsectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
