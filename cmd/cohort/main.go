package main

import (
	"os"

	"github.com/cohort-run/cohort/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
