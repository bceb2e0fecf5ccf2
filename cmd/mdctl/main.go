package main

import (
	"os"

	"github.com/dgnsrekt/anomaly_dashboard/cmd/mdctl/cmd"
)

func main() {
	if err := cmd.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
