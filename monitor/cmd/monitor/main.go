package main

import (
	"os"

	"github.com/cybermonitor/monitor-stack/monitor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
