package main

import (
	"os"

	"github.com/ariel-frischer/proctest/internal/cli"
	"github.com/ariel-frischer/proctest/internal/demo"
	"github.com/ariel-frischer/proctest/internal/registry"
)

func main() {
	registry.Default.Use(demo.Module{})
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
