package main

import (
	"fmt"
	"os"

	"github.com/Tenemo/bob/cmd"
	"github.com/Tenemo/bob/internal/buildinfo"
	"github.com/Tenemo/bob/internal/conf"
	"github.com/Tenemo/bob/internal/logging"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	logging.Init()

	settings := &conf.Settings{}
	build := buildinfo.NewContext(version, buildDate)
	if err := cmd.RootCommand(settings, build).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
