package main

import (
	"os"

	"github.com/robcohen/peervault/pkg/log"
)

// initLoggingValues wires the --log-level/--log-json persistent flags into
// pkg/log's global logger, the same split the teacher's main.go does before
// any subcommand's RunE touches the logger.
func initLoggingValues(level string, jsonOutput bool) {
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
		Output:     os.Stdout,
	})
}
