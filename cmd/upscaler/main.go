// Command upscaler is the CLI harness for the upscale engine: it lists and
// fetches models, runs batch jobs and shows past results.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"go_upscaler/core"
	"go_upscaler/logging"
	"go_upscaler/registry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env next to the binary overrides nothing already in the
	// environment; absence is fine.
	_ = godotenv.Load()

	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}

	log, err := logging.NewLogger(cfg.DevMode, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer log.Sync()

	reg, err := registry.Load(cfg.ModelsFile)
	if err != nil {
		return err
	}

	app := &app{cfg: cfg, log: log, registry: reg}
	return newRootCommand(app).Execute()
}
