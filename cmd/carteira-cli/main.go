package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"carteira/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	// Keep the terminal for command output; only warnings and errors are logged.
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "warn"
	}
	logger := cli.SetupLogger(logLevel)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	adviceSvc, err := cli.NewAdviceService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize advice service", "error", err)
		os.Exit(1)
	}

	app := cli.NewApp(cfg, logger, adviceSvc)
	flag.StringVar(&app.Email, "email", "", "Account email. Defaults to $"+cli.EnvEmail+".")
	flag.StringVar(&app.Password, "password", "", "Account password. Defaults to $"+cli.EnvPassword+".")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cli.Register(commander, app)

	flag.Parse()
	os.Exit(int(commander.Execute(ctx)))
}
