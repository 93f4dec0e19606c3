package main

import (
	"fmt"
	"os"

	"github.com/andresuchdata/autopo-forecast/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("forecast failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "forecast",
		Usage: "Forecast monthly item sales from a sales pivot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (console or json)",
				Value:   "console",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(c.String("log-level"), c.String("log-format"))
			return nil
		},
		Commands: []*cli.Command{
			pivotCommand(),
			predictCommand(),
			etsCommand(),
			scrambleCommand(),
			fetchCommand(),
		},
	}
}
