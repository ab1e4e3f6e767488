package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tfluna/console"
	"github.com/mklimuk/rangefinder/config"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app := newApp()
	err := app.RunContext(ctx, args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			return exerr.ExitCode()
		}
		slog.Error("unexpected error", "error", err)
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "tfluna"
	app.EnableBashCompletion = true
	app.Version = config.Version()
	app.Usage = "TF-Luna LiDAR cli"
	app.Writer = console.Writer()
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"TFLUNA_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: generic, nanopi, raspi, mcp2221 or sim",
			EnvVars: []string{"TFLUNA_ADAPTER"},
		},
		&cli.StringFlag{
			Name:    "device",
			Usage:   "I2C device for the generic adapter",
			EnvVars: []string{"TFLUNA_DEVICE"},
		},
		&cli.IntFlag{
			Name:    "bus",
			Usage:   "I2C bus number for gobot adapters",
			EnvVars: []string{"TFLUNA_BUS"},
		},
		&cli.IntFlag{
			Name:    "addr",
			Usage:   "sensor address (0x08-0x77)",
			EnvVars: []string{"TFLUNA_ADDR"},
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and bus frame dumps",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	// exit codes are resolved by run
	app.ExitErrHandler = func(ctx *cli.Context, err error) {
		if err != nil {
			console.Errorf("%s", err)
		}
	}
	app.Commands = cli.Commands{
		&readCmd,
		&watchCmd,
		&infoCmd,
		&registersCmd,
		&setCmd,
		&saveCmd,
		&resetCmd,
		&adapterCmd,
	}
	return app
}
