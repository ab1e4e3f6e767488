package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tfluna/console"
	"github.com/mklimuk/rangefinder/lidar"
)

var saveFlag = &cli.BoolFlag{
	Name:  "save",
	Usage: "persist the setting to flash",
}

var setCmd = cli.Command{
	Name:  "set",
	Usage: "change device settings",
	Subcommands: cli.Commands{
		&setAddrCmd,
		&setFPSCmd,
		&setModeCmd,
		&setEnableCmd,
		&setDisableCmd,
		&setLowPowerCmd,
	},
}

var setAddrCmd = cli.Command{
	Name:      "addr",
	Usage:     "change the I2C address; the setting is saved and the device reset",
	ArgsUsage: "<address>",
	Action: func(c *cli.Context) error {
		addr, err := parseArg(c, 0, 8)
		if err != nil {
			return err
		}
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			old := s.Address()
			if err := s.SetI2CAddr(ctx, byte(addr)); err != nil {
				return console.ExitErr("set address", err)
			}
			if err := s.SaveSettings(ctx); err != nil {
				return console.ExitErr("save settings", err)
			}
			if err := s.SoftReset(ctx); err != nil {
				return console.ExitErr("soft reset", err)
			}
			console.PInfof(console.PictoPin, "address changed from %s to %s",
				console.White(fmt.Sprintf("%#x", old)), console.Green(fmt.Sprintf("%#x", s.Address())))
			return nil
		})
	},
}

var setFPSCmd = cli.Command{
	Name:      "fps",
	Usage:     "set the frame rate (1-250)",
	ArgsUsage: "<fps>",
	Flags:     []cli.Flag{saveFlag},
	Action: func(c *cli.Context) error {
		fps, err := parseArg(c, 0, 16)
		if err != nil {
			return err
		}
		return applySetting(c, "set frame rate", func(ctx context.Context, s *lidar.TFLuna) error {
			return s.SetFrameRate(ctx, uint16(fps))
		})
	},
}

var setModeCmd = cli.Command{
	Name:      "mode",
	Usage:     "select continuous or trigger mode",
	ArgsUsage: "continuous|trigger",
	Flags:     []cli.Flag{saveFlag},
	Action: func(c *cli.Context) error {
		switch c.Args().First() {
		case lidar.ModeContinuous.String():
			return applySetting(c, "set mode", func(ctx context.Context, s *lidar.TFLuna) error {
				return s.SetModeCont(ctx)
			})
		case lidar.ModeTrigger.String():
			return applySetting(c, "set mode", func(ctx context.Context, s *lidar.TFLuna) error {
				return s.SetModeTrig(ctx)
			})
		}
		return console.Exit(console.CodeInvalidParameter, "unknown mode %q", c.Args().First())
	},
}

var setEnableCmd = cli.Command{
	Name:  "enable",
	Usage: "turn the light source on",
	Flags: []cli.Flag{saveFlag},
	Action: func(c *cli.Context) error {
		return applySetting(c, "enable", func(ctx context.Context, s *lidar.TFLuna) error {
			return s.SetEnable(ctx)
		})
	},
}

var setDisableCmd = cli.Command{
	Name:  "disable",
	Usage: "turn the light source off",
	Flags: []cli.Flag{saveFlag},
	Action: func(c *cli.Context) error {
		return applySetting(c, "disable", func(ctx context.Context, s *lidar.TFLuna) error {
			return s.SetDisable(ctx)
		})
	},
}

var setLowPowerCmd = cli.Command{
	Name:      "lowpower",
	Usage:     "switch low power mode",
	ArgsUsage: "on|off",
	Flags:     []cli.Flag{saveFlag},
	Action: func(c *cli.Context) error {
		var on bool
		switch c.Args().First() {
		case "on":
			on = true
		case "off":
		default:
			return console.Exit(console.CodeInvalidParameter, "expected on or off, got %q", c.Args().First())
		}
		return applySetting(c, "set low power", func(ctx context.Context, s *lidar.TFLuna) error {
			return s.SetLowPower(ctx, on)
		})
	},
}

// applySetting runs fn in a session and saves the settings when --save is set.
func applySetting(c *cli.Context, what string, fn func(ctx context.Context, s *lidar.TFLuna) error) error {
	return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
		if err := fn(ctx, s); err != nil {
			return console.ExitErr(what, err)
		}
		if c.Bool("save") {
			if err := s.SaveSettings(ctx); err != nil {
				return console.ExitErr("save settings", err)
			}
		}
		console.Infof("%s: %s", what, console.Green(s.LastStatus()))
		return nil
	})
}

func parseArg(c *cli.Context, index int, bits int) (uint64, error) {
	arg := c.Args().Get(index)
	if arg == "" {
		return 0, console.Exit(console.CodeInvalidParameter, "missing argument, usage: %s %s", c.Command.Name, c.Command.ArgsUsage)
	}
	v, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, console.Exit(console.CodeInvalidParameter, "invalid argument %q: %s", arg, console.Red(err))
	}
	return v, nil
}

var saveCmd = cli.Command{
	Name:  "save",
	Usage: "persist the current settings to flash",
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			if err := s.SaveSettings(ctx); err != nil {
				return console.ExitErr("save settings", err)
			}
			console.Infof("settings saved")
			return nil
		})
	},
}

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "reboot the device",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "hard",
			Usage: "restore factory settings",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		hard := c.Bool("hard")
		if hard && !c.Bool("yes") {
			ok, err := console.Confirm("restore factory settings (address, mode and frame rate)?")
			if err != nil {
				return console.Exit(console.CodeError, "prompt error: %s", console.Red(err))
			}
			if !ok {
				console.Infof("aborted")
				return nil
			}
		}
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			if hard {
				if err := s.HardReset(ctx); err != nil {
					return console.ExitErr("hard reset", err)
				}
			}
			if err := s.SoftReset(ctx); err != nil {
				return console.ExitErr("soft reset", err)
			}
			console.PInfof(console.PictoKey, "device reset, address %s mode %s",
				console.White(fmt.Sprintf("%#x", s.Address())), console.White(s.Mode()))
			return nil
		})
	},
}
