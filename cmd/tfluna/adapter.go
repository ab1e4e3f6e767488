package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/adapter"
	"github.com/mklimuk/rangefinder/cmd/tfluna/console"
)

var adapterCmd = cli.Command{
	Name:  "adapter",
	Usage: "USB adapter diagnostics",
	Subcommands: cli.Commands{
		&adapterStatusCmd,
		&adapterReleaseCmd,
		&adapterLsCmd,
		&adapterDetectCmd,
	},
}

var adapterIndexFlag = &cli.IntFlag{
	Name:  "index",
	Value: -1,
	Usage: "adapter index when several are connected",
}

var adapterStatusCmd = cli.Command{
	Name:  "status",
	Usage: "print MCP2221 I2C engine status",
	Flags: []cli.Flag{adapterIndexFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
		status, err := a.Status(commandContext(c))
		if err != nil {
			return console.Exit(console.CodeError, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var adapterReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the pending MCP2221 transfer and release the bus",
	Flags: []cli.Flag{adapterIndexFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
		status, err := a.ReleaseBus(commandContext(c))
		if err != nil {
			return console.Exit(console.CodeError, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var adapterLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list HID devices",
	Action: func(c *cli.Context) error {
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Path", "Serial", "Vendor", "Product ID", "Manufacturer", "Product"})
		for _, dev := range hid.Enumerate(0, 0) {
			t.AppendRow(table.Row{dev.Path, dev.Serial, fmt.Sprintf("%#x", dev.VendorID), fmt.Sprintf("%#x", dev.ProductID), dev.Manufacturer, dev.Product})
		}
		console.Print(t.Render())
		return nil
	},
}

var adapterDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list connected MCP2221 adapters",
	Action: func(c *cli.Context) error {
		devices := adapter.Devices()
		if len(devices) == 0 {
			console.Warnf("no MCP2221 adapter found")
			return nil
		}
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Index", "Vendor", "Product", "Serial", "Path"})
		for i, dev := range devices {
			t.AppendRow(table.Row{i, fmt.Sprintf("%#x", dev.VendorID), fmt.Sprintf("%#x", dev.ProductID), dev.Serial, dev.Path})
		}
		console.Print(t.Render())
		return nil
	},
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(console.Writer())
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Exit(console.CodeError, "encoding error: %s", console.Red(err))
	}
	return nil
}
