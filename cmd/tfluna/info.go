package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tfluna/console"
	"github.com/mklimuk/rangefinder/lidar"
)

type deviceInfo struct {
	Address   string `yaml:"address"`
	Firmware  string `yaml:"firmware"`
	ProdCode  string `yaml:"prod_code"`
	Mode      string `yaml:"mode"`
	FrameRate uint16 `yaml:"frame_rate"`
	Tick      uint16 `yaml:"tick_ms"`
	ErrorCode uint16 `yaml:"error_code"`
}

var infoCmd = cli.Command{
	Name:  "info",
	Usage: "print device identity and settings as YAML",
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			info, err := readInfo(ctx, s)
			if err != nil {
				return console.ExitErr("info error", err)
			}
			return printYAML(info)
		})
	},
}

func readInfo(ctx context.Context, s *lidar.TFLuna) (deviceInfo, error) {
	info := deviceInfo{Address: fmt.Sprintf("%#x", s.Address())}
	var err error
	if info.Firmware, err = s.GetFirmwareVersion(ctx); err != nil {
		return info, err
	}
	if info.ProdCode, err = s.GetProdCode(ctx); err != nil {
		return info, err
	}
	mode, err := s.ReadMode(ctx)
	if err != nil {
		return info, err
	}
	info.Mode = mode.String()
	if info.FrameRate, err = s.GetFrameRate(ctx); err != nil {
		return info, err
	}
	if info.Tick, err = s.GetTime(ctx); err != nil {
		return info, err
	}
	if info.ErrorCode, err = s.GetErrorCode(ctx); err != nil {
		return info, err
	}
	return info, nil
}

var registersCmd = cli.Command{
	Name:  "registers",
	Usage: "print the register map",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "dump",
			Usage: "read the current value of every readable register",
		},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("dump") {
			console.Print(registerTable(nil))
			return nil
		}
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			values := make(map[lidar.RegisterName][]byte)
			for _, e := range lidar.Registers() {
				if e.Access == lidar.WriteTrigger {
					continue
				}
				raw, err := s.ReadRaw(ctx, e.Name)
				if err != nil {
					return console.ExitErr(fmt.Sprintf("read %s", e.Name), err)
				}
				values[e.Name] = raw
			}
			console.Print(registerTable(values))
			return nil
		})
	},
}

// registerTable renders the register map. With values a column holds the raw bytes.
func registerTable(values map[lidar.RegisterName][]byte) string {
	t := table.NewWriter()
	header := table.Row{"Addr", "Name", "Width", "Access", "Kind"}
	if values != nil {
		header = append(header, "Value")
	}
	t.AppendHeader(header)
	for _, e := range lidar.Registers() {
		row := table.Row{fmt.Sprintf("0x%02x", e.Addr), e.Name, e.Width, e.Access, e.Kind}
		if values != nil {
			row = append(row, hex.EncodeToString(values[e.Name]))
		}
		t.AppendRow(row)
	}
	return t.Render()
}
