package main

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tfluna/console"
	"github.com/mklimuk/rangefinder/lidar"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "trigger and print a single sample",
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			m, err := s.GetData(ctx)
			if err != nil {
				return console.ExitErr("sample error", err)
			}
			printMeasurement(m)
			return nil
		})
	},
}

func printMeasurement(m lidar.Measurement) {
	if !m.Valid() {
		console.PInfof(console.PictoStop, "%s (flux %d)", console.Yellow(m.Status), m.Flux)
		return
	}
	console.PInfof(console.PictoRuler, "%s cm  flux %s  %s %s°C",
		console.White(m.Dist), console.White(m.Flux), console.PictoThermometer, console.White(fmt.Sprintf("%.2f", m.Celsius)))
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "sample repeatedly and print a summary",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Value: 10,
			Usage: "number of samples, 0 samples until interrupted",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Value: 100 * time.Millisecond,
			Usage: "delay between samples",
		},
	},
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *lidar.TFLuna) error {
			var summary watchSummary
			ticker := time.NewTicker(c.Duration("interval"))
			defer ticker.Stop()
			for n := c.Int("count"); n == 0 || summary.total < n; {
				m, err := s.GetData(ctx)
				if err != nil {
					console.Errorf("sample error: %s", err)
				}
				summary.add(m, err)
				if err == nil {
					printMeasurement(m)
				}
				select {
				case <-ctx.Done():
					summary.print()
					return nil
				case <-ticker.C:
				}
			}
			summary.print()
			return nil
		})
	},
}

type watchSummary struct {
	total    int
	failed   int
	rejected map[lidar.StatusCode]int
	dist     stats.Float64Data
}

func (w *watchSummary) add(m lidar.Measurement, err error) {
	w.total++
	switch {
	case err != nil:
		w.failed++
	case !m.Valid():
		if w.rejected == nil {
			w.rejected = make(map[lidar.StatusCode]int)
		}
		w.rejected[m.Status]++
	default:
		w.dist = append(w.dist, float64(m.Dist))
	}
}

// distanceStats returns min, max, mean and standard deviation of the valid samples.
func (w *watchSummary) distanceStats() (lo, hi, mean, stddev float64, err error) {
	if lo, err = stats.Min(w.dist); err != nil {
		return
	}
	if hi, err = stats.Max(w.dist); err != nil {
		return
	}
	if mean, err = stats.Mean(w.dist); err != nil {
		return
	}
	stddev, err = stats.StandardDeviation(w.dist)
	return
}

func (w *watchSummary) print() {
	console.Printf("\n%s samples: %d valid, %d failed\n", console.Bold(w.total), len(w.dist), w.failed)
	for status, n := range w.rejected {
		console.Printf("  %s: %d\n", console.Yellow(status), n)
	}
	lo, hi, mean, stddev, err := w.distanceStats()
	if err != nil {
		console.Warnf("no valid distance samples")
		return
	}
	console.Printf("distance min %s max %s mean %s stddev %s cm\n",
		console.White(lo), console.White(hi), console.White(fmt.Sprintf("%.1f", mean)), console.White(fmt.Sprintf("%.2f", stddev)))
}
