package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run hardware tests against a sensor on TFLUNA_DEVICE",
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := cmd.Flags().GetString("device")
			if err != nil {
				return fmt.Errorf("could not get device flag: %w", err)
			}
			if device != "" {
				if err := os.Setenv("TFLUNA_DEVICE", device); err != nil {
					return fmt.Errorf("could not set TFLUNA_DEVICE: %w", err)
				}
			}
			slog.Info("running hardware tests", "device", os.Getenv("TFLUNA_DEVICE"))
			err = test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("device", "", "I2C bus the sensor is wired to (overrides TFLUNA_DEVICE)")
	return cmd
}
