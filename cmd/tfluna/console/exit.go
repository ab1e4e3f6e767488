package console

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/lidar"
)

// Exit codes returned by the CLI.
const (
	CodeError            = 1
	CodeNoResponse       = 2
	CodeInvalidParameter = 3
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// ExitErr reports a driver error with an exit code matching its class.
func ExitErr(what string, err error) cli.ExitCoder {
	code := CodeError
	switch {
	case errors.Is(err, lidar.ErrNoResponse):
		code = CodeNoResponse
	case errors.Is(err, lidar.ErrInvalidParameter), errors.Is(err, lidar.ErrUnknownRegister):
		code = CodeInvalidParameter
	}
	return Exit(code, "%s: %s", what, Red(err))
}
