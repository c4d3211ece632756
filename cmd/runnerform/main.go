// Command runnerform compiles App Runner service documents into
// CloudFormation fragments and serves the same compiler over HTTP.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)

	err := app.Run(append([]string{app.Name}, args...))
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitConfigError
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "runnerform",
		Usage:     "Compile App Runner service documents into CloudFormation",
		Version:   fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are mapped in run; the default handler calls os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
		OnUsageError:   onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				fmt.Fprintf(c.App.ErrWriter, "unknown command %q\n\n", c.Args().First())
			}
			_ = cli.ShowAppHelp(c)
			return &ExitError{Op: "run", Err: errors.New("no command given"), ExitCode: ExitConfigError}
		},
		Commands: []*cli.Command{
			compileCommand(),
			serveCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version and exit",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "runnerform %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to config file",
		EnvVars: []string{"RUNNERFORM_CONFIG"},
	}
}

func onUsageError(c *cli.Context, err error, _ bool) error {
	fmt.Fprintf(c.App.ErrWriter, "usage error: %v\n", err)
	return &ExitError{Op: "parseFlags", Err: err, ExitCode: ExitConfigError}
}
