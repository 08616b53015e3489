// Copyright 2018 The parables Authors
// This file is part of the parables library.
//
// The parables library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The parables library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the parables library. If not, see <http://www.gnu.org/licenses/>.

package runner

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

// Main runs a registered test suite as a command line program. The
// setup function registers tests on the runner; positional arguments
// narrow the run to tests whose name or module contains every argument.
// The process exits non-zero when any selected test fails.
func Main(setup func(r *Runner) error) {
	app := &cli.App{
		Name:      "parables",
		Usage:     "run the registered contract tests",
		ArgsUsage: "[filters...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "list registered tests without running them",
			},
			&cli.BoolFlag{
				Name:  "skip-report",
				Usage: "print a line for every skipped test",
			},
			&cli.IntFlag{
				Name:  "jobs",
				Usage: "number of tests to run in parallel",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("no-color") {
				color.NoColor = true
			}

			r := New()
			if err := setup(r); err != nil {
				return err
			}
			r.SetJobs(c.Int("jobs"))

			if c.Bool("list") {
				for _, test := range r.Tests() {
					fmt.Println(test.FullName())
				}
				return nil
			}

			reporter := NewStdoutReporter()
			if c.Bool("skip-report") {
				reporter.ShowSkipped()
			}

			passed, err := r.Run(reporter, c.Args().Slice()...)
			if closeErr := reporter.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			if !passed {
				return cli.Exit("", 1)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		code := 1
		if exit, ok := err.(cli.ExitCoder); ok {
			code = exit.ExitCode()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(code)
	}
}
