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
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Reporter receives test results as they come in. Implementations must
// be safe for concurrent use.
type Reporter interface {
	// SupportsAnimation reports whether the runner should drive Animate.
	SupportsAnimation() bool
	// Animate redraws any progress indicator.
	Animate() error
	// End finishes any in-progress animation.
	End() error
	// ReportStarted marks a test as running.
	ReportStarted(index int, name string) error
	// Report submits the result of one test.
	Report(index int, result TestResult) error
	// ReportSkipped submits a test excluded by the filters.
	ReportSkipped(test Test) error
	// Close renders the final summary.
	Close() error
}

var spinner = []string{"|", "/", "-", "\\"}

// StdoutReporter prints one line per test result. On an interactive
// terminal it additionally renders a spinner with the tests currently
// in flight.
type StdoutReporter struct {
	mu  sync.Mutex
	out io.Writer
	// fancy terminals get the spinner and line rewriting.
	fancy       bool
	showSkipped bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color

	running map[int]string
	step    int

	count, passed, failed, skipped int
}

// NewStdoutReporter builds a reporter writing to stdout, detecting
// whether it is attached to a terminal.
func NewStdoutReporter() *StdoutReporter {
	fancy := isatty.IsTerminal(os.Stdout.Fd()) && !color.NoColor
	return newStdoutReporter(os.Stdout, fancy)
}

func newStdoutReporter(out io.Writer, fancy bool) *StdoutReporter {
	return &StdoutReporter{
		out:     out,
		fancy:   fancy,
		green:   color.New(color.FgGreen),
		red:     color.New(color.FgRed),
		yellow:  color.New(color.FgYellow),
		running: make(map[int]string),
	}
}

// ShowSkipped makes the reporter print a line for every skipped test
// instead of only counting them.
func (r *StdoutReporter) ShowSkipped() *StdoutReporter {
	r.showSkipped = true
	return r
}

// Failed reports whether any reported test did not pass.
func (r *StdoutReporter) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed > 0
}

func (r *StdoutReporter) SupportsAnimation() bool { return r.fancy }

func (r *StdoutReporter) Animate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fancy {
		return nil
	}
	r.clearLine()
	r.progress()
	r.step = (r.step + 1) % len(spinner)
	return nil
}

func (r *StdoutReporter) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fancy {
		r.clearLine()
	}
	return nil
}

func (r *StdoutReporter) ReportStarted(index int, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[index] = name
	if r.fancy {
		r.clearLine()
		r.progress()
	}
	return nil
}

func (r *StdoutReporter) Report(index int, result TestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fancy {
		r.clearLine()
	}
	delete(r.running, index)
	r.count++

	switch result.Outcome {
	case Ok:
		r.passed++
		r.green.Fprint(r.out, "OK")
	case Failed:
		r.failed++
		r.red.Fprint(r.out, "FAIL")
	case Errored:
		r.failed++
		r.red.Fprint(r.out, "ERROR")
	}

	if result.Module != "" {
		fmt.Fprintf(r.out, " %s ::", result.Module)
	}
	fmt.Fprintf(r.out, " %s (took %.3fs)\n", result.Name, result.Duration.Seconds())

	switch result.Outcome {
	case Failed:
		fmt.Fprintln(r.out, result.Panic)
	case Errored:
		fmt.Fprintln(r.out, result.Err)
	}

	if r.fancy {
		r.progress()
	}
	return nil
}

func (r *StdoutReporter) ReportSkipped(test Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.showSkipped {
		fmt.Fprintf(r.out, "%s: ", test.FullName())
		r.yellow.Fprint(r.out, "skipped")
		fmt.Fprintln(r.out)
	}
	r.count++
	r.skipped++
	return nil
}

func (r *StdoutReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprint(r.out, "test result: ")
	if r.failed == 0 {
		r.green.Fprint(r.out, "OK")
	} else {
		r.red.Fprint(r.out, "FAILED")
	}
	fmt.Fprint(r.out, ". ")
	r.green.Fprint(r.out, r.passed)
	fmt.Fprint(r.out, " passed; ")
	r.red.Fprint(r.out, r.failed)
	fmt.Fprint(r.out, " failed; ")
	r.yellow.Fprint(r.out, r.skipped)
	fmt.Fprintln(r.out, " skipped")
	return nil
}

// progress renders up to two running test names next to the spinner.
// Callers hold the lock.
func (r *StdoutReporter) progress() {
	indexes := make([]int, 0, len(r.running))
	for index := range r.running {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	var names []string
	for _, index := range indexes {
		if len(names) == 2 {
			names = append(names, "...")
			break
		}
		names = append(names, r.running[index])
	}

	unit := "tests"
	if len(r.running) == 1 {
		unit = "test"
	}
	fmt.Fprintf(r.out, "%d %s running: %s %s", len(r.running), unit,
		strings.Join(names, ", "), spinner[r.step])
}

func (r *StdoutReporter) clearLine() {
	fmt.Fprint(r.out, "\r\x1b[K")
}

// CollectingReporter retains every result for later inspection. Used in
// tests of the runner itself.
type CollectingReporter struct {
	mu      sync.Mutex
	results []TestResult
	skipped []Test
}

// NewCollectingReporter builds an empty collector.
func NewCollectingReporter() *CollectingReporter {
	return &CollectingReporter{}
}

func (r *CollectingReporter) SupportsAnimation() bool { return false }
func (r *CollectingReporter) Animate() error          { return nil }
func (r *CollectingReporter) End() error              { return nil }

func (r *CollectingReporter) ReportStarted(int, string) error { return nil }

func (r *CollectingReporter) Report(_ int, result TestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *CollectingReporter) ReportSkipped(test Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, test)
	return nil
}

func (r *CollectingReporter) Close() error { return nil }

// TakeResults returns and clears the collected results.
func (r *CollectingReporter) TakeResults() []TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := r.results
	r.results = nil
	return results
}

// Skipped returns the tests excluded by the filters.
func (r *CollectingReporter) Skipped() []Test {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Test(nil), r.skipped...)
}
