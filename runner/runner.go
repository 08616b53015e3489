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

// Package runner schedules registered tests across a worker pool and
// funnels their results through a reporter.
//
// Tests are plain closures. A panicking test is caught in its own
// goroutine and reported as failed with the panic site, so one broken
// test never takes the run down with it.
package runner

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Test is a single registered test.
type Test struct {
	Module string
	Name   string
	entry  func() error
}

// FullName renders the module qualified test name.
func (t Test) FullName() string {
	if t.Module != "" {
		return t.Module + " :: " + t.Name
	}
	return t.Name
}

// matches reports whether every filter occurs in the test name or its
// module.
func (t Test) matches(filters []string) bool {
	for _, f := range filters {
		if !strings.Contains(t.Name, f) && !strings.Contains(t.Module, f) {
			return false
		}
	}
	return true
}

// PanicInfo records where and why a test panicked.
type PanicInfo struct {
	// Location is the file:line of the panic site when it could be
	// resolved.
	Location string
	Message  string
}

func (p PanicInfo) String() string {
	location := p.Location
	if location == "" {
		location = "unknown location"
	}
	if p.Message == "" {
		return "failed at " + location
	}
	return fmt.Sprintf("failed at %s\n%s", location, p.Message)
}

// Outcome classifies how a single test went.
type Outcome byte

const (
	// Ok indicates the test ran to completion.
	Ok Outcome = iota
	// Failed indicates the test panicked.
	Failed
	// Errored indicates the test returned an error.
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("Outcome(%d)", byte(o))
	}
}

// TestResult is the outcome of one test run.
type TestResult struct {
	Module   string
	Name     string
	Outcome  Outcome
	Panic    *PanicInfo
	Err      error
	Duration time.Duration
}

// Runner holds registered tests until they are run.
type Runner struct {
	tests []Test
	jobs  int
}

// New constructs an empty runner running as many tests in parallel as
// there are CPUs.
func New() *Runner {
	return &Runner{jobs: runtime.NumCPU()}
}

// SetJobs caps how many tests run in parallel.
func (r *Runner) SetJobs(jobs int) {
	if jobs > 0 {
		r.jobs = jobs
	}
}

// Test registers a test.
func (r *Runner) Test(name string, entry func() error) {
	r.tests = append(r.tests, Test{Name: name, entry: entry})
}

// TestFunc registers a test that signals failure only by panicking.
func (r *Runner) TestFunc(name string, entry func()) {
	r.Test(name, func() error {
		entry()
		return nil
	})
}

// Module groups subsequently registered tests under a shared label.
func (r *Runner) Module(name string) *Module {
	return &Module{runner: r, name: name}
}

// Module tags registered tests with a module label.
type Module struct {
	runner *Runner
	name   string
}

// Test registers a test in this module.
func (m *Module) Test(name string, entry func() error) {
	m.runner.tests = append(m.runner.tests, Test{Module: m.name, Name: name, entry: entry})
}

// TestFunc registers a panic-only test in this module.
func (m *Module) TestFunc(name string, entry func()) {
	m.Test(name, func() error {
		entry()
		return nil
	})
}

// Tests returns the registered tests in insertion order.
func (r *Runner) Tests() []Test {
	return append([]Test(nil), r.tests...)
}

// Run executes every registered test matching the filters in parallel
// and reports each outcome exactly once. It returns whether all selected
// tests passed; the error covers reporting problems only.
func (r *Runner) Run(reporter Reporter, filters ...string) (bool, error) {
	var selected []Test
	for _, test := range r.tests {
		if test.matches(filters) {
			selected = append(selected, test)
			continue
		}
		if err := reporter.ReportSkipped(test); err != nil {
			return false, err
		}
	}

	stopAnimation := r.animate(reporter)

	var g errgroup.Group
	g.SetLimit(r.jobs)

	failed := make([]bool, len(selected))

	for index, test := range selected {
		index, test := index, test
		g.Go(func() error {
			if err := reporter.ReportStarted(index, test.FullName()); err != nil {
				return err
			}
			result := runOne(test)
			if result.Outcome != Ok {
				failed[index] = true
			}
			return reporter.Report(index, result)
		})
	}

	err := g.Wait()
	stopAnimation()
	if endErr := reporter.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return false, err
	}

	for _, f := range failed {
		if f {
			return false, nil
		}
	}
	return true, nil
}

// animate drives the reporter spinner at roughly 10 Hz until the
// returned stop function is called.
func (r *Runner) animate(reporter Reporter) func() {
	if !reporter.SupportsAnimation() {
		return func() {}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := reporter.Animate(); err != nil {
					return
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
		<-finished
	}
}

// runOne executes a single test behind a recover boundary.
func runOne(test Test) TestResult {
	result := TestResult{Module: test.Module, Name: test.Name, Outcome: Ok}
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				result.Outcome = Failed
				result.Panic = capturePanic(v)
			}
		}()
		return test.entry()
	}()

	result.Duration = time.Since(start)
	if result.Outcome == Failed {
		return result
	}
	if err != nil {
		result.Outcome = Errored
		result.Err = err
	}
	return result
}

// capturePanic resolves the panic site by walking past the runtime's
// own unwinding frames.
func capturePanic(v any) *PanicInfo {
	info := &PanicInfo{Message: fmt.Sprint(v)}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			info.Location = fmt.Sprintf("%s:%d", frame.File, frame.Line)
			break
		}
		if !more {
			break
		}
	}
	return info
}
