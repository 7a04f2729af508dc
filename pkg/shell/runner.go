/*
Copyright 2024 The Kubeflow authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env holds extra KEY=VALUE entries appended to the process environment.
	Env []string
}

// String renders the command the way it would be typed in a shell. Used for
// logging only; no quoting is attempted.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes external commands. The scenario driver talks to every
// external tool (container runtime, cluster CLI, git, workload scripts)
// through this interface so tests can substitute a fake.
type Runner interface {
	// Run executes the command, streaming its combined output to the
	// runner's configured writers.
	Run(ctx context.Context, cmd Command) error
	// Output executes the command and returns its captured stdout. Stderr
	// is still streamed.
	Output(ctx context.Context, cmd Command) (string, error)
}

// LocalRunner runs commands on the local host. Stdout and Stderr are
// typically tee'd to both the console and the scenario log file.
type LocalRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

var _ Runner = (*LocalRunner)(nil)

func (r *LocalRunner) build(ctx context.Context, cmd Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = r.Stdin
	return c
}

func (r *LocalRunner) Run(ctx context.Context, cmd Command) error {
	c := r.build(ctx, cmd)
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("command %q failed: %w", cmd.String(), err)
	}
	return nil
}

func (r *LocalRunner) Output(ctx context.Context, cmd Command) (string, error) {
	c := r.build(ctx, cmd)
	var stdout bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = r.Stderr
	if err := c.Run(); err != nil {
		return stdout.String(), fmt.Errorf("command %q failed: %w", cmd.String(), err)
	}
	return stdout.String(), nil
}

// ExitCode extracts the exit code of the first failed external command from
// an error chain. Errors that did not originate from a process exit map
// to 1, matching the harness's validation exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}
