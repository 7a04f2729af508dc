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

// Package container wraps the container runtime CLI (docker by default). The
// harness runs every cluster-facing command inside a detached work container
// so that the cluster CLI, its configuration, and the workload checkout stay
// isolated from the host.
package container

import (
	"context"
	"fmt"
	"sort"

	"github.com/kubeflow/spark-scale-runner/pkg/shell"
)

// Mount maps a host path into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Engine drives one named work container through the runtime CLI.
type Engine struct {
	runtime     string
	image       string
	name        string
	interactive bool
	runner      shell.Runner
}

// New returns an Engine for the given runtime binary, image and container
// name. When interactive is true, exec sessions allocate a TTY.
func New(runtime, image, name string, interactive bool, runner shell.Runner) *Engine {
	return &Engine{
		runtime:     runtime,
		image:       image,
		name:        name,
		interactive: interactive,
		runner:      runner,
	}
}

// Name returns the container name.
func (e *Engine) Name() string {
	return e.name
}

// Pull fetches the work image.
func (e *Engine) Pull(ctx context.Context) error {
	cmd := shell.Command{Name: e.runtime, Args: []string{"pull", e.image}}
	if err := e.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", e.image, err)
	}
	return nil
}

// Start launches the detached container with the given mounts and
// environment. The container idles until removed; all work happens through
// Exec.
func (e *Engine) Start(ctx context.Context, mounts []Mount, env map[string]string) error {
	args := []string{"run", "--detach", "--name", e.name}
	for _, m := range mounts {
		spec := fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath)
		if m.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "--volume", spec)
	}
	for _, kv := range sortedEnv(env) {
		args = append(args, "--env", kv)
	}
	args = append(args, e.image, "sleep", "infinity")

	if err := e.runner.Run(ctx, shell.Command{Name: e.runtime, Args: args}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", e.name, err)
	}
	return nil
}

// Exec runs a command inside the container.
func (e *Engine) Exec(ctx context.Context, cmd shell.Command) error {
	return e.runner.Run(ctx, e.wrap(cmd))
}

// Output runs a command inside the container and returns its stdout.
func (e *Engine) Output(ctx context.Context, cmd shell.Command) (string, error) {
	return e.runner.Output(ctx, e.wrap(cmd))
}

// Remove force-removes the container. Removing an already-gone container is
// not an error worth failing a run over, so callers usually log and ignore
// the result during cleanup.
func (e *Engine) Remove(ctx context.Context) error {
	cmd := shell.Command{Name: e.runtime, Args: []string{"rm", "--force", e.name}}
	if err := e.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", e.name, err)
	}
	return nil
}

// Runner returns a shell.Runner whose commands execute inside the container.
// Packages that drive external tools stay agnostic of whether they run on the
// host or in the container.
func (e *Engine) Runner() shell.Runner {
	return &execRunner{engine: e}
}

func (e *Engine) wrap(cmd shell.Command) shell.Command {
	args := []string{"exec"}
	if e.interactive {
		args = append(args, "--interactive", "--tty")
	}
	if cmd.Dir != "" {
		args = append(args, "--workdir", cmd.Dir)
	}
	for _, kv := range cmd.Env {
		args = append(args, "--env", kv)
	}
	args = append(args, e.name, cmd.Name)
	args = append(args, cmd.Args...)
	return shell.Command{Name: e.runtime, Args: args}
}

// sortedEnv renders the map as KEY=VALUE pairs in key order so the generated
// command line is deterministic.
func sortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, env[key]))
	}
	return pairs
}

type execRunner struct {
	engine *Engine
}

func (r *execRunner) Run(ctx context.Context, cmd shell.Command) error {
	return r.engine.Exec(ctx, cmd)
}

func (r *execRunner) Output(ctx context.Context, cmd shell.Command) (string, error) {
	return r.engine.Output(ctx, cmd)
}
