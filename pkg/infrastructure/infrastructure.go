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

// Package infrastructure installs and removes the shared services (message
// queue, coordination and database) the streaming workloads depend on. The
// install itself is delegated to the external setup script shipped with the
// workload repository; this package only builds its invocation and drives
// the uninstall through the cluster CLI.
package infrastructure

import (
	"context"
	"fmt"

	"github.com/kubeflow/spark-scale-runner/pkg/shell"
)

// Services names the shared service instances of one scenario.
type Services struct {
	Kafka      string
	Zookeeper  string
	Cassandra  string
	OutputFile string
}

// Uninstaller is the slice of the cluster client needed for teardown.
type Uninstaller interface {
	UninstallPackage(ctx context.Context, name, service string) error
}

// Manager installs and tears down the shared infrastructure.
type Manager struct {
	script string
	runner shell.Runner
}

// NewManager returns a Manager that invokes the given setup script through
// runner (usually the container runner, with the workload checkout as the
// working directory).
func NewManager(script string, runner shell.Runner) *Manager {
	return &Manager{script: script, runner: runner}
}

// Install runs the setup script. The script owns the descriptor schema it
// writes to services.OutputFile.
func (m *Manager) Install(ctx context.Context, workDir string, services Services) error {
	cmd := shell.Command{
		Name: "python3",
		Args: []string{
			m.script,
			services.OutputFile,
			"--kafka-service-name", services.Kafka,
			"--zookeeper-service-name", services.Zookeeper,
			"--cassandra-service-name", services.Cassandra,
		},
		Dir: workDir,
	}
	if err := m.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to install infrastructure: %w", err)
	}
	return nil
}

// Uninstall removes the shared services through the cluster CLI. Packages
// are keyed by their service name; the package names match the upstream
// catalog names.
func (m *Manager) Uninstall(ctx context.Context, uninstaller Uninstaller, services Services) error {
	for _, svc := range []struct {
		pkg     string
		service string
	}{
		{"kafka", services.Kafka},
		{"kafka-zookeeper", services.Zookeeper},
		{"cassandra", services.Cassandra},
	} {
		if svc.service == "" {
			continue
		}
		if err := uninstaller.UninstallPackage(ctx, svc.pkg, svc.service); err != nil {
			return fmt.Errorf("failed to uninstall infrastructure service %s: %w", svc.service, err)
		}
	}
	return nil
}
