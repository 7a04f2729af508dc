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

// Package workload launches the streaming and batch test workloads against
// the deployed dispatchers. Both drivers are external programs shipped with
// the workload repository; this package builds their argument contracts and
// nothing more.
package workload

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kubeflow/spark-scale-runner/pkg/shell"
)

// Launcher invokes the workload drivers, usually inside the work container.
type Launcher struct {
	runner  shell.Runner
	workDir string
}

// NewLauncher returns a Launcher running drivers with workDir as the working
// directory.
func NewLauncher(runner shell.Runner, workDir string) *Launcher {
	return &Launcher{runner: runner, workDir: workDir}
}

// StreamingSpec parameterizes the streaming driver.
type StreamingSpec struct {
	Script                 string
	DispatcherDescriptors  string
	InfrastructureFile     string
	ProducersPerDispatcher int
	ConsumersPerProducer   int
	SubmissionsOutputFile  string
}

// RunStreaming starts the streaming jobs. The driver owns the submission
// record schema it writes to the output file.
func (l *Launcher) RunStreaming(ctx context.Context, spec StreamingSpec) error {
	cmd := shell.Command{
		Name: "python3",
		Args: []string{
			spec.Script,
			spec.DispatcherDescriptors,
			spec.InfrastructureFile,
			"--producers-per-dispatcher", strconv.Itoa(spec.ProducersPerDispatcher),
			"--consumers-per-producer", strconv.Itoa(spec.ConsumersPerProducer),
			"--submissions-output-file", spec.SubmissionsOutputFile,
		},
		Dir: l.workDir,
	}
	if err := l.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to run streaming workloads: %w", err)
	}
	return nil
}

// BatchSpec parameterizes the batch application deployer.
type BatchSpec struct {
	Script                string
	AppID                 string
	DispatcherDescriptors string
	ScriptCPUs            int
	ScriptMemMB           float64
	SubmitsPerMin         int
	GPU                   bool
}

// DeployBatch deploys the marathon app that continuously submits batch jobs
// against the dispatchers.
func (l *Launcher) DeployBatch(ctx context.Context, spec BatchSpec) error {
	args := []string{
		spec.Script,
		spec.AppID,
		spec.DispatcherDescriptors,
		"--script-cpus", strconv.Itoa(spec.ScriptCPUs),
		"--script-mem", strconv.FormatFloat(spec.ScriptMemMB, 'f', -1, 64),
		"--submits-per-min", strconv.Itoa(spec.SubmitsPerMin),
	}
	if spec.GPU {
		args = append(args, "--gpu")
	}
	cmd := shell.Command{Name: "python3", Args: args, Dir: l.workDir}
	if err := l.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to deploy batch workloads: %w", err)
	}
	return nil
}
