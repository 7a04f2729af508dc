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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kubeflow/spark-scale-runner/cmd/sparkscale/dispatchers"
	"github.com/kubeflow/spark-scale-runner/cmd/sparkscale/run"
	"github.com/kubeflow/spark-scale-runner/cmd/sparkscale/version"
	"github.com/kubeflow/spark-scale-runner/pkg/shell"
)

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "sparkscale",
		Short: "Spark scale-test harness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	command.AddCommand(run.NewCommand())
	command.AddCommand(dispatchers.NewCommand())
	command.AddCommand(version.NewCommand())
	return command
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(shell.ExitCode(err))
	}
}
