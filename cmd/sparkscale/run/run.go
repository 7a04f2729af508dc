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

package run

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubeflow/spark-scale-runner/pkg/config"
	"github.com/kubeflow/spark-scale-runner/pkg/scenario"
	"github.com/kubeflow/spark-scale-runner/pkg/util"
)

var (
	development bool
	outputDir   string
)

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "run CONFIG_FILE TEST_NAME S3_BUCKET S3_FOLDER SSH_KEY_PATH USERNAME PASSWORD [MODE]",
		Short: "Run one end-to-end scale test",
		Long: `Run one end-to-end scale test: start the work container, authenticate
against the cluster, install the shared infrastructure, deploy the Spark
dispatchers, launch the streaming and batch workloads, and upload every
artifact of the run to S3.

MODE is "interactive" (the default) or "non-interactive"; non-interactive
runs allocate no TTY and suit CI environments.`,
		Args:         cobra.RangeArgs(7, 8),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRun(cmd, args)
		},
	}
	command.Flags().BoolVar(&development, "development", false, "Enable debug logging.")
	command.Flags().StringVar(&outputDir, "output-dir", "", "Host directory for run artifacts; defaults to a directory named after the test.")
	return command
}

func doRun(cmd *cobra.Command, args []string) error {
	params := scenario.Params{
		TestName:   args[1],
		S3Bucket:   args[2],
		S3Folder:   args[3],
		SSHKeyPath: args[4],
		Username:   args[5],
		Password:   args[6],
		Mode:       config.ModeInteractive,
	}
	if len(args) == 8 {
		mode, err := config.ParseMode(args[7])
		if err != nil {
			return err
		}
		params.Mode = mode
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := util.ValidatePrivateKeyFile(params.SSHKeyPath); err != nil {
		return fmt.Errorf("invalid SSH key %s: %w", params.SSHKeyPath, err)
	}

	logger := util.NewLogger(development)
	defer logger.Sync()

	var opts []scenario.Option
	if outputDir != "" {
		opts = append(opts, scenario.WithOutputDir(outputDir))
	}
	s, err := scenario.New(cfg, params, logger, opts...)
	if err != nil {
		return err
	}
	return s.Run(cmd.Context())
}
