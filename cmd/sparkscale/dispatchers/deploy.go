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

package dispatchers

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/kubeflow/spark-scale-runner/pkg/cluster"
	"github.com/kubeflow/spark-scale-runner/pkg/config"
	"github.com/kubeflow/spark-scale-runner/pkg/dispatcher"
	"github.com/kubeflow/spark-scale-runner/pkg/shell"
	"github.com/kubeflow/spark-scale-runner/pkg/util"
)

var (
	spec          = dispatcher.DefaultSpec()
	clusterCLI    string
	deploysPerMin int
	development   bool
)

func NewDeployCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "deploy NUM SERVICE_NAME_BASE OUTPUT_FILE",
		Short: "Deploy a batch of Spark dispatchers",
		Long: `Deploy NUM dispatcher services named SERVICE_NAME_BASE-0 through
SERVICE_NAME_BASE-(NUM-1), each with its own drivers and executors role
quota, and record the deployed services as "service,driversRole,executorsRole"
lines in OUTPUT_FILE plus a JSON descriptor list next to it.

The cluster CLI must already be attached to a cluster.`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doDeploy(cmd, args)
		},
	}

	flags := command.Flags()
	flags.StringVar(&clusterCLI, "cluster-cli", "dcos", "Cluster CLI binary.")
	flags.IntVar(&deploysPerMin, "deploys-per-min", 0, "Throttle deployments to this rate; 0 disables throttling.")
	flags.BoolVar(&development, "development", false, "Enable debug logging.")

	flags.StringVar(&spec.PackageName, "package-name", spec.PackageName, "Catalog package to install.")
	flags.StringVar(&spec.PackageRepo, "package-repo", "", "Package repository URI to register before installing.")
	flags.IntVar(&spec.CPUs, "cpus", spec.CPUs, "CPUs per dispatcher.")
	flags.Float64Var(&spec.MemMB, "mem", spec.MemMB, "Memory per dispatcher, in MB.")
	flags.IntVar(&spec.GPUs, "gpus", spec.GPUs, "GPUs per dispatcher.")
	flags.StringVar(&spec.Role, "role", spec.Role, "Mesos role registered by the dispatcher.")
	flags.StringVar(&spec.User, "user", spec.User, "OS user the dispatcher runs as.")
	flags.StringVar(&spec.LogLevel, "log-level", spec.LogLevel, "Dispatcher log level.")
	flags.StringVar(&spec.ServiceAccount, "service-account", "", "Service account for strict mode clusters.")
	flags.StringVar(&spec.ServiceSecret, "service-secret", "", "Service account secret for strict mode clusters.")
	flags.StringVar(&spec.HistoryServiceURL, "history-service", "", "Spark history server URL.")
	flags.StringVar(&spec.HDFSConfigURL, "hdfs-config", "", "URL serving hdfs-site.xml and core-site.xml.")
	flags.BoolVar(&spec.KerberosEnabled, "enable-kerberos", false, "Enable Kerberos.")
	flags.StringVar(&spec.KDCHostname, "kdc-hostname", "", "KDC hostname.")
	flags.IntVar(&spec.KDCPort, "kdc-port", spec.KDCPort, "KDC port.")
	flags.StringVar(&spec.KerberosRealm, "kerberos-realm", "", "Kerberos realm.")
	flags.BoolVar(&spec.UCRContainerizer, "ucr-containerizer", spec.UCRContainerizer, "Run the dispatcher under the UCR containerizer.")
	flags.BoolVar(&spec.CreateQuotas, "create-quotas", spec.CreateQuotas, "Create drivers and executors role quotas.")
	flags.IntVar(&spec.DriversQuota.CPUs, "quota-drivers-cpus", spec.DriversQuota.CPUs, "CPUs of each drivers role quota.")
	flags.IntVar(&spec.DriversQuota.GPUs, "quota-drivers-gpus", spec.DriversQuota.GPUs, "GPUs of each drivers role quota.")
	flags.Float64Var(&spec.DriversQuota.MemMB, "quota-drivers-mem", spec.DriversQuota.MemMB, "Memory of each drivers role quota, in MB.")
	flags.IntVar(&spec.ExecutorsQuota.CPUs, "quota-executors-cpus", spec.ExecutorsQuota.CPUs, "CPUs of each executors role quota.")
	flags.IntVar(&spec.ExecutorsQuota.GPUs, "quota-executors-gpus", spec.ExecutorsQuota.GPUs, "GPUs of each executors role quota.")
	flags.Float64Var(&spec.ExecutorsQuota.MemMB, "quota-executors-mem", spec.ExecutorsQuota.MemMB, "Memory of each executors role quota, in MB.")
	flags.StringVar(&spec.OptionsFile, "options-json", "", "Options file used instead of the generated defaults; YAML or JSON.")
	flags.StringVar(&spec.OptionsDir, "options-dir", "", "Directory for the per-instance options files; defaults to the system temp directory.")

	return command
}

func doDeploy(cmd *cobra.Command, args []string) error {
	count, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid dispatcher count %q: not an integer", args[0])
	}
	spec.Count = count
	spec.NameBase = args[1]
	spec.OutputFile = args[2]

	logger := util.NewLogger(development)
	defer logger.Sync()

	runner := &shell.LocalRunner{Stdout: os.Stdout, Stderr: os.Stderr, Stdin: os.Stdin}
	client := cluster.New(clusterCLI, "", config.SecurityPermissive, runner)

	var limiter *rate.Limiter
	if deploysPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(deploysPerMin)/60, 1)
	}

	deployer := dispatcher.NewDeployer(client, limiter, logger)
	deployed, err := deployer.Deploy(cmd.Context(), spec)
	if err != nil {
		return err
	}
	logger.Infow("Deployed dispatchers", "count", len(deployed), "outputFile", spec.OutputFile)
	return nil
}
