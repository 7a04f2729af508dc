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

// Package config loads the scale-test scenario configuration from a flat
// KEY=VALUE file, the format shared with the shell tooling that predates this
// harness. Values are validated strictly: booleans must be exactly "true" or
// "false" and enums must match their allowed set, otherwise the run aborts
// before any external tool is invoked.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/kubeflow/spark-scale-runner/pkg/util"
)

// Security is the cluster security mode.
type Security string

const (
	SecurityPermissive Security = "permissive"
	SecurityStrict     Security = "strict"
)

// Mode controls whether container sessions allocate a TTY.
type Mode string

const (
	ModeInteractive    Mode = "interactive"
	ModeNonInteractive Mode = "non-interactive"
)

// ParseMode validates the optional mode argument.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeInteractive, ModeNonInteractive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q: must be %q or %q", s, ModeInteractive, ModeNonInteractive)
}

// Config holds every knob of a scenario run.
type Config struct {
	ClusterURL string
	Security   Security

	ContainerRuntime string
	ContainerImage   string
	ContainerName    string
	ClusterCLI       string
	GitCLI           string

	WorkloadRepo   string
	WorkloadBranch string
	WorkloadDir    string

	InstallInfrastructure    bool
	InfrastructureScript     string
	InfrastructureOutputFile string
	KafkaServiceName         string
	ZookeeperServiceName     string
	CassandraServiceName     string

	SparkPackageName string

	DeployDispatchers       bool
	NumDispatchers          int
	DispatcherNamePrefix    string
	DispatcherOutputFile    string
	DispatcherDeploysPerMin int

	DeployGPUDispatchers    bool
	NumGPUDispatchers       int
	GPUDispatcherNamePrefix string
	GPUDispatcherOutputFile string

	RunStreamingJobs                bool
	StreamingScript                 string
	StreamingProducersPerDispatcher int
	StreamingConsumersPerProducer   int
	StreamingSubmissionsOutputFile  string

	RunBatchJobs       bool
	RunGPUBatchJobs    bool
	BatchScript        string
	BatchAppID         string
	BatchScriptCPUs    int
	BatchScriptMemMB   float64
	BatchSubmitsPerMin int

	UninstallInfrastructureAtTheEnd bool

	TokenRefreshInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SECURITY", string(SecurityPermissive))
	v.SetDefault("CONTAINER_RUNTIME", "docker")
	v.SetDefault("CLUSTER_CLI", "dcos")
	v.SetDefault("GIT_CLI", "git")
	v.SetDefault("WORKLOAD_BRANCH", "master")
	v.SetDefault("WORKLOAD_DIR", "spark-build")
	v.SetDefault("INSTALL_INFRASTRUCTURE", "false")
	v.SetDefault("INFRASTRUCTURE_SCRIPT", "scale-tests/setup-streaming.py")
	v.SetDefault("INFRASTRUCTURE_OUTPUT_FILE", "infrastructure.json")
	v.SetDefault("KAFKA_SERVICE_NAME", "kafka")
	v.SetDefault("ZOOKEEPER_SERVICE_NAME", "kafka-zookeeper")
	v.SetDefault("CASSANDRA_SERVICE_NAME", "cassandra")
	v.SetDefault("SPARK_PACKAGE_NAME", "spark")
	v.SetDefault("DEPLOY_DISPATCHERS", "false")
	v.SetDefault("NUM_DISPATCHERS", "1")
	v.SetDefault("DISPATCHER_NAME_PREFIX", "spark")
	v.SetDefault("DISPATCHER_OUTPUT_FILE", "dispatchers.out")
	v.SetDefault("DISPATCHER_DEPLOYS_PER_MIN", "60")
	v.SetDefault("DEPLOY_GPU_DISPATCHERS", "false")
	v.SetDefault("NUM_GPU_DISPATCHERS", "0")
	v.SetDefault("GPU_DISPATCHER_NAME_PREFIX", "spark-gpu")
	v.SetDefault("GPU_DISPATCHER_OUTPUT_FILE", "gpu-dispatchers.out")
	v.SetDefault("RUN_STREAMING_JOBS", "false")
	v.SetDefault("STREAMING_SCRIPT", "scale-tests/kafka-cassandra-streaming-test.py")
	v.SetDefault("STREAMING_PRODUCERS_PER_DISPATCHER", "1")
	v.SetDefault("STREAMING_CONSUMERS_PER_PRODUCER", "1")
	v.SetDefault("STREAMING_SUBMISSIONS_OUTPUT_FILE", "streaming-submissions.out")
	v.SetDefault("RUN_BATCH_JOBS", "false")
	v.SetDefault("RUN_GPU_BATCH_JOBS", "false")
	v.SetDefault("BATCH_SCRIPT", "scale-tests/deploy-batch-marathon-app.py")
	v.SetDefault("BATCH_APP_ID", "batch-workload")
	v.SetDefault("BATCH_SCRIPT_CPUS", "2")
	v.SetDefault("BATCH_SCRIPT_MEM", "4096")
	v.SetDefault("BATCH_SUBMITS_PER_MIN", "1")
	v.SetDefault("UNINSTALL_INFRASTRUCTURE_AT_THE_END", "false")
	v.SetDefault("TOKEN_REFRESH_INTERVAL", "5m")
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	if err := util.CheckFileNonEmpty(path); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", path, err)
	}

	cfg := &Config{
		ClusterURL:                     v.GetString("CLUSTER_URL"),
		ContainerRuntime:               v.GetString("CONTAINER_RUNTIME"),
		ContainerImage:                 v.GetString("CONTAINER_IMAGE"),
		ContainerName:                  v.GetString("CONTAINER_NAME"),
		ClusterCLI:                     v.GetString("CLUSTER_CLI"),
		GitCLI:                         v.GetString("GIT_CLI"),
		WorkloadRepo:                   v.GetString("WORKLOAD_REPO"),
		WorkloadBranch:                 v.GetString("WORKLOAD_BRANCH"),
		WorkloadDir:                    v.GetString("WORKLOAD_DIR"),
		InfrastructureScript:           v.GetString("INFRASTRUCTURE_SCRIPT"),
		InfrastructureOutputFile:       v.GetString("INFRASTRUCTURE_OUTPUT_FILE"),
		KafkaServiceName:               v.GetString("KAFKA_SERVICE_NAME"),
		ZookeeperServiceName:           v.GetString("ZOOKEEPER_SERVICE_NAME"),
		CassandraServiceName:           v.GetString("CASSANDRA_SERVICE_NAME"),
		SparkPackageName:               v.GetString("SPARK_PACKAGE_NAME"),
		DispatcherNamePrefix:           v.GetString("DISPATCHER_NAME_PREFIX"),
		DispatcherOutputFile:           v.GetString("DISPATCHER_OUTPUT_FILE"),
		GPUDispatcherNamePrefix:        v.GetString("GPU_DISPATCHER_NAME_PREFIX"),
		GPUDispatcherOutputFile:        v.GetString("GPU_DISPATCHER_OUTPUT_FILE"),
		StreamingScript:                v.GetString("STREAMING_SCRIPT"),
		StreamingSubmissionsOutputFile: v.GetString("STREAMING_SUBMISSIONS_OUTPUT_FILE"),
		BatchScript:                    v.GetString("BATCH_SCRIPT"),
		BatchAppID:                     v.GetString("BATCH_APP_ID"),
	}

	if cfg.ClusterURL == "" {
		return nil, fmt.Errorf("CLUSTER_URL must be set in %s", path)
	}
	if cfg.ContainerImage == "" {
		return nil, fmt.Errorf("CONTAINER_IMAGE must be set in %s", path)
	}

	security := v.GetString("SECURITY")
	switch Security(security) {
	case SecurityPermissive, SecurityStrict:
		cfg.Security = Security(security)
	default:
		return nil, fmt.Errorf("invalid SECURITY %q: must be %q or %q", security, SecurityPermissive, SecurityStrict)
	}

	var err error
	for key, dst := range map[string]*bool{
		"INSTALL_INFRASTRUCTURE":              &cfg.InstallInfrastructure,
		"DEPLOY_DISPATCHERS":                  &cfg.DeployDispatchers,
		"DEPLOY_GPU_DISPATCHERS":              &cfg.DeployGPUDispatchers,
		"RUN_STREAMING_JOBS":                  &cfg.RunStreamingJobs,
		"RUN_BATCH_JOBS":                      &cfg.RunBatchJobs,
		"RUN_GPU_BATCH_JOBS":                  &cfg.RunGPUBatchJobs,
		"UNINSTALL_INFRASTRUCTURE_AT_THE_END": &cfg.UninstallInfrastructureAtTheEnd,
	} {
		if *dst, err = util.ParseStrictBool(v.GetString(key)); err != nil {
			return nil, fmt.Errorf("invalid %s: %v", key, err)
		}
	}

	for key, dst := range map[string]*int{
		"NUM_DISPATCHERS":                    &cfg.NumDispatchers,
		"NUM_GPU_DISPATCHERS":                &cfg.NumGPUDispatchers,
		"DISPATCHER_DEPLOYS_PER_MIN":         &cfg.DispatcherDeploysPerMin,
		"STREAMING_PRODUCERS_PER_DISPATCHER": &cfg.StreamingProducersPerDispatcher,
		"STREAMING_CONSUMERS_PER_PRODUCER":   &cfg.StreamingConsumersPerProducer,
		"BATCH_SCRIPT_CPUS":                  &cfg.BatchScriptCPUs,
		"BATCH_SUBMITS_PER_MIN":              &cfg.BatchSubmitsPerMin,
	} {
		if *dst, err = strconv.Atoi(v.GetString(key)); err != nil {
			return nil, fmt.Errorf("invalid %s %q: not an integer", key, v.GetString(key))
		}
		if *dst < 0 {
			return nil, fmt.Errorf("invalid %s %q: must not be negative", key, v.GetString(key))
		}
	}

	if cfg.BatchScriptMemMB, err = strconv.ParseFloat(v.GetString("BATCH_SCRIPT_MEM"), 64); err != nil {
		return nil, fmt.Errorf("invalid BATCH_SCRIPT_MEM %q: not a number", v.GetString("BATCH_SCRIPT_MEM"))
	}

	if cfg.TokenRefreshInterval, err = time.ParseDuration(v.GetString("TOKEN_REFRESH_INTERVAL")); err != nil {
		return nil, fmt.Errorf("invalid TOKEN_REFRESH_INTERVAL %q: %v", v.GetString("TOKEN_REFRESH_INTERVAL"), err)
	}
	if cfg.TokenRefreshInterval <= 0 {
		return nil, fmt.Errorf("invalid TOKEN_REFRESH_INTERVAL %q: must be positive", v.GetString("TOKEN_REFRESH_INTERVAL"))
	}

	return cfg, nil
}
