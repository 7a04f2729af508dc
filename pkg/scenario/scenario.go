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

// Package scenario drives one end-to-end scale-test run: it starts the work
// container, authenticates against the cluster, checks out the workload
// repository, installs the shared infrastructure, deploys the Spark
// dispatchers, launches the streaming and batch workloads, and finally
// uploads every artifact the run produced. Failures abort the remaining
// steps; the container is removed no matter how the run ends.
package scenario

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/kubeflow/spark-scale-runner/pkg/cluster"
	"github.com/kubeflow/spark-scale-runner/pkg/config"
	"github.com/kubeflow/spark-scale-runner/pkg/container"
	"github.com/kubeflow/spark-scale-runner/pkg/dispatcher"
	"github.com/kubeflow/spark-scale-runner/pkg/infrastructure"
	"github.com/kubeflow/spark-scale-runner/pkg/shell"
	"github.com/kubeflow/spark-scale-runner/pkg/storage"
	"github.com/kubeflow/spark-scale-runner/pkg/util"
	"github.com/kubeflow/spark-scale-runner/pkg/workload"
)

// Paths inside the work container. The artifacts directory and the SSH key
// are host paths mounted at these fixed locations; everything the run writes
// through the container lands in the artifacts directory and is therefore
// visible on the host for upload.
const (
	containerOutputDir = "/output"
	containerKeyPath   = "/ssh/key"
	containerWorkRoot  = "/work"

	mergedDescriptorsFile = "all-dispatchers.json"
)

// Params are the positional arguments of one run.
type Params struct {
	TestName   string
	S3Bucket   string
	S3Folder   string
	SSHKeyPath string
	Username   string
	Password   string
	Mode       config.Mode
}

// Uploader pushes local artifacts to remote storage.
type Uploader interface {
	UploadFiles(ctx context.Context, files []string) ([]string, error)
}

// Scenario is one configured run.
type Scenario struct {
	cfg       *config.Config
	params    Params
	logger    *zap.SugaredLogger
	runner    shell.Runner
	uploader  Uploader
	outputDir string
}

// Option adjusts a Scenario, mostly so tests can substitute the pieces that
// talk to the outside world.
type Option func(*Scenario)

// WithRunner replaces the host command runner.
func WithRunner(r shell.Runner) Option {
	return func(s *Scenario) { s.runner = r }
}

// WithUploader replaces the artifact uploader.
func WithUploader(u Uploader) Option {
	return func(s *Scenario) { s.uploader = u }
}

// WithOutputDir overrides the host artifacts directory.
func WithOutputDir(dir string) Option {
	return func(s *Scenario) { s.outputDir = dir }
}

// New validates the parameters and returns a runnable Scenario.
func New(cfg *config.Config, params Params, logger *zap.SugaredLogger, opts ...Option) (*Scenario, error) {
	if params.TestName == "" {
		return nil, fmt.Errorf("test name must not be empty")
	}
	if params.S3Bucket == "" || params.S3Folder == "" {
		return nil, fmt.Errorf("S3 bucket and folder must not be empty")
	}
	if params.Username == "" || params.Password == "" {
		return nil, fmt.Errorf("cluster username and password must not be empty")
	}
	s := &Scenario{cfg: cfg, params: params, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes the scenario. The work container is removed and the token
// refresher stopped whether the run succeeds, fails, or is interrupted.
func (s *Scenario) Run(ctx context.Context) error {
	if err := s.ensureOutputDir(); err != nil {
		return err
	}

	logFile, err := OpenLogFile(s.outputDir, s.params.TestName)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := teeLogger(s.logger, logFile)
	logger.Infow("Writing run log", "path", logFile.Path)

	runner := s.runner
	if runner == nil {
		runner = &shell.LocalRunner{
			Stdout: io.MultiWriter(os.Stdout, logFile),
			Stderr: io.MultiWriter(os.Stderr, logFile),
			Stdin:  os.Stdin,
		}
	}

	containerName := s.cfg.ContainerName
	if containerName == "" {
		containerName = s.params.TestName
	}
	engine := container.New(s.cfg.ContainerRuntime, s.cfg.ContainerImage, containerName,
		s.params.Mode == config.ModeInteractive, runner)

	handler := util.NewInterruptHandler(func() {
		logger.Infow("Removing work container", "name", engine.Name())
		if err := engine.Remove(context.Background()); err != nil {
			logger.Warnw("Failed to remove work container", "error", err)
		}
	})

	return handler.Run(func() error {
		return s.execute(ctx, logger, logFile, engine, handler)
	})
}

func (s *Scenario) execute(ctx context.Context, logger *zap.SugaredLogger, logFile *LogFile,
	engine *container.Engine, handler *util.InterruptHandler) error {
	logger.Infow("Starting scale test", "test", s.params.TestName, "cluster", s.cfg.ClusterURL)

	if err := engine.Pull(ctx); err != nil {
		return err
	}
	mounts := []container.Mount{
		{HostPath: s.outputDir, ContainerPath: containerOutputDir},
		{HostPath: s.params.SSHKeyPath, ContainerPath: containerKeyPath, ReadOnly: true},
	}
	env := map[string]string{"SSH_KEY_PATH": containerKeyPath}
	if err := engine.Start(ctx, mounts, env); err != nil {
		return err
	}

	client := cluster.New(s.cfg.ClusterCLI, s.cfg.ClusterURL, s.cfg.Security, engine.Runner())
	if err := client.Setup(ctx, s.params.Username, s.params.Password); err != nil {
		return err
	}

	r, err := cluster.StartTokenRefresher(s.cfg.TokenRefreshInterval, func(ctx context.Context) error {
		return client.Login(ctx, s.params.Username, s.params.Password)
	}, logger)
	if err != nil {
		return err
	}
	handler.AddCleanup(r.Stop)

	workDir := path.Join(containerWorkRoot, s.cfg.WorkloadDir)
	if s.cfg.WorkloadRepo != "" {
		logger.Infow("Checking out workload repository", "repo", s.cfg.WorkloadRepo, "branch", s.cfg.WorkloadBranch)
		clone := shell.Command{
			Name: s.cfg.GitCLI,
			Args: []string{"clone", "--branch", s.cfg.WorkloadBranch, s.cfg.WorkloadRepo, workDir},
		}
		if err := engine.Exec(ctx, clone); err != nil {
			return fmt.Errorf("failed to check out workload repository: %w", err)
		}
	}

	infra := infrastructure.NewManager(s.cfg.InfrastructureScript, engine.Runner())
	services := infrastructure.Services{
		Kafka:      s.cfg.KafkaServiceName,
		Zookeeper:  s.cfg.ZookeeperServiceName,
		Cassandra:  s.cfg.CassandraServiceName,
		OutputFile: s.containerPath(s.cfg.InfrastructureOutputFile),
	}
	if s.cfg.InstallInfrastructure {
		logger.Infow("Installing infrastructure services",
			"kafka", services.Kafka, "zookeeper", services.Zookeeper, "cassandra", services.Cassandra)
		if err := infra.Install(ctx, workDir, services); err != nil {
			return err
		}
	}

	var limiter *rate.Limiter
	if s.cfg.DispatcherDeploysPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.DispatcherDeploysPerMin)/60, 1)
	}
	deployer := dispatcher.NewDeployer(client, limiter, logger)
	if s.cfg.DeployDispatchers {
		logger.Infow("Deploying dispatchers", "count", s.cfg.NumDispatchers)
		if _, err := deployer.Deploy(ctx, s.dispatcherSpec(s.cfg.NumDispatchers,
			s.cfg.DispatcherNamePrefix, s.cfg.DispatcherOutputFile)); err != nil {
			return err
		}
	}
	if s.cfg.DeployGPUDispatchers {
		logger.Infow("Deploying GPU dispatchers", "count", s.cfg.NumGPUDispatchers)
		if _, err := deployer.Deploy(ctx, s.dispatcherSpec(s.cfg.NumGPUDispatchers,
			s.cfg.GPUDispatcherNamePrefix, s.cfg.GPUDispatcherOutputFile)); err != nil {
			return err
		}
	}
	if s.cfg.DeployDispatchers || s.cfg.DeployGPUDispatchers {
		if err := dispatcher.MergeDescriptorFiles(
			s.hostPath(mergedDescriptorsFile),
			s.hostPath(dispatcher.JSONOutputFile(s.cfg.DispatcherOutputFile)),
			s.hostPath(dispatcher.JSONOutputFile(s.cfg.GPUDispatcherOutputFile)),
		); err != nil {
			return err
		}
	}

	launcher := workload.NewLauncher(engine.Runner(), workDir)
	if s.cfg.RunStreamingJobs {
		logger.Infow("Launching streaming workloads")
		if err := launcher.RunStreaming(ctx, workload.StreamingSpec{
			Script:                 s.cfg.StreamingScript,
			DispatcherDescriptors:  s.containerPath(dispatcher.JSONOutputFile(s.cfg.DispatcherOutputFile)),
			InfrastructureFile:     services.OutputFile,
			ProducersPerDispatcher: s.cfg.StreamingProducersPerDispatcher,
			ConsumersPerProducer:   s.cfg.StreamingConsumersPerProducer,
			SubmissionsOutputFile:  s.containerPath(s.cfg.StreamingSubmissionsOutputFile),
		}); err != nil {
			return err
		}
	}
	if s.cfg.RunBatchJobs {
		logger.Infow("Deploying batch workloads")
		if err := launcher.DeployBatch(ctx, workload.BatchSpec{
			Script:                s.cfg.BatchScript,
			AppID:                 s.cfg.BatchAppID,
			DispatcherDescriptors: s.containerPath(dispatcher.JSONOutputFile(s.cfg.DispatcherOutputFile)),
			ScriptCPUs:            s.cfg.BatchScriptCPUs,
			ScriptMemMB:           s.cfg.BatchScriptMemMB,
			SubmitsPerMin:         s.cfg.BatchSubmitsPerMin,
		}); err != nil {
			return err
		}
	}
	if s.cfg.RunGPUBatchJobs {
		logger.Infow("Deploying GPU batch workloads")
		if err := launcher.DeployBatch(ctx, workload.BatchSpec{
			Script:                s.cfg.BatchScript,
			AppID:                 s.cfg.BatchAppID + "-gpu",
			DispatcherDescriptors: s.containerPath(dispatcher.JSONOutputFile(s.cfg.GPUDispatcherOutputFile)),
			ScriptCPUs:            s.cfg.BatchScriptCPUs,
			ScriptMemMB:           s.cfg.BatchScriptMemMB,
			SubmitsPerMin:         s.cfg.BatchSubmitsPerMin,
			GPU:                   true,
		}); err != nil {
			return err
		}
	}

	if s.cfg.UninstallInfrastructureAtTheEnd {
		logger.Infow("Uninstalling infrastructure services")
		if err := infra.Uninstall(ctx, client, services); err != nil {
			return err
		}
	}

	if err := logFile.Sync(); err != nil {
		return fmt.Errorf("failed to flush log file %s: %v", logFile.Path, err)
	}
	return s.uploadArtifacts(ctx, logger)
}

// ensureOutputDir resolves the host artifacts directory, creating it when
// needed. The path must be absolute because it is bind-mounted into the
// container.
func (s *Scenario) ensureOutputDir() error {
	dir := s.outputDir
	if dir == "" {
		dir = s.params.TestName
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve artifacts directory %s: %v", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts directory %s: %v", abs, err)
	}
	s.outputDir = abs
	return nil
}

// hostPath and containerPath name the same artifact file from both sides of
// the bind mount.
func (s *Scenario) hostPath(name string) string {
	return filepath.Join(s.outputDir, name)
}

func (s *Scenario) containerPath(name string) string {
	return path.Join(containerOutputDir, name)
}

func (s *Scenario) dispatcherSpec(count int, prefix, outputFile string) dispatcher.Spec {
	spec := dispatcher.DefaultSpec()
	spec.Count = count
	spec.NameBase = prefix
	spec.PackageName = s.cfg.SparkPackageName
	spec.OutputFile = s.hostPath(outputFile)
	spec.OptionsDir = s.outputDir
	spec.OptionsDirMapped = containerOutputDir
	return spec
}

// uploadArtifacts pushes every regular file in the artifacts directory,
// including the run log, to the configured bucket folder.
func (s *Scenario) uploadArtifacts(ctx context.Context, logger *zap.SugaredLogger) error {
	uploader := s.uploader
	if uploader == nil {
		u, err := storage.NewS3Uploader(s.params.S3Bucket, s.params.S3Folder, "", logger)
		if err != nil {
			return err
		}
		uploader = u
	}

	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return fmt.Errorf("failed to list artifacts directory %s: %v", s.outputDir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(s.outputDir, entry.Name()))
		}
	}

	logger.Infow("Uploading artifacts", "count", len(files), "bucket", s.params.S3Bucket, "folder", s.params.S3Folder)
	urls, err := uploader.UploadFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("failed to upload artifacts: %w", err)
	}
	for _, url := range urls {
		logger.Infow("Uploaded artifact", "url", url)
	}
	return nil
}

// teeLogger mirrors the logger's output into the run log so the uploaded
// artifact records harness messages alongside tool output.
func teeLogger(logger *zap.SugaredLogger, logFile *LogFile) *zap.SugaredLogger {
	encoder := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
	fileCore := zapcore.NewCore(encoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return logger.Desugar().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})).Sugar()
}
