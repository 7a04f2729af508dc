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

package scenario

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kubeflow/spark-scale-runner/pkg/config"
	"github.com/kubeflow/spark-scale-runner/pkg/shell"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	failOn   string
}

func (f *fakeRunner) record(cmd shell.Command) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := cmd.String()
	f.commands = append(f.commands, s)
	return s
}

func (f *fakeRunner) Run(_ context.Context, cmd shell.Command) error {
	s := f.record(cmd)
	if f.failOn != "" && strings.Contains(s, f.failOn) {
		return fmt.Errorf("command failed: %s", s)
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, cmd shell.Command) (string, error) {
	s := f.record(cmd)
	if f.failOn != "" && strings.Contains(s, f.failOn) {
		return "", fmt.Errorf("command failed: %s", s)
	}
	return "{}", nil
}

func (f *fakeRunner) indexOf(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cmd := range f.commands {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}

type fakeUploader struct {
	files []string
}

func (u *fakeUploader) UploadFiles(_ context.Context, files []string) ([]string, error) {
	u.files = append(u.files, files...)
	urls := make([]string, len(files))
	for i, f := range files {
		urls[i] = "s3://bucket/folder/" + filepath.Base(f)
	}
	return urls, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ClusterURL:       "https://cluster.example.com",
		Security:         config.SecurityPermissive,
		ContainerRuntime: "docker",
		ContainerImage:   "example/work:1",
		ContainerName:    "scale-work",
		ClusterCLI:       "dcos",
		GitCLI:           "git",

		WorkloadRepo:   "https://github.com/example/workloads",
		WorkloadBranch: "master",
		WorkloadDir:    "spark-build",

		InstallInfrastructure:    true,
		InfrastructureScript:     "scale-tests/setup-streaming.py",
		InfrastructureOutputFile: "infrastructure.json",
		KafkaServiceName:         "kafka",
		ZookeeperServiceName:     "kafka-zookeeper",
		CassandraServiceName:     "cassandra",

		SparkPackageName: "spark",

		DeployDispatchers:    true,
		NumDispatchers:       2,
		DispatcherNamePrefix: "perf-spark",
		DispatcherOutputFile: "dispatchers.out",

		DeployGPUDispatchers:    true,
		NumGPUDispatchers:       1,
		GPUDispatcherNamePrefix: "perf-spark-gpu",
		GPUDispatcherOutputFile: "gpu-dispatchers.out",

		RunStreamingJobs:                true,
		StreamingScript:                 "scale-tests/kafka-cassandra-streaming-test.py",
		StreamingProducersPerDispatcher: 1,
		StreamingConsumersPerProducer:   1,
		StreamingSubmissionsOutputFile:  "streaming-submissions.out",

		RunBatchJobs:       true,
		RunGPUBatchJobs:    true,
		BatchScript:        "scale-tests/deploy-batch-marathon-app.py",
		BatchAppID:         "batch-workload",
		BatchScriptCPUs:    2,
		BatchScriptMemMB:   4096,
		BatchSubmitsPerMin: 1,

		UninstallInfrastructureAtTheEnd: true,

		TokenRefreshInterval: time.Hour,
	}
}

func testParams() Params {
	return Params{
		TestName:   "scale-2026",
		S3Bucket:   "perf-results",
		S3Folder:   "scale-2026",
		SSHKeyPath: "/home/user/.ssh/id_rsa",
		Username:   "admin",
		Password:   "secret",
		Mode:       config.ModeNonInteractive,
	}
}

func newTestScenario(t *testing.T, cfg *config.Config) (*Scenario, *fakeRunner, *fakeUploader) {
	runner := &fakeRunner{}
	uploader := &fakeUploader{}
	s, err := New(cfg, testParams(), zap.NewNop().Sugar(),
		WithRunner(runner), WithUploader(uploader), WithOutputDir(t.TempDir()))
	require.NoError(t, err)
	return s, runner, uploader
}

func TestRunSequence(t *testing.T) {
	s, runner, uploader := newTestScenario(t, testConfig())
	require.NoError(t, s.Run(context.Background()))

	steps := []string{
		"docker pull example/work:1",
		"docker run --detach --name scale-work",
		"dcos cluster setup https://cluster.example.com",
		"git clone --branch master https://github.com/example/workloads /work/spark-build",
		"setup-streaming.py",
		"package install spark --cli --yes",
		"kafka-cassandra-streaming-test.py",
		"deploy-batch-marathon-app.py batch-workload",
		"deploy-batch-marathon-app.py batch-workload-gpu",
		"package uninstall kafka",
		"docker rm --force scale-work",
	}
	last := -1
	for _, step := range steps {
		idx := runner.indexOf(step)
		require.GreaterOrEqual(t, idx, 0, "missing step %q", step)
		assert.Greater(t, idx, last, "step %q out of order", step)
		last = idx
	}

	var names []string
	for _, f := range uploader.files {
		names = append(names, filepath.Base(f))
	}
	assert.Contains(t, names, "dispatchers.out")
	assert.Contains(t, names, "dispatchers.json")
	assert.Contains(t, names, "gpu-dispatchers.json")
	assert.Contains(t, names, "all-dispatchers.json")
	logs := 0
	for _, name := range names {
		if strings.HasPrefix(name, "scale-2026-") && strings.HasSuffix(name, ".log") {
			logs++
		}
	}
	assert.Equal(t, 1, logs, "run log should be uploaded")
}

func TestRunDeploysAllDispatchers(t *testing.T) {
	s, runner, _ := newTestScenario(t, testConfig())
	require.NoError(t, s.Run(context.Background()))

	installs := 0
	runner.mu.Lock()
	for _, cmd := range runner.commands {
		if strings.Contains(cmd, "package install spark --yes") {
			installs++
		}
	}
	runner.mu.Unlock()
	assert.Equal(t, 3, installs, "two CPU dispatchers plus one GPU dispatcher")
	assert.GreaterOrEqual(t, runner.indexOf("--options=/output/options-perf-spark-0.json"), 0)
	assert.GreaterOrEqual(t, runner.indexOf("--options=/output/options-perf-spark-gpu-0.json"), 0)
}

func TestRunThrottlesDispatcherDeploys(t *testing.T) {
	cfg := testConfig()
	cfg.DispatcherDeploysPerMin = 3000

	s, _, _ := newTestScenario(t, cfg)
	start := time.Now()
	require.NoError(t, s.Run(context.Background()))

	// Three dispatcher installs at 3000/min (one token per 20ms) means
	// at least two waits on the shared limiter.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRunSkipsDisabledSteps(t *testing.T) {
	cfg := testConfig()
	cfg.InstallInfrastructure = false
	cfg.DeployDispatchers = false
	cfg.DeployGPUDispatchers = false
	cfg.RunStreamingJobs = false
	cfg.RunBatchJobs = false
	cfg.RunGPUBatchJobs = false
	cfg.UninstallInfrastructureAtTheEnd = false

	s, runner, uploader := newTestScenario(t, cfg)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, -1, runner.indexOf("setup-streaming.py"))
	assert.Equal(t, -1, runner.indexOf("package install"))
	assert.Equal(t, -1, runner.indexOf("streaming-test.py"))
	assert.Equal(t, -1, runner.indexOf("deploy-batch-marathon-app.py"))
	assert.Equal(t, -1, runner.indexOf("package uninstall"))

	assert.GreaterOrEqual(t, runner.indexOf("docker pull"), 0)
	assert.GreaterOrEqual(t, runner.indexOf("cluster setup"), 0)
	assert.GreaterOrEqual(t, runner.indexOf("docker rm --force"), 0)
	assert.NotEmpty(t, uploader.files, "the run log is always uploaded")
}

func TestRunFailsFastAndCleansUp(t *testing.T) {
	s, runner, uploader := newTestScenario(t, testConfig())
	runner.failOn = "setup-streaming.py"

	err := s.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, -1, runner.indexOf("package install spark"), "no deploys after infrastructure failure")
	assert.Equal(t, -1, runner.indexOf("streaming-test.py"))
	assert.GreaterOrEqual(t, runner.indexOf("docker rm --force scale-work"), 0, "container removed on failure")
	assert.Empty(t, uploader.files, "nothing uploaded on failure")
}

func TestRunMountsArtifactsAndKey(t *testing.T) {
	s, runner, _ := newTestScenario(t, testConfig())
	require.NoError(t, s.Run(context.Background()))

	idx := runner.indexOf("docker run --detach")
	require.GreaterOrEqual(t, idx, 0)
	runner.mu.Lock()
	start := runner.commands[idx]
	runner.mu.Unlock()
	assert.Contains(t, start, ":/output")
	assert.Contains(t, start, "/home/user/.ssh/id_rsa:/ssh/key:ro")
	assert.Contains(t, start, "SSH_KEY_PATH=/ssh/key")
}

func TestNewRejectsEmptyParams(t *testing.T) {
	logger := zap.NewNop().Sugar()

	params := testParams()
	params.TestName = ""
	_, err := New(testConfig(), params, logger)
	assert.Error(t, err)

	params = testParams()
	params.S3Bucket = ""
	_, err = New(testConfig(), params, logger)
	assert.Error(t, err)

	params = testParams()
	params.Password = ""
	_, err = New(testConfig(), params, logger)
	assert.Error(t, err)
}

func TestOpenLogFileNaming(t *testing.T) {
	dir := t.TempDir()
	lf, err := OpenLogFile(dir, "scale-2026")
	require.NoError(t, err)
	defer lf.Close()

	name := filepath.Base(lf.Path)
	assert.True(t, strings.HasPrefix(name, "scale-2026-"), name)
	assert.True(t, strings.HasSuffix(name, ".log"), name)

	_, err = lf.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, lf.Sync())
}
