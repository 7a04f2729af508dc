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

// Package dispatcher deploys Spark dispatcher services through the cluster
// CLI. A deployment takes a base service name, derives `<base>-<i>` names,
// creates driver and executor role quotas for each instance, and installs the
// dispatcher package with per-instance options. The resulting service names
// and roles are recorded in a plain output file and a JSON descriptor list
// consumed by the workload drivers.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kubeflow/spark-scale-runner/pkg/cluster"
)

// Spec describes one dispatcher deployment batch.
type Spec struct {
	Count       int
	NameBase    string
	OutputFile  string
	PackageName string
	PackageRepo string

	CPUs     int
	MemMB    float64
	GPUs     int
	Role     string
	User     string
	LogLevel string

	ServiceAccount string
	ServiceSecret  string

	HistoryServiceURL string
	HDFSConfigURL     string

	KerberosEnabled bool
	KDCHostname     string
	KDCPort         int
	KerberosRealm   string

	UCRContainerizer bool

	CreateQuotas   bool
	DriversQuota   QuotaSpec
	ExecutorsQuota QuotaSpec

	// OptionsFile overrides the generated default options document.
	OptionsFile string

	// OptionsDir is where per-instance options files are written; empty
	// means the system temp directory. OptionsDirMapped is the same
	// directory as seen by the cluster CLI, for setups where the CLI runs
	// inside a container with OptionsDir mounted; empty means OptionsDir.
	OptionsDir       string
	OptionsDirMapped string
}

// QuotaSpec is the resource quota attached to a drivers or executors role.
type QuotaSpec struct {
	CPUs  int
	GPUs  int
	MemMB float64
}

// DefaultSpec returns a Spec with the package defaults filled in.
func DefaultSpec() Spec {
	return Spec{
		PackageName:      "spark",
		CPUs:             1,
		MemMB:            1024.0,
		Role:             "*",
		User:             "root",
		LogLevel:         "INFO",
		KDCPort:          88,
		UCRContainerizer: true,
		CreateQuotas:     true,
		DriversQuota:     QuotaSpec{CPUs: 1, MemMB: 2048.0},
		ExecutorsQuota:   QuotaSpec{CPUs: 1, MemMB: 1524.0},
	}
}

// Dispatcher records one deployed instance.
type Dispatcher struct {
	Service       string `json:"service"`
	DriversRole   string `json:"driversRole"`
	ExecutorsRole string `json:"executorsRole"`
}

// ClusterAPI is the slice of the cluster client the deployer needs.
type ClusterAPI interface {
	InstallPackageCLI(ctx context.Context, name string) error
	InstallPackage(ctx context.Context, name, service, optionsPath string) error
	PackageRepos(ctx context.Context) ([]cluster.Repo, error)
	AddPackageRepo(ctx context.Context, name, uri string) error
	Quotas(ctx context.Context) ([]cluster.Quota, error)
	CreateQuota(ctx context.Context, role string, cpus, gpus int, memMB float64) error
	RemoveQuota(ctx context.Context, role string) error
}

// Deployer installs dispatcher batches.
type Deployer struct {
	api     ClusterAPI
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewDeployer returns a Deployer. A nil limiter disables throttling.
func NewDeployer(api ClusterAPI, limiter *rate.Limiter, logger *zap.SugaredLogger) *Deployer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Deployer{api: api, limiter: limiter, logger: logger}
}

// Deploy installs spec.Count dispatchers and writes the output files. It
// returns the deployed instances in order.
func (d *Deployer) Deploy(ctx context.Context, spec Spec) ([]Dispatcher, error) {
	if spec.Count <= 0 {
		return nil, fmt.Errorf("invalid dispatcher count %d", spec.Count)
	}
	if spec.NameBase == "" {
		return nil, fmt.Errorf("dispatcher service name base must not be empty")
	}

	options, err := d.loadOptions(spec)
	if err != nil {
		return nil, err
	}

	if err := d.api.InstallPackageCLI(ctx, spec.PackageName); err != nil {
		return nil, err
	}

	if spec.PackageRepo != "" {
		if err := d.ensurePackageRepo(ctx, spec); err != nil {
			return nil, err
		}
	}

	dispatchers := make([]Dispatcher, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for deployment slot: %v", err)
		}

		instance := Dispatcher{
			Service:       fmt.Sprintf("%s-%d", spec.NameBase, i),
			DriversRole:   fmt.Sprintf("%s-%d-drivers-role", spec.NameBase, i),
			ExecutorsRole: fmt.Sprintf("%s-%d-executors-role", spec.NameBase, i),
		}

		if spec.CreateQuotas {
			if err := d.replaceQuota(ctx, instance.DriversRole, spec.DriversQuota); err != nil {
				return nil, err
			}
			if err := d.replaceQuota(ctx, instance.ExecutorsRole, spec.ExecutorsQuota); err != nil {
				return nil, err
			}
		}

		options.SetServiceName(instance.Service)
		options.SetRole(instance.DriversRole)

		optionsPath, err := writeInstanceOptions(options, spec, instance.Service)
		if err != nil {
			return nil, err
		}
		if err := d.api.InstallPackage(ctx, spec.PackageName, instance.Service, optionsPath); err != nil {
			return nil, err
		}

		d.logger.Infow("Deployed dispatcher",
			"service", instance.Service,
			"driversRole", instance.DriversRole,
			"executorsRole", instance.ExecutorsRole)
		dispatchers = append(dispatchers, instance)
	}

	if err := writeOutputs(spec.OutputFile, dispatchers); err != nil {
		return nil, err
	}
	return dispatchers, nil
}

func (d *Deployer) loadOptions(spec Spec) (Options, error) {
	if spec.OptionsFile != "" {
		return LoadOptionsFile(spec.OptionsFile)
	}
	return DefaultOptions(spec), nil
}

func (d *Deployer) ensurePackageRepo(ctx context.Context, spec Spec) error {
	repos, err := d.api.PackageRepos(ctx)
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if repo.URI == spec.PackageRepo {
			return nil
		}
	}
	return d.api.AddPackageRepo(ctx, spec.NameBase+"-repo", spec.PackageRepo)
}

// replaceQuota removes a stale quota for the role, if any, then creates the
// requested one.
func (d *Deployer) replaceQuota(ctx context.Context, role string, q QuotaSpec) error {
	existing, err := d.api.Quotas(ctx)
	if err != nil {
		return err
	}
	for _, quota := range existing {
		if quota.Role == role {
			if err := d.api.RemoveQuota(ctx, role); err != nil {
				return err
			}
			break
		}
	}
	return d.api.CreateQuota(ctx, role, q.CPUs, q.GPUs, q.MemMB)
}

// writeInstanceOptions persists the rendered options document for one
// dispatcher and returns the path the cluster CLI should read it from.
// When OptionsDirMapped is set the file is written under OptionsDir but
// installed via the mapped path, which covers CLIs running inside a
// container with OptionsDir mounted elsewhere.
func writeInstanceOptions(options Options, spec Spec, service string) (string, error) {
	dir := spec.OptionsDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("options-%s.json", service)
	if err := options.WriteFile(filepath.Join(dir, name)); err != nil {
		return "", err
	}
	if spec.OptionsDirMapped != "" {
		return path.Join(spec.OptionsDirMapped, name), nil
	}
	return filepath.Join(dir, name), nil
}

// writeOutputs records the batch as `service,driversRole,executorsRole`
// lines and as a JSON descriptor list next to the plain file.
func writeOutputs(outputFile string, dispatchers []Dispatcher) error {
	if outputFile == "" {
		return nil
	}
	var lines strings.Builder
	for _, instance := range dispatchers {
		fmt.Fprintf(&lines, "%s,%s,%s\n", instance.Service, instance.DriversRole, instance.ExecutorsRole)
	}
	if err := os.WriteFile(outputFile, []byte(lines.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write dispatcher list %s: %v", outputFile, err)
	}

	data, err := json.MarshalIndent(dispatchers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize dispatcher list: %v", err)
	}
	jsonFile := JSONOutputFile(outputFile)
	if err := os.WriteFile(jsonFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write dispatcher list %s: %v", jsonFile, err)
	}
	return nil
}

// JSONOutputFile derives the JSON descriptor path from the plain output
// file path.
func JSONOutputFile(outputFile string) string {
	ext := filepath.Ext(outputFile)
	return strings.TrimSuffix(outputFile, ext) + ".json"
}
