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

// Package cluster wraps the cluster CLI. The CLI is treated as an opaque
// collaborator: this package only builds argument vectors and parses the JSON
// the CLI prints, it implements none of the cluster's semantics itself.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kubeflow/spark-scale-runner/pkg/config"
	"github.com/kubeflow/spark-scale-runner/pkg/shell"
)

// Client issues commands against one cluster through its CLI.
type Client struct {
	cli      string
	url      string
	security config.Security
	runner   shell.Runner
}

// New returns a Client that invokes the named CLI binary through runner.
func New(cli, url string, security config.Security, runner shell.Runner) *Client {
	return &Client{cli: cli, url: url, security: security, runner: runner}
}

// Setup attaches the CLI to the cluster and logs in. In permissive mode the
// cluster certificate is not verified; strict mode leaves verification on.
func (c *Client) Setup(ctx context.Context, username, password string) error {
	args := []string{
		"cluster", "setup", c.url,
		"--username=" + username,
		"--password=" + password,
	}
	if c.security == config.SecurityPermissive {
		args = append(args, "--insecure")
	}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to set up cluster %s: %w", c.url, err)
	}
	return nil
}

// Login re-authenticates with the cluster. The scenario's background
// refresher calls this periodically so long runs do not lose their token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	args := []string{
		"auth", "login",
		"--username=" + username,
		"--password=" + password,
	}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to log in to cluster %s: %w", c.url, err)
	}
	return nil
}

// InstallPackageCLI installs the CLI subcommand of a package without
// deploying the service.
func (c *Client) InstallPackageCLI(ctx context.Context, name string) error {
	args := []string{"package", "install", name, "--cli", "--yes"}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to install CLI for package %s: %w", name, err)
	}
	return nil
}

// InstallPackage deploys a package as a named service, optionally with an
// options file.
func (c *Client) InstallPackage(ctx context.Context, name, service, optionsPath string) error {
	args := []string{"package", "install", name, "--yes"}
	if optionsPath != "" {
		args = append(args, "--options="+optionsPath)
	}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to install package %s as service %s: %w", name, service, err)
	}
	return nil
}

// UninstallPackage removes the service deployed from a package.
func (c *Client) UninstallPackage(ctx context.Context, name, service string) error {
	args := []string{"package", "uninstall", name, "--app-id=" + service, "--yes"}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to uninstall service %s: %w", service, err)
	}
	return nil
}

// Repo is one entry of the cluster's package repo list.
type Repo struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// PackageRepos lists the registered package repositories.
func (c *Client) PackageRepos(ctx context.Context) ([]Repo, error) {
	out, err := c.runner.Output(ctx, shell.Command{Name: c.cli, Args: []string{"package", "repo", "list", "--json"}})
	if err != nil {
		return nil, fmt.Errorf("failed to list package repos: %w", err)
	}
	var parsed struct {
		Repositories []Repo `json:"repositories"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse package repo list: %v", err)
	}
	return parsed.Repositories, nil
}

// AddPackageRepo registers a package repository.
func (c *Client) AddPackageRepo(ctx context.Context, name, uri string) error {
	args := []string{"package", "repo", "add", name, uri}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to add package repo %s: %w", name, err)
	}
	return nil
}

// Quota is one entry of the dispatcher quota list.
type Quota struct {
	Role string `json:"role"`
}

// Quotas lists the existing role quotas known to the Spark CLI subcommand.
func (c *Client) Quotas(ctx context.Context) ([]Quota, error) {
	out, err := c.runner.Output(ctx, shell.Command{Name: c.cli, Args: []string{"spark", "quota", "list", "--json"}})
	if err != nil {
		return nil, fmt.Errorf("failed to list quotas: %w", err)
	}
	var parsed struct {
		Infos []Quota `json:"infos"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse quota list: %v", err)
	}
	return parsed.Infos, nil
}

// CreateQuota creates a role quota.
func (c *Client) CreateQuota(ctx context.Context, role string, cpus, gpus int, memMB float64) error {
	args := []string{
		"spark", "quota", "create",
		"-c", strconv.Itoa(cpus),
		"-g", strconv.Itoa(gpus),
		"-m", strconv.FormatFloat(memMB, 'f', -1, 64),
		role,
	}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to create quota for role %s: %w", role, err)
	}
	return nil
}

// RemoveQuota deletes a role quota.
func (c *Client) RemoveQuota(ctx context.Context, role string) error {
	args := []string{"spark", "quota", "remove", role}
	if err := c.runner.Run(ctx, shell.Command{Name: c.cli, Args: args}); err != nil {
		return fmt.Errorf("failed to remove quota for role %s: %w", role, err)
	}
	return nil
}
