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

package dispatcher

import (
	"encoding/json"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Options is the installation options document passed to the package
// install command. Its schema is owned by the dispatcher package; the
// harness only injects the per-instance service name and driver role.
type Options map[string]interface{}

// DefaultOptions builds the options document for a Spec, mirroring the
// defaults the dispatcher package ships with.
func DefaultOptions(spec Spec) Options {
	return Options{
		"service": map[string]interface{}{
			"cpus":                        spec.CPUs,
			"mem":                         spec.MemMB,
			"gpus":                        spec.GPUs,
			"role":                        spec.Role,
			"service_account":             spec.ServiceAccount,
			"service_account_secret":      spec.ServiceSecret,
			"user":                        spec.User,
			"log-level":                   spec.LogLevel,
			"spark-history-server-url":    spec.HistoryServiceURL,
			"UCR_containerizer":           spec.UCRContainerizer,
			"use_bootstrap_for_IP_detect": false,
		},
		"security": map[string]interface{}{
			"kerberos": map[string]interface{}{
				"enabled": spec.KerberosEnabled,
				"kdc": map[string]interface{}{
					"hostname": spec.KDCHostname,
					"port":     spec.KDCPort,
				},
				"realm": spec.KerberosRealm,
			},
		},
		"hdfs": map[string]interface{}{
			"config-url": spec.HDFSConfigURL,
		},
	}
}

// LoadOptionsFile reads an options document from a YAML or JSON file.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file %s: %v", path, err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse options file %s: %v", path, err)
	}
	return opts, nil
}

func (o Options) serviceSection() map[string]interface{} {
	section, ok := o["service"].(map[string]interface{})
	if !ok {
		section = map[string]interface{}{}
		o["service"] = section
	}
	return section
}

// SetServiceName injects the per-instance service name.
func (o Options) SetServiceName(name string) {
	o.serviceSection()["name"] = name
}

// SetRole injects the per-instance driver role.
func (o Options) SetRole(role string) {
	o.serviceSection()["role"] = role
}

// WriteFile serializes the options to a JSON file for the package install
// command.
func (o Options) WriteFile(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize options: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write options file %s: %v", path, err)
	}
	return nil
}
