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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptors(t *testing.T, dir, name string, dispatchers []Dispatcher) string {
	t.Helper()
	data, err := json.Marshal(dispatchers)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestMergeDescriptorFiles(t *testing.T) {
	dir := t.TempDir()
	cpu := writeDescriptors(t, dir, "cpu.json", []Dispatcher{
		{Service: "spark-0", DriversRole: "spark-0-drivers-role", ExecutorsRole: "spark-0-executors-role"},
		{Service: "spark-1", DriversRole: "spark-1-drivers-role", ExecutorsRole: "spark-1-executors-role"},
	})
	gpu := writeDescriptors(t, dir, "gpu.json", []Dispatcher{
		{Service: "spark-gpu-0", DriversRole: "spark-gpu-0-drivers-role", ExecutorsRole: "spark-gpu-0-executors-role"},
	})

	dst := filepath.Join(dir, "all.json")
	require.NoError(t, MergeDescriptorFiles(dst, cpu, gpu))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	var merged []Dispatcher
	require.NoError(t, json.Unmarshal(data, &merged))
	require.Len(t, merged, 3)
	assert.Equal(t, "spark-0", merged[0].Service)
	assert.Equal(t, "spark-gpu-0", merged[2].Service)
}

func TestMergeSkipsMissingSources(t *testing.T) {
	dir := t.TempDir()
	cpu := writeDescriptors(t, dir, "cpu.json", []Dispatcher{
		{Service: "spark-0", DriversRole: "d", ExecutorsRole: "e"},
	})

	dst := filepath.Join(dir, "all.json")
	require.NoError(t, MergeDescriptorFiles(dst, cpu, filepath.Join(dir, "gpu.json")))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	var merged []Dispatcher
	require.NoError(t, json.Unmarshal(data, &merged))
	assert.Len(t, merged, 1)
}

func TestMergeRejectsBadSource(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o600))

	err := MergeDescriptorFiles(filepath.Join(dir, "all.json"), bad)
	assert.Error(t, err)
}
