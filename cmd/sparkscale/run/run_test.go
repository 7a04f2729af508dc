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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) error {
	cmd := NewCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "CLUSTER_URL=https://cluster.example.com\nCONTAINER_IMAGE=example/work:1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunRejectsTooFewArgs(t *testing.T) {
	err := execute("config.env", "test", "bucket")
	assert.Error(t, err)
}

func TestRunRejectsBadMode(t *testing.T) {
	err := execute("config.env", "test", "bucket", "folder", "key", "user", "pass", "sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := execute(filepath.Join(t.TempDir(), "missing.env"), "test", "bucket", "folder", "key", "user", "pass")
	assert.Error(t, err)
}

func TestRunRejectsBadSSHKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

	err := execute(writeConfig(t), "test", "bucket", "folder", keyPath, "user", "pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SSH key")
}

func TestRunArgsContract(t *testing.T) {
	cmd := NewCommand()
	assert.NoError(t, cmd.Args(&cobra.Command{}, make([]string, 7)))
	assert.NoError(t, cmd.Args(&cobra.Command{}, make([]string, 8)))
	assert.Error(t, cmd.Args(&cobra.Command{}, make([]string, 6)))
	assert.Error(t, cmd.Args(&cobra.Command{}, make([]string, 9)))
}
