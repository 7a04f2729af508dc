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

package util

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// ValidatePrivateKeyFile checks that path holds a parseable, unencrypted SSH
// private key. The key is mounted into the work container and used by the
// cluster tooling, so a bad key should fail the run during validation rather
// than deep inside a scenario step.
func ValidatePrivateKeyFile(path string) error {
	if err := CheckFileNonEmpty(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read key file %s: %v", path, err)
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		return fmt.Errorf("failed to parse private key %s: %v", path, err)
	}
	return nil
}
