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
)

// MergeDescriptorFiles concatenates the JSON descriptor lists in srcs into a
// single list at dst. Sources that do not exist are skipped, so a scenario
// that deployed only one dispatcher variant still produces a combined
// artifact.
func MergeDescriptorFiles(dst string, srcs ...string) error {
	var merged []Dispatcher
	for _, src := range srcs {
		data, err := os.ReadFile(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read descriptor file %s: %v", src, err)
		}
		var dispatchers []Dispatcher
		if err := json.Unmarshal(data, &dispatchers); err != nil {
			return fmt.Errorf("failed to parse descriptor file %s: %v", src, err)
		}
		merged = append(merged, dispatchers...)
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize merged descriptor list: %v", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write merged descriptor file %s: %v", dst, err)
	}
	return nil
}
