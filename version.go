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

package sparkscalerunner

import (
	"fmt"
	"runtime"
)

// Stamped at build time via -ldflags.
var (
	version   = "0.0.0"                // value from VERSION file
	buildDate = "1970-01-01T00:00:00Z" // output from `date -u +'%Y-%m-%dT%H:%M:%SZ'`
	gitCommit = ""                     // output from `git rev-parse HEAD`
)

// VersionString combines the release version with the short commit hash,
// e.g. "1.2.0+ab12cd3", or "+unknown" when the binary was built outside git.
func VersionString() string {
	if len(gitCommit) >= 7 {
		return version + "+" + gitCommit[0:7]
	}
	return version + "+unknown"
}

// PrintVersion info directly by command
func PrintVersion(short bool) {
	fmt.Printf("Spark Scale Runner Version: %s\n", VersionString())
	if short {
		return
	}
	fmt.Printf("Build Date: %s\n", buildDate)
	fmt.Printf("Git Commit ID: %s\n", gitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
