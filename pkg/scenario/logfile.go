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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LogFile is the timestamped run log. Everything the run prints, tool output
// and harness messages alike, is mirrored into it so the uploaded artifact
// tells the full story of the run.
type LogFile struct {
	Path string
	file *os.File
}

// OpenLogFile creates the run log under dir. The name embeds the test name,
// a timestamp and a short random suffix so repeated runs never clobber each
// other's logs.
func OpenLogFile(dir, testName string) (*LogFile, error) {
	name := fmt.Sprintf("%s-%s-%s.log", testName, time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %v", path, err)
	}
	return &LogFile{Path: path, file: f}, nil
}

func (l *LogFile) Write(p []byte) (int, error) {
	return l.file.Write(p)
}

// Sync flushes the log to disk. Called before the log is uploaded.
func (l *LogFile) Sync() error {
	return l.file.Sync()
}

func (l *LogFile) Close() error {
	return l.file.Close()
}
