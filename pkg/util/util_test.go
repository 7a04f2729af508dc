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

package util_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubeflow/spark-scale-runner/pkg/util"
)

var _ = Describe("ParseStrictBool", func() {
	It("Should accept true and false", func() {
		v, err := util.ParseStrictBool("true")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeTrue())

		v, err = util.ParseStrictBool("false")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeFalse())
	})

	It("Should reject anything else", func() {
		for _, s := range []string{"", "True", "FALSE", "1", "0", "yes", "t"} {
			_, err := util.ParseStrictBool(s)
			Expect(err).To(HaveOccurred())
		}
	})
})

var _ = Describe("CheckFileNonEmpty", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("Should accept a file with content", func() {
		path := filepath.Join(dir, "config.env")
		Expect(os.WriteFile(path, []byte("SECURITY=permissive\n"), 0o600)).To(Succeed())
		Expect(util.CheckFileNonEmpty(path)).To(Succeed())
	})

	It("Should reject a missing file", func() {
		Expect(util.CheckFileNonEmpty(filepath.Join(dir, "nope"))).NotTo(Succeed())
	})

	It("Should reject an empty file", func() {
		path := filepath.Join(dir, "empty")
		Expect(os.WriteFile(path, nil, 0o600)).To(Succeed())
		Expect(util.CheckFileNonEmpty(path)).NotTo(Succeed())
	})

	It("Should reject a directory", func() {
		Expect(util.CheckFileNonEmpty(dir)).NotTo(Succeed())
	})
})
