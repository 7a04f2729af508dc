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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubeflow/spark-scale-runner/pkg/util"
)

var _ = Describe("ValidatePrivateKeyFile", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeKey := func(name string) string {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		Expect(err).NotTo(HaveOccurred())
		block := &pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, pem.EncodeToMemory(block), 0o600)).To(Succeed())
		return path
	}

	It("Should accept a PEM encoded RSA key", func() {
		Expect(util.ValidatePrivateKeyFile(writeKey("id_rsa"))).To(Succeed())
	})

	It("Should reject a missing file", func() {
		Expect(util.ValidatePrivateKeyFile(filepath.Join(dir, "absent"))).NotTo(Succeed())
	})

	It("Should reject garbage", func() {
		path := filepath.Join(dir, "garbage")
		Expect(os.WriteFile(path, []byte("not a key"), 0o600)).To(Succeed())
		Expect(util.ValidatePrivateKeyFile(path)).NotTo(Succeed())
	})
})
