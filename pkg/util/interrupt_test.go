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
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubeflow/spark-scale-runner/pkg/util"
)

var _ = Describe("InterruptHandler", func() {
	It("Should run cleanups exactly once", func() {
		calls := 0
		handler := util.NewInterruptHandler(func() { calls++ })
		Expect(handler.Run(func() error { return nil })).To(Succeed())
		handler.Close()
		handler.Close()
		Expect(calls).To(Equal(1))
	})

	It("Should return the protected function's error after cleanup", func() {
		cleaned := false
		handler := util.NewInterruptHandler(func() { cleaned = true })
		err := handler.Run(func() error { return fmt.Errorf("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(cleaned).To(BeTrue())
	})

	It("Should run cleanups registered during Run, latest first", func() {
		var order []string
		handler := util.NewInterruptHandler(func() { order = append(order, "container") })
		Expect(handler.Run(func() error {
			handler.AddCleanup(func() { order = append(order, "refresher") })
			return nil
		})).To(Succeed())
		Expect(order).To(Equal([]string{"refresher", "container"}))
	})

	It("Should tolerate concurrent registration", func() {
		handler := util.NewInterruptHandler()
		var registered sync.WaitGroup
		calls := 0
		Expect(handler.Run(func() error {
			for i := 0; i < 8; i++ {
				registered.Add(1)
				go func() {
					defer registered.Done()
					handler.AddCleanup(func() { calls++ })
				}()
			}
			registered.Wait()
			return nil
		})).To(Succeed())
		Expect(calls).To(Equal(8))
	})
})
