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
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var terminationSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// InterruptHandler guarantees exactly-once execution of cleanup functions,
// whether the critical section finishes normally or the process receives a
// termination signal. The scenario driver uses it to tear the work container
// down even when a run is interrupted.
type InterruptHandler struct {
	mu      sync.Mutex
	cleanup []func()
	once    sync.Once
	ch      chan os.Signal
}

// NewInterruptHandler returns a handler that will run the given cleanup
// functions. Cleanups run in reverse registration order, so resources
// acquired later are released first.
func NewInterruptHandler(cleanup ...func()) *InterruptHandler {
	return &InterruptHandler{cleanup: cleanup}
}

// AddCleanup registers an additional cleanup function. It is safe to call
// while Run is executing, which lets the protected section register cleanups
// for resources it acquires along the way.
func (h *InterruptHandler) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanup = append(h.cleanup, fn)
}

// Run executes fn inside the protected section. If a termination signal
// arrives while fn is running, cleanup executes and the process exits 1,
// since the run is by definition incomplete. On normal return, cleanup runs
// and fn's error is returned.
func (h *InterruptHandler) Run(fn func() error) error {
	h.ch = make(chan os.Signal, 1)
	signal.Notify(h.ch, terminationSignals...)
	defer func() {
		signal.Stop(h.ch)
		close(h.ch)
		h.Close()
	}()

	go func() {
		if _, ok := <-h.ch; !ok {
			return
		}
		h.Close()
		os.Exit(1)
	}()

	return fn()
}

// Close runs the cleanup functions if they have not run yet, in reverse
// registration order.
func (h *InterruptHandler) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		cleanup := make([]func(), len(h.cleanup))
		copy(cleanup, h.cleanup)
		h.mu.Unlock()
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	})
}
