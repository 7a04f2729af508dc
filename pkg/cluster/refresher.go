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

package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TokenRefresher re-runs cluster authentication on a fixed interval in the
// background. It deliberately has no synchronization with the main scenario
// flow: a failed refresh is logged and retried on the next tick, and the
// refresher stops when the scenario tears the container down.
type TokenRefresher struct {
	cron   *cron.Cron
	logger *zap.SugaredLogger
}

// StartTokenRefresher schedules login to run every interval until Stop is
// called. The first refresh happens one interval after start; the scenario
// has already authenticated by then.
func StartTokenRefresher(interval time.Duration, login func(context.Context) error, logger *zap.SugaredLogger) (*TokenRefresher, error) {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	_, err := c.AddFunc(spec, func() {
		if err := login(context.Background()); err != nil {
			logger.Warnw("Token refresh failed", "error", err)
			return
		}
		logger.Debugw("Refreshed cluster token")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule token refresh %q: %v", spec, err)
	}
	c.Start()
	logger.Infow("Started background token refresher", "interval", interval.String())
	return &TokenRefresher{cron: c, logger: logger}, nil
}

// Stop cancels the schedule. A refresh already in flight is allowed to
// finish.
func (r *TokenRefresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Infow("Stopped background token refresher")
}
