/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// MetricsHook records query latency and failures as Prometheus metrics,
// labelled by operation and table.
type MetricsHook struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var _ bun.QueryHook = (*MetricsHook)(nil)

// NewMetricsHook creates the collectors and registers them with reg. When
// the collectors are already registered (a second connection in the same
// process) the existing ones are reused.
func NewMetricsHook(reg prometheus.Registerer) (*MetricsHook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crudkit_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crudkit_query_errors_total",
			Help: "Total number of failed database queries",
		},
		[]string{"operation", "table", "kind"},
	)

	if err := reg.Register(duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(failures); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		failures = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &MetricsHook{duration: duration, failures: failures}, nil
}

func (h *MetricsHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *MetricsHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	operation := event.Operation()
	table := ""
	if event.IQuery != nil {
		table = event.IQuery.GetTableName()
	}
	h.duration.WithLabelValues(operation, table).Observe(time.Since(event.StartTime).Seconds())
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.failures.WithLabelValues(operation, table, Classify(event.Err).String()).Inc()
	}
}
