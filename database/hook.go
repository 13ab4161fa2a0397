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
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var silentMode atomic.Bool

// EnableSilentMode suppresses the query log hooks, e.g. while migrations
// run.
func EnableSilentMode(b bool) {
	silentMode.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

func colorizeQuery(event *bun.QueryEvent) string {
	if c, ok := operationColors[event.Operation()]; ok {
		return c.Sprint(event.Query)
	}
	return color.RedString(event.Query)
}

// SlowQueryHook logs queries whose execution exceeds Threshold. Failed
// queries are ignored; they surface as errors to the caller.
type SlowQueryHook struct {
	Threshold time.Duration
	Logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silentMode.Load() || event.Err != nil || h.Logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.Threshold {
		h.Logger.Warn(color.YellowString("slow query detected"),
			"duration", duration.Round(time.Microsecond),
			"threshold", h.Threshold,
			"query", colorizeQuery(event),
		)
	}
}

// ErrorQueryHook logs failed queries at error level. sql.ErrNoRows and
// sql.ErrTxDone are routine and skipped.
type ErrorQueryHook struct {
	Logger Logger
}

var _ bun.QueryHook = (*ErrorQueryHook)(nil)

func (h *ErrorQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *ErrorQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silentMode.Load() || h.Logger == nil || event.Err == nil {
		return
	}
	if errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone) {
		return
	}
	h.Logger.Error("query failed",
		"kind", Classify(event.Err).String(),
		"error", color.New(color.BgRed).Sprint(event.Err.Error()),
		"query", event.Query,
	)
}
