/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


// Package concurrent runs independent units of work on a bounded pool.
package concurrent

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProcessorConfig contains configuration for concurrent processing
type ProcessorConfig struct {
	// MaxWorkers bounds the goroutines in flight. If 0, uses number of CPU cores
	MaxWorkers int

	// ItemTimeout bounds a single unit of work
	ItemTimeout time.Duration

	// TotalTimeout bounds the entire operation
	TotalTimeout time.Duration

	// OnComplete is called after item i finished successfully. It may be
	// called from several goroutines at once.
	OnComplete func(i int)
}

// DefaultProcessorConfig returns a default configuration
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		MaxWorkers:   runtime.NumCPU(),
		ItemTimeout:  5 * time.Minute,
		TotalTimeout: 30 * time.Minute,
	}
}

// Process calls fn for every item with at most MaxWorkers calls in flight.
// Results keep the order of items. The first error cancels the context of
// the remaining calls and is returned.
func Process[T, R any](ctx context.Context, config *ProcessorConfig, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, nil
	}

	if config.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TotalTimeout)
		defer cancel()
	}

	workers := config.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			itemCtx := gctx
			if config.ItemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(gctx, config.ItemTimeout)
				defer cancel()
			}

			r, err := fn(itemCtx, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = r
			if config.OnComplete != nil {
				config.OnComplete(i)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
