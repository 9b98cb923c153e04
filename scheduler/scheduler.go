/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package scheduler implements the worker pool the Parser and TypeCheck
// services fan work out to. Parallelism is gated per batch by the caller
// (the Recheck Engine decides based on how many files are being checked),
// never by the Scheduler itself deciding on its own.
package scheduler

import "sync"

// Scheduler holds a fixed worker budget and the current parallel gate.
// WithParallel returns a copy carrying a new gate value; the Scheduler
// itself is otherwise immutable once constructed.
type Scheduler struct {
	workers  int
	parallel bool
}

// New creates a Scheduler with the given worker budget. A budget <= 0 is
// treated as 1 (sequential) worker.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{workers: workers}
}

// WithParallel returns a Scheduler sharing the same worker budget but with
// the given parallel gate. This is the "scheduler' = with_parallel(...)"
// step of the Recheck Engine.
func (s *Scheduler) WithParallel(parallel bool) *Scheduler {
	return &Scheduler{workers: s.workers, parallel: parallel}
}

// Parallel reports the current gate value.
func (s *Scheduler) Parallel() bool {
	return s.parallel
}

// Run applies fn to every item. When the gate is closed, items run in
// order on the calling goroutine. When open, up to workers run
// concurrently; Run still blocks until all results are in, since the
// Dispatcher never observes partial completion of a batch.
func Run[T any, R any](s *Scheduler, items []T, fn func(T) R) []R {
	results := make([]R, len(items))
	if !s.parallel || len(items) <= 1 || s.workers <= 1 {
		for i, item := range items {
			results[i] = fn(item)
		}
		return results
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(item)
		}(i, item)
	}
	wg.Wait()
	return results
}
