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
// Package heap implements the Shared Heap Interface: process-wide
// content-addressed storage of parsed sources and the facts the Parser
// Service extracts from them. It is written to only while the Dispatcher
// is processing a request (via the Parser Service it invokes, whose
// workers may store sources concurrently when the parallel gate is open),
// so every method takes the Heap's own lock.
package heap

import (
	"runtime"
	"runtime/debug"
	"sync"

	"dyncheckd.dev/server/sourcefile"
)

// CollectMode selects the aggressiveness of Collect.
type CollectMode int

const (
	CollectNormal CollectMode = iota
	CollectAggressive
)

// Entry is everything the heap remembers about one parsed source file.
type Entry struct {
	Source []byte
}

// Heap is the Shared Heap: get_source, remove_paths, collect, heap_use_ratio.
type Heap struct {
	mu       sync.RWMutex
	entries  map[sourcefile.FileHandle]*Entry
	bytes    int64
	maxBytes int64
}

// New creates a Heap whose heap_use_ratio is computed against maxBytes.
func New(maxBytes int64) *Heap {
	return &Heap{
		entries:  make(map[sourcefile.FileHandle]*Entry),
		maxBytes: maxBytes,
	}
}

// Put installs or replaces the parsed source for handle.
func (h *Heap) Put(handle sourcefile.FileHandle, source []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.entries[handle]; ok {
		h.bytes -= int64(len(existing.Source))
	}
	h.entries[handle] = &Entry{Source: source}
	h.bytes += int64(len(source))
}

// GetSource returns the stored source for handle, if present.
func (h *Heap) GetSource(handle sourcefile.FileHandle) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[handle]
	if !ok {
		return nil, false
	}
	return e.Source, true
}

// RemovePaths drops the given handles from the heap.
func (h *Heap) RemovePaths(handles []sourcefile.FileHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, handle := range handles {
		if e, ok := h.entries[handle]; ok {
			h.bytes -= int64(len(e.Source))
			delete(h.entries, handle)
		}
	}
}

// HeapUseRatio returns bytes-in-use over the configured ceiling. A ceiling
// of 0 always reports 0 (compaction never triggers) rather than dividing by
// zero.
func (h *Heap) HeapUseRatio() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.maxBytes <= 0 {
		return 0
	}
	return float64(h.bytes) / float64(h.maxBytes)
}

// Bytes returns the current heap byte count, used for the
// "shared memory size" metric emitted by the Recheck Engine.
func (h *Heap) Bytes() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bytes
}

// Collect runs a collection pass. CollectAggressive forces a full GC cycle
// and returns freed pages to the OS; CollectNormal is a no-op placeholder
// for whatever lighter bookkeeping a real heap implementation would do.
func (h *Heap) Collect(mode CollectMode) {
	if mode == CollectAggressive {
		runtime.GC()
		debug.FreeOSMemory()
	}
}
