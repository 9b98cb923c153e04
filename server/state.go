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
package server

import (
	"sync"

	"dyncheckd.dev/server/cmd/config"
	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/heap"
	"dyncheckd.dev/server/lookup"
	"dyncheckd.dev/server/parser"
	"dyncheckd.dev/server/scheduler"
	"dyncheckd.dev/server/sourcefile"
	"dyncheckd.dev/server/typecheck"
)

// connections is the mutable record of transport-lifecycle state the
// server's lock guards: any file-change notifiers feeding the server and
// the set of persistently-connected clients. The listening socket itself
// is owned by transport.Server.
type connections struct {
	fileNotifiers     []string
	persistentClients []ClientKind
}

// ServerState is the singleton the Dispatcher mutates. Everything but
// connections is touched only from the Dispatcher goroutine; connections
// is guarded by lock because transport accept/watch loops run concurrently
// with it.
type ServerState struct {
	Config *config.Config

	Environment *environment.Environment
	Heap        *heap.Heap
	Scheduler   *scheduler.Scheduler
	Parser      *parser.Service
	TypeCheck   *typecheck.Service
	Lookups     *lookup.Cache

	Errors  map[sourcefile.FileHandle][]typecheck.Error
	Handles map[sourcefile.FileHandle]struct{}

	Deferred []Request

	// attributesMemo is the class-attribute memo, keyed by "Query:Type";
	// it is reset at the top of every Recheck. The Type-Query Handler
	// renders Attributes/Methods/Superclasses afresh on every query and
	// stores nothing here, so the memo stays empty.
	attributesMemo map[string]string

	lock        sync.Mutex
	connections connections
}

// New builds a ServerState from cfg, wiring the Shared Heap, Scheduler,
// Parser/TypeCheck services, and Lookup Cache against a fresh Environment.
func New(cfg *config.Config) *ServerState {
	env := environment.New()
	h := heap.New(cfg.Heap.MaxBytes)
	sched := scheduler.New(max(cfg.Scheduler.ParallelThreshold, 1))

	return &ServerState{
		Config:         cfg,
		Environment:    env,
		Heap:           h,
		Scheduler:      sched,
		Parser:         parser.New(h, sched),
		TypeCheck:      typecheck.New(sched),
		Lookups:        lookup.New(cfg.SourceRoot, h, env),
		Errors:         make(map[sourcefile.FileHandle][]typecheck.Error),
		Handles:        make(map[sourcefile.FileHandle]struct{}),
		attributesMemo: make(map[string]string),
	}
}

// SetFileNotifiers replaces the set of active file-watcher notifier names,
// under lock; an empty set is what gates check_on_save.
func (s *ServerState) SetFileNotifiers(names []string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.connections.fileNotifiers = names
}

// CheckOnSave reports whether SaveDocument should trigger a Recheck: true
// exactly when no external watcher is already feeding updates.
func (s *ServerState) CheckOnSave() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.connections.fileNotifiers) == 0
}

// AddPersistentClient and RemovePersistentClient track connections under
// lock for StopRequest/ClientExitRequest bookkeeping.
func (s *ServerState) AddPersistentClient(kind ClientKind) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.connections.persistentClients = append(s.connections.persistentClients, kind)
}

// RemovePersistentClient drops one client of kind from the connected set,
// called when a transport connection closes or a ClientExitRequest is
// processed for it.
func (s *ServerState) RemovePersistentClient(kind ClientKind) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i, k := range s.connections.persistentClients {
		if k == kind {
			s.connections.persistentClients = append(
				s.connections.persistentClients[:i],
				s.connections.persistentClients[i+1:]...,
			)
			return
		}
	}
}
