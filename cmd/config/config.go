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
// Package config defines the dyncheckd configuration schema: the fields
// bound by viper from flags/env/config file, plus JSON-schema validation
// of the opaque per-service configuration blobs handed to the Parser and
// TypeCheck services without the CLI needing to know their shape.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportTCP       TransportKind = "tcp"
	TransportWebSocket TransportKind = "websocket"

	DefaultParallelGate = 5
	DefaultHeapRatio    = 0.5
	DefaultHeapMaxBytes = 512 * 1024 * 1024
)

type TransportConfig struct {
	Kind    TransportKind `mapstructure:"kind" yaml:"kind"`
	Address string        `mapstructure:"address" yaml:"address"`
}

type SchedulerConfig struct {
	// ParallelThreshold is the check-set size a Recheck must exceed before
	// its parse and analysis steps run across the worker pool instead of
	// inline on the dispatcher goroutine.
	ParallelThreshold int `mapstructure:"parallelThreshold" yaml:"parallelThreshold"`
}

type HeapConfig struct {
	// CompactionRatio is the heap_use_ratio() threshold above which the
	// Shared-Heap Compaction step runs an aggressive collection.
	CompactionRatio float64 `mapstructure:"compactionRatio" yaml:"compactionRatio"`
	// MaxBytes is the ceiling heap_use_ratio() divides against. Zero
	// disables the ratio (and therefore compaction) entirely.
	MaxBytes int64 `mapstructure:"maxBytes" yaml:"maxBytes"`
}

// Config is the top-level dyncheckd configuration.
type Config struct {
	ProjectDir string `mapstructure:"projectDir" yaml:"projectDir"`
	ConfigFile string `mapstructure:"configFile" yaml:"configFile"`
	// SourceRoot is the directory FileHandle paths are canonicalized against.
	SourceRoot string          `mapstructure:"sourceRoot" yaml:"sourceRoot"`
	Transport  TransportConfig `mapstructure:"transport" yaml:"transport"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Heap       HeapConfig      `mapstructure:"heap" yaml:"heap"`
	LogLevel   string          `mapstructure:"logLevel" yaml:"logLevel"`
	Verbose    bool            `mapstructure:"verbose" yaml:"verbose"`
	// Parser and TypeCheck are opaque per-service configuration blobs,
	// validated against ParserConfigSchema/TypeCheckConfigSchema before
	// being handed to those services.
	Parser    map[string]any `mapstructure:"parser" yaml:"parser"`
	TypeCheck map[string]any `mapstructure:"typeCheck" yaml:"typeCheck"`
}

func Default() *Config {
	return &Config{
		Transport: TransportConfig{Kind: TransportStdio},
		Scheduler: SchedulerConfig{ParallelThreshold: DefaultParallelGate},
		Heap:      HeapConfig{CompactionRatio: DefaultHeapRatio, MaxBytes: DefaultHeapMaxBytes},
		LogLevel:  "info",
	}
}

func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Parser != nil {
		clone.Parser = make(map[string]any, len(c.Parser))
		for k, v := range c.Parser {
			clone.Parser[k] = v
		}
	}
	if c.TypeCheck != nil {
		clone.TypeCheck = make(map[string]any, len(c.TypeCheck))
		for k, v := range c.TypeCheck {
			clone.TypeCheck[k] = v
		}
	}
	return &clone
}

// Validate checks the structural fields and, when set, validates the
// opaque Parser/TypeCheck blobs against their JSON schemas.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportStdio, TransportTCP, TransportWebSocket, "":
	default:
		return fmt.Errorf("invalid transport kind %q: must be one of stdio, tcp, websocket", c.Transport.Kind)
	}
	if c.Transport.Kind == TransportTCP || c.Transport.Kind == TransportWebSocket {
		if c.Transport.Address == "" {
			return fmt.Errorf("transport %q requires an address", c.Transport.Kind)
		}
	}
	if c.Scheduler.ParallelThreshold < 0 {
		return fmt.Errorf("scheduler.parallelThreshold must be >= 0, got %d", c.Scheduler.ParallelThreshold)
	}
	if c.Heap.MaxBytes > 0 && (c.Heap.CompactionRatio <= 0 || c.Heap.CompactionRatio > 1) {
		return fmt.Errorf("heap.compactionRatio must be in (0, 1], got %v", c.Heap.CompactionRatio)
	}
	if c.Parser != nil {
		if err := validateAgainstSchema(ParserConfigSchema, c.Parser); err != nil {
			return fmt.Errorf("invalid parser config: %w", err)
		}
	}
	if c.TypeCheck != nil {
		if err := validateAgainstSchema(TypeCheckConfigSchema, c.TypeCheck); err != nil {
			return fmt.Errorf("invalid typeCheck config: %w", err)
		}
	}
	return nil
}

// ParserConfigSchema and TypeCheckConfigSchema are intentionally permissive:
// the Parser and TypeCheck services' own internal tuning is out of scope
// here, so the schemas only constrain the shape callers must respect.
const (
	ParserConfigSchema = `{
	"type": "object",
	"properties": { "enabled": { "type": "boolean" } }
}`
	TypeCheckConfigSchema = `{
	"type": "object",
	"properties": { "enabled": { "type": "boolean" } }
}`
)

func validateAgainstSchema(schemaText string, value map[string]any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", mustDecode(schemaText)); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema.Validate(value)
}

func mustDecode(schemaText string) any {
	var v any
	if err := json.Unmarshal([]byte(schemaText), &v); err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return v
}
