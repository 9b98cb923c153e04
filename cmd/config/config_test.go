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
package config

import (
	"strings"
	"testing"
)

func TestValidate_EmptyConfigValid(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should be valid, got error: %v", err)
	}
}

func TestValidate_DefaultConfigValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestValidate_TransportKind(t *testing.T) {
	for _, kind := range []TransportKind{TransportStdio, TransportTCP, TransportWebSocket} {
		cfg := &Config{Transport: TransportConfig{Kind: kind, Address: "localhost:1234"}}
		if err := cfg.Validate(); err != nil {
			t.Errorf("transport kind %q should be valid, got error: %v", kind, err)
		}
	}

	cfg := &Config{Transport: TransportConfig{Kind: "carrier-pigeon"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected invalid transport kind to be rejected")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should mention the invalid kind, got: %v", err)
	}
}

func TestValidate_TCPRequiresAddress(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Kind: TransportTCP}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected tcp transport without an address to be rejected")
	}
	if !strings.Contains(err.Error(), "address") {
		t.Errorf("error should mention the missing address, got: %v", err)
	}
}

func TestValidate_HeapRatioOutOfRange(t *testing.T) {
	for _, ratio := range []float64{0, -0.1, 1.5} {
		cfg := Default()
		cfg.Heap.CompactionRatio = ratio
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected heap ratio %v to be rejected", ratio)
		}
	}
}

func TestValidate_NegativeParallelThreshold(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.ParallelThreshold = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected negative parallel threshold to be rejected")
	}
}

func TestValidate_ParserConfigSchema(t *testing.T) {
	cfg := Default()
	cfg.Parser = map[string]any{"enabled": true}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid parser config to pass, got: %v", err)
	}

	cfg.Parser = map[string]any{"enabled": "yes"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected parser config with wrong-typed field to be rejected")
	}
}

func TestClone_DeepCopiesMaps(t *testing.T) {
	cfg := Default()
	cfg.Parser = map[string]any{"enabled": true}

	clone := cfg.Clone()
	clone.Parser["enabled"] = false

	if cfg.Parser["enabled"] != true {
		t.Error("mutating the clone's Parser map should not affect the original")
	}
}
