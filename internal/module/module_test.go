// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package module

import (
	"context"
	"sync"
	"testing"

	"github.com/jeranaias/modmesh/internal/message"
)

// stubModule is a minimal Module for registry tests.
type stubModule struct {
	mt message.ModuleType
}

func (s *stubModule) Process(ctx context.Context, req *message.ProcessingRequest) (*message.ProcessingResponse, error) {
	return &message.ProcessingResponse{QueryID: req.QueryID, ModuleType: s.mt, Confidence: 0.9}, nil
}

func (s *stubModule) Health() message.HealthStatus {
	return message.HealthHealthy
}

func (s *stubModule) Capabilities() message.ModuleDescriptor {
	return message.ModuleDescriptor{Type: s.mt, Capabilities: []string{"stub"}, Health: message.HealthHealthy}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Lookup(message.ModuleGeneral); err != ErrNotRegistered {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}

	r.Register(message.ModuleGeneral, &stubModule{mt: message.ModuleGeneral})
	m, err := r.Lookup(message.ModuleGeneral)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if m.Capabilities().Type != message.ModuleGeneral {
		t.Error("wrong module returned")
	}
	if !r.Registered(message.ModuleGeneral) {
		t.Error("Registered returned false for a registered type")
	}
}

func TestRegistryDescriptors(t *testing.T) {
	r := NewRegistry()
	r.Register(message.ModuleGeneral, &stubModule{mt: message.ModuleGeneral})
	r.Register(message.ModuleCodeAnalysis, &stubModule{mt: message.ModuleCodeAnalysis})

	descs := r.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
}

// TestRegistryConcurrentAccess exercises lookups racing registrations.
func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	r.Register(message.ModuleGeneral, &stubModule{mt: message.ModuleGeneral})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Lookup(message.ModuleGeneral)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Register(message.ModuleDataAnalysis, &stubModule{mt: message.ModuleDataAnalysis})
			}
		}()
	}
	wg.Wait()

	if !r.Registered(message.ModuleDataAnalysis) {
		t.Error("expected data analysis module registered")
	}
}
