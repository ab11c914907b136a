// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package module defines the processing-module contract and the registry the
// router selects targets from.
//
// Modules are dependency-injected at process start; there is no runtime code
// loading. "Auto-load on demand" is a registry lookup plus an explicit
// provisioning hook.
package module

import (
	"context"
	"errors"
	"sync"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// MODULE CONTRACT
// ============================================================================

// Module is the contract every specialized processing unit exposes. Process
// may be long-running; the router bounds it with the request timeout from the
// caller side, so implementations should honor ctx cancellation but are not
// required to.
type Module interface {
	// Process handles one request and returns its response. Errors are
	// normalized by the router into failed responses; they never reach the
	// original caller.
	Process(ctx context.Context, req *message.ProcessingRequest) (*message.ProcessingResponse, error)

	// Health reports current liveness.
	Health() message.HealthStatus

	// Capabilities returns the module's descriptor.
	Capabilities() message.ModuleDescriptor
}

// Provisioner attempts to bring up a module that is not yet registered.
// Returning an error means the module type stays unavailable.
type Provisioner func(ctx context.Context, mt message.ModuleType) (Module, error)

// ============================================================================
// REGISTRY
// ============================================================================

// ErrNotRegistered is returned when a module type has no registered instance.
var ErrNotRegistered = errors.New("module type not registered")

// Registry holds the live modules by type. Read-mostly: lookups happen on
// every request, writes only at startup and on provisioning.
type Registry struct {
	mu      sync.RWMutex
	modules map[message.ModuleType]Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[message.ModuleType]Module)}
}

// Register installs (or replaces) the module for a type.
func (r *Registry) Register(mt message.ModuleType, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[mt] = m
}

// Lookup returns the module for a type.
func (r *Registry) Lookup(mt message.ModuleType) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[mt]
	if !ok {
		return nil, ErrNotRegistered
	}
	return m, nil
}

// Registered returns true if the type has a module.
func (r *Registry) Registered(mt message.ModuleType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[mt]
	return ok
}

// Types returns the registered module types (unordered).
func (r *Registry) Types() []message.ModuleType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]message.ModuleType, 0, len(r.modules))
	for mt := range r.modules {
		types = append(types, mt)
	}
	return types
}

// Descriptors collects the capability descriptor of every registered module.
func (r *Registry) Descriptors() []message.ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]message.ModuleDescriptor, 0, len(r.modules))
	for _, m := range r.modules {
		descs = append(descs, m.Capabilities())
	}
	return descs
}
