// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package module

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// BUILT-IN GENERAL MODULE
// ============================================================================

// General is the built-in general-purpose module. It acknowledges requests
// locally so a node with no remote peers still routes every category, at
// modest confidence so any specialized module wins the fallback comparison.
type General struct{}

// NewGeneral returns the built-in general module.
func NewGeneral() *General {
	return &General{}
}

// Process answers the request with a local acknowledgement.
func (g *General) Process(ctx context.Context, req *message.ProcessingRequest) (*message.ProcessingResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	words := len(strings.Fields(req.Text))
	return &message.ProcessingResponse{
		QueryID:    req.QueryID,
		ModuleType: message.ModuleGeneral,
		Content:    fmt.Sprintf("Received %s request (%d words); no specialized module handled it.", req.Category, words),
		Confidence: 0.65,
		TokenCount: words,
		Metadata:   map[string]any{"builtin": true},
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Health always reports healthy; the module is in-process.
func (g *General) Health() message.HealthStatus {
	return message.HealthHealthy
}

// Capabilities describes the module.
func (g *General) Capabilities() message.ModuleDescriptor {
	return message.ModuleDescriptor{
		Type:         message.ModuleGeneral,
		Capabilities: []string{"acknowledge", "fallback_of_last_resort"},
		Health:       message.HealthHealthy,
	}
}
