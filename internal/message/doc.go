// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message defines the wire-level data model shared by every modmesh
// component.
//
// # Key Types
//
//   - Envelope: the unit of transport (Header + payload + metadata)
//   - Header: message identity, addressing, priority, and retry bookkeeping
//   - Type: message type enumeration (REQUEST, RESPONSE, STREAM_*, ...)
//   - Priority: ordered priority enumeration (Low..Critical)
//   - ProcessingRequest / ProcessingResponse: the orchestration request model
//   - ModuleType / Category: closed enumerations for routing decisions
//
// # Wire Format
//
// Envelopes round-trip through JSON with enum values encoded as stable string
// tokens and timestamps in RFC 3339 (UTC, nanosecond precision). The transport
// layer never interprets payload or metadata contents.
package message
