// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// QUERY CATEGORY
// ============================================================================

// Category is the inferred kind of work a ProcessingRequest asks for.
// The enumeration is closed: the classifier, routing table, and fallback
// chains all switch over it exhaustively.
type Category int

const (
	// CategoryGeneral is the floor category when nothing else scores.
	CategoryGeneral Category = iota
	// CategoryCodeGeneration covers writing, parsing, and debugging code.
	CategoryCodeGeneration
	// CategoryBusinessAnalysis covers financial and market questions.
	CategoryBusinessAnalysis
	// CategoryImageGeneration covers image creation requests.
	CategoryImageGeneration
	// CategoryDocumentProcessing covers document extraction and summarizing.
	CategoryDocumentProcessing
	// CategoryDataAnalysis covers statistics and dataset work.
	CategoryDataAnalysis
	// CategoryCustomerService covers support-style conversational requests.
	CategoryCustomerService
)

// categoryTokens maps each Category to its stable wire token.
var categoryTokens = map[Category]string{
	CategoryGeneral:            "GENERAL",
	CategoryCodeGeneration:     "CODE_GENERATION",
	CategoryBusinessAnalysis:   "BUSINESS_ANALYSIS",
	CategoryImageGeneration:    "IMAGE_GENERATION",
	CategoryDocumentProcessing: "DOCUMENT_PROCESSING",
	CategoryDataAnalysis:       "DATA_ANALYSIS",
	CategoryCustomerService:    "CUSTOMER_SERVICE",
}

// String returns the stable wire token for the category.
func (c Category) String() string {
	if s, ok := categoryTokens[c]; ok {
		return s
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory converts a wire token back to its Category.
func ParseCategory(s string) (Category, error) {
	for c, token := range categoryTokens {
		if token == s {
			return c, nil
		}
	}
	return CategoryGeneral, fmt.Errorf("unknown category token %q", s)
}

// Categories returns every category in fixed enumeration order. Classifier
// tie-breaking depends on this order being stable.
func Categories() []Category {
	return []Category{
		CategoryGeneral,
		CategoryCodeGeneration,
		CategoryBusinessAnalysis,
		CategoryImageGeneration,
		CategoryDocumentProcessing,
		CategoryDataAnalysis,
		CategoryCustomerService,
	}
}

// ============================================================================
// MODULE TYPE
// ============================================================================

// ModuleType identifies a specialized processing unit.
type ModuleType int

const (
	// ModuleGeneral is the general-purpose default module.
	ModuleGeneral ModuleType = iota
	// ModuleCodeAnalysis handles code generation and review.
	ModuleCodeAnalysis
	// ModuleFinancialAnalysis handles business and financial queries.
	ModuleFinancialAnalysis
	// ModuleImageGeneration handles image creation.
	ModuleImageGeneration
	// ModuleDocumentProcessing handles document extraction.
	ModuleDocumentProcessing
	// ModuleDataAnalysis handles statistics and datasets.
	ModuleDataAnalysis
	// ModuleCustomerService handles conversational support.
	ModuleCustomerService
)

// moduleTokens maps each ModuleType to its stable wire token.
var moduleTokens = map[ModuleType]string{
	ModuleGeneral:            "general",
	ModuleCodeAnalysis:       "code_analysis",
	ModuleFinancialAnalysis:  "financial_analysis",
	ModuleImageGeneration:    "image_generation",
	ModuleDocumentProcessing: "document_processing",
	ModuleDataAnalysis:       "data_analysis",
	ModuleCustomerService:    "customer_service",
}

// String returns the stable wire token for the module type.
func (m ModuleType) String() string {
	if s, ok := moduleTokens[m]; ok {
		return s
	}
	return fmt.Sprintf("ModuleType(%d)", int(m))
}

// ParseModuleType converts a wire token back to its ModuleType.
func ParseModuleType(s string) (ModuleType, error) {
	for m, token := range moduleTokens {
		if token == s {
			return m, nil
		}
	}
	return ModuleGeneral, fmt.Errorf("unknown module type token %q", s)
}

// ============================================================================
// HEALTH STATUS
// ============================================================================

// HealthStatus describes a module's liveness.
type HealthStatus int

const (
	// HealthUnknown means no probe has completed yet.
	HealthUnknown HealthStatus = iota
	// HealthHealthy means the last probe succeeded.
	HealthHealthy
	// HealthDegraded means the module responds but reports trouble.
	HealthDegraded
	// HealthUnavailable means the module cannot accept work.
	HealthUnavailable
)

// String returns the human-readable name of the health status.
func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ============================================================================
// PROCESSING REQUEST / RESPONSE
// ============================================================================

// ProcessingRequest is the unit of work submitted to the router. A request is
// immutable once classified; the classifier writes Category exactly once.
type ProcessingRequest struct {
	// QueryID identifies the request; responses carry the same id.
	QueryID string `json:"query_id"`

	// UserID identifies the caller, used for rate limiting upstream.
	UserID string `json:"user_id"`

	// Text is the raw request text the classifier scores.
	Text string `json:"text"`

	// Category is set by the classifier during routing.
	Category Category `json:"category"`

	// Context carries caller hints (e.g. "domain", "preferred_module").
	Context map[string]string `json:"context,omitempty"`

	// Parameters carries module-specific tuning values.
	Parameters map[string]any `json:"parameters,omitempty"`

	// CreatedAt is the request creation time (UTC).
	CreatedAt time.Time `json:"created_at"`

	// Priority is the 1..5 request priority.
	Priority Priority `json:"priority"`

	// Timeout bounds the module invocation.
	Timeout time.Duration `json:"-"`

	// Metadata carries optional extras such as attachment descriptors.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewProcessingRequest builds a request with a fresh query id, Normal
// priority, and a 30-second timeout.
func NewProcessingRequest(userID, text string) *ProcessingRequest {
	return &ProcessingRequest{
		QueryID:   uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Context:   make(map[string]string),
		CreatedAt: time.Now().UTC(),
		Priority:  PriorityNormal,
		Timeout:   30 * time.Second,
	}
}

// ProcessingResponse is the single structured result every route call
// returns. Invariant: Error set implies Confidence == 0; Confidence is always
// reported, success or failure.
type ProcessingResponse struct {
	// QueryID matches the originating request.
	QueryID string `json:"query_id"`

	// ModuleType is the module that actually produced this response
	// (the fallback module when a fallback replaced the original).
	ModuleType ModuleType `json:"module_type"`

	// Content is the opaque result body.
	Content string `json:"content"`

	// Confidence is the normalized [0,1] quality estimate.
	Confidence float64 `json:"confidence_score"`

	// ProcessingTime is how long the module took.
	ProcessingTime time.Duration `json:"-"`

	// TokenCount is the module-reported token or size count.
	TokenCount int `json:"token_count"`

	// QualityMetrics holds named scalar metrics in [0,1]
	// (relevance, coherence, accuracy, completeness, safety, performance).
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`

	// Metadata carries diagnostics such as fallback annotations.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp is the response creation time (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Error is empty on success. When set, Confidence is zero.
	Error string `json:"error,omitempty"`
}

// NewErrorResponse builds a failed response for the given request with
// confidence zero, preserving the error invariant.
func NewErrorResponse(req *ProcessingRequest, mt ModuleType, errMsg string) *ProcessingResponse {
	return &ProcessingResponse{
		QueryID:    req.QueryID,
		ModuleType: mt,
		Confidence: 0,
		Metadata:   make(map[string]any),
		Timestamp:  time.Now().UTC(),
		Error:      errMsg,
	}
}

// Failed returns true when the response carries an error.
func (r *ProcessingResponse) Failed() bool {
	return r.Error != ""
}

// ============================================================================
// MODULE DESCRIPTOR
// ============================================================================

// ModuleDescriptor declares a module's identity, capabilities, and health.
type ModuleDescriptor struct {
	Type         ModuleType   `json:"module_type"`
	Capabilities []string     `json:"capabilities"`
	Health       HealthStatus `json:"health"`
}
