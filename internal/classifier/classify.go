// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classifier infers a request's category from its text, caller
// context, recent routing history, and attachments.
//
// Classification is a weighted blend of four signals:
//
//	score = keyword match ratio   x 0.4
//	      + context domain hint   x 0.3
//	      + recent history share  x 0.2
//	      + attachment type hint  x 0.1
//
// The highest-scoring category wins. If every score falls below the floor
// (0.1), the request is classified GENERAL. Ties resolve to the first
// category in the fixed enumeration order, so results are deterministic.
package classifier

import (
	"strings"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// SIGNAL WEIGHTS
// ============================================================================

const (
	// weightKeywords is the share of the score from keyword matching.
	weightKeywords = 0.4
	// weightContext is the share from the caller's domain hint.
	weightContext = 0.3
	// weightHistory is the share from recent classification frequency.
	weightHistory = 0.2
	// weightAttachments is the share from attachment type hints.
	weightAttachments = 0.1

	// scoreFloor is the minimum winning score; anything below is GENERAL.
	scoreFloor = 0.1
)

// ============================================================================
// CATEGORY SIGNALS
// ============================================================================

// categoryKeywords maps each category to its fixed keyword list. GENERAL has
// no keywords: it is the floor category, never a keyword winner.
var categoryKeywords = map[message.Category][]string{
	message.CategoryCodeGeneration: {
		"code", "function", "write", "implement", "program", "script",
		"python", "class", "algorithm", "debug", "parse", "compile",
	},
	message.CategoryBusinessAnalysis: {
		"revenue", "profit", "growth", "market", "business", "financial",
		"quarter", "q1", "q2", "q3", "q4", "forecast", "sales",
	},
	message.CategoryImageGeneration: {
		"image", "picture", "draw", "render", "illustration", "logo",
		"diagram", "visual", "sketch",
	},
	message.CategoryDocumentProcessing: {
		"document", "pdf", "extract", "summarize", "contract", "invoice",
		"report", "scan", "ocr",
	},
	message.CategoryDataAnalysis: {
		"data", "dataset", "statistics", "correlation", "trend", "chart",
		"average", "median", "distribution", "analyze",
	},
	message.CategoryCustomerService: {
		"help", "support", "complaint", "refund", "order", "account",
		"cancel", "subscription", "ticket",
	},
}

// categoryDomains maps caller-supplied context domains to categories.
var categoryDomains = map[message.Category][]string{
	message.CategoryCodeGeneration:     {"engineering", "software", "code"},
	message.CategoryBusinessAnalysis:   {"finance", "business", "sales"},
	message.CategoryImageGeneration:    {"design", "creative"},
	message.CategoryDocumentProcessing: {"legal", "documents"},
	message.CategoryDataAnalysis:       {"analytics", "data"},
	message.CategoryCustomerService:    {"support", "service"},
}

// attachmentCategories maps attachment types to the category they hint at.
var attachmentCategories = map[string]message.Category{
	"image":       message.CategoryImageGeneration,
	"pdf":         message.CategoryDocumentProcessing,
	"document":    message.CategoryDocumentProcessing,
	"csv":         message.CategoryDataAnalysis,
	"spreadsheet": message.CategoryDataAnalysis,
	"code":        message.CategoryCodeGeneration,
}

// ============================================================================
// CLASSIFIER
// ============================================================================

// Classifier scores request text against the fixed category signals.
// The zero value is not usable; construct with New.
type Classifier struct {
	keywords map[message.Category][]string
	domains  map[message.Category][]string
}

// New returns a classifier with the fixed category keyword tables.
func New() *Classifier {
	return &Classifier{
		keywords: categoryKeywords,
		domains:  categoryDomains,
	}
}

// Classify infers the category for a request given the recent classification
// history. The request is not mutated; the router assigns the result.
func (c *Classifier) Classify(req *message.ProcessingRequest, history []message.Category) message.Category {
	best := message.CategoryGeneral
	bestScore := 0.0

	// Fixed iteration order keeps tie-breaking stable: the first-enumerated
	// category wins a tie.
	for _, cat := range message.Categories() {
		if cat == message.CategoryGeneral {
			continue
		}
		score := c.score(cat, req, history)
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}

	if bestScore < scoreFloor {
		return message.CategoryGeneral
	}
	return best
}

// score computes the weighted blend for one category.
func (c *Classifier) score(cat message.Category, req *message.ProcessingRequest, history []message.Category) float64 {
	return keywordRatio(req.Text, c.keywords[cat])*weightKeywords +
		domainHint(req.Context, c.domains[cat])*weightContext +
		historyShare(cat, history)*weightHistory +
		attachmentHint(cat, req.Metadata)*weightAttachments
}

// keywordRatio returns the fraction of the category's keywords present in
// the text (case-insensitive substring match on the lowered query).
func keywordRatio(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lowered := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// domainHint returns 1 when the caller's "domain" context value names one of
// the category's domains, 0 otherwise.
func domainHint(ctx map[string]string, domains []string) float64 {
	if ctx == nil {
		return 0
	}
	domain := strings.ToLower(ctx["domain"])
	if domain == "" {
		return 0
	}
	for _, d := range domains {
		if d == domain {
			return 1
		}
	}
	return 0
}

// historyShare returns the fraction of recent classifications matching cat.
func historyShare(cat message.Category, history []message.Category) float64 {
	if len(history) == 0 {
		return 0
	}
	count := 0
	for _, h := range history {
		if h == cat {
			count++
		}
	}
	return float64(count) / float64(len(history))
}

// attachmentHint returns 1 when any attachment descriptor's type hints at
// cat. Attachments ride in request metadata under "attachments" as a list of
// {"type": ...} maps.
func attachmentHint(cat message.Category, metadata map[string]any) float64 {
	if metadata == nil {
		return 0
	}
	raw, ok := metadata["attachments"]
	if !ok {
		return 0
	}
	list, ok := raw.([]any)
	if !ok {
		return 0
	}
	for _, item := range list {
		desc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := desc["type"].(string)
		if attachmentCategories[strings.ToLower(typ)] == cat && typ != "" {
			return 1
		}
	}
	return 0
}
