// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package routing implements the top-level request orchestrator.
//
// Each request moves through a fixed state machine:
//
//	Classify -> SelectTarget -> EnsureAvailable -> Invoke -> Score ->
//	(optional) Fallback -> RecordStats -> Return
//
// Route always returns exactly one ProcessingResponse and never panics:
// every module-facing fault (timeout, panic, unavailable module) is
// normalized into a failed response with confidence zero.
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/classifier"
	"github.com/jeranaias/modmesh/internal/fallback"
	"github.com/jeranaias/modmesh/internal/message"
	"github.com/jeranaias/modmesh/internal/module"
	"github.com/jeranaias/modmesh/internal/scoring"
	"github.com/jeranaias/modmesh/internal/util"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// historyWindow is how many recent classifications feed the classifier.
	historyWindow = 20

	// ErrTimeout is the error string for invocations exceeding the request
	// timeout.
	ErrTimeout = "timeout"

	// ctxPreferredModule is the context key for an explicit module override.
	ctxPreferredModule = "preferred_module"
)

// defaultRouteTable maps each category to its primary module type.
var defaultRouteTable = map[message.Category]message.ModuleType{
	message.CategoryGeneral:            message.ModuleGeneral,
	message.CategoryCodeGeneration:     message.ModuleCodeAnalysis,
	message.CategoryBusinessAnalysis:   message.ModuleFinancialAnalysis,
	message.CategoryImageGeneration:    message.ModuleImageGeneration,
	message.CategoryDocumentProcessing: message.ModuleDocumentProcessing,
	message.CategoryDataAnalysis:       message.ModuleDataAnalysis,
	message.CategoryCustomerService:    message.ModuleCustomerService,
}

// Recorder receives routing outcomes for diagnostics. Implementations must
// not block; failures are the recorder's problem, never the router's.
type Recorder interface {
	RecordDecision(queryID string, category message.Category, mt message.ModuleType, confidence float64, processingTime time.Duration, fallbackUsed bool)
}

// ============================================================================
// ROUTER
// ============================================================================

// Router composes the classifier, scorer, and fallback coordinator around a
// module registry. Safe for many concurrent Route calls; no global lock
// serializes the pipeline.
type Router struct {
	classifier  *classifier.Classifier
	scorer      *scoring.Scorer
	fallback    *fallback.Coordinator
	registry    *module.Registry
	provisioner module.Provisioner
	stats       *statsTable
	recorder    Recorder
	logger      *zap.Logger

	routeTable     map[message.Category]message.ModuleType
	defaultModule  message.ModuleType
	defaultTimeout time.Duration

	// historyMu guards the recent-classification ring shared by requests.
	historyMu sync.Mutex
	history   []message.Category
}

// Options configures optional router collaborators.
type Options struct {
	// Provisioner, when set, enables dynamic provisioning of unregistered
	// module types.
	Provisioner module.Provisioner

	// Recorder, when set, receives every routing outcome.
	Recorder Recorder

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// RouteTable overrides the default category-to-module table. Categories
	// absent from the table fall through to the preferred_module context
	// override, then to the default module.
	RouteTable map[message.Category]message.ModuleType

	// DefaultModule overrides the general-purpose default target.
	DefaultModule *message.ModuleType

	// DefaultTimeout bounds module invocations when the request carries no
	// timeout of its own. Zero or negative means 30 seconds.
	DefaultTimeout time.Duration
}

// New builds a router over the given registry and fallback coordinator.
func New(registry *module.Registry, fb *fallback.Coordinator, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		classifier:     classifier.New(),
		scorer:         scoring.New(),
		fallback:       fb,
		registry:       registry,
		provisioner:    opts.Provisioner,
		stats:          newStatsTable(),
		recorder:       opts.Recorder,
		logger:         logger,
		routeTable:     defaultRouteTable,
		defaultModule:  message.ModuleGeneral,
		defaultTimeout: 30 * time.Second,
	}
	if opts.DefaultTimeout > 0 {
		r.defaultTimeout = opts.DefaultTimeout
	}
	if opts.RouteTable != nil {
		r.routeTable = opts.RouteTable
	}
	if opts.DefaultModule != nil {
		r.defaultModule = *opts.DefaultModule
	}
	return r
}

// Route processes one request through the full pipeline. It always returns
// exactly one response and never panics or propagates module faults.
func (r *Router) Route(req *message.ProcessingRequest) (resp *message.ProcessingResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("routing pipeline panic",
				zap.String("query_id", req.QueryID),
				zap.Any("panic", rec))
			resp = message.NewErrorResponse(req, r.defaultModule, fmt.Sprintf("internal routing error: %v", rec))
		}
	}()

	// Classify. The request is immutable once its category is set.
	category := r.classifier.Classify(req, r.recentHistory())
	req.Category = category
	r.pushHistory(category)

	// SelectTarget.
	target := r.selectTarget(req)

	// EnsureAvailable.
	mod, unavailable := r.ensureAvailable(req, target)
	if unavailable != nil {
		r.record(req, unavailable, false)
		return unavailable
	}

	// Invoke, bounded by the request timeout.
	resp = r.invokeScored(mod, target, req)

	// Fallback for timeouts, module errors, and low-confidence results only.
	fallbackUsed := false
	if r.fallback != nil && r.fallback.ShouldFallback(resp) {
		resolved := r.fallback.Resolve(context.Background(), target, req, resp, r.invokeCandidate)
		fallbackUsed = resolved != resp
		resp = resolved
	}

	// RecordStats for whichever module type produced the returned response.
	r.record(req, resp, fallbackUsed)

	r.logger.Info("routed request",
		zap.String("query_id", req.QueryID),
		zap.String("category", category.String()),
		zap.String("module", resp.ModuleType.String()),
		zap.Float64("confidence", resp.Confidence),
		zap.Bool("fallback_used", fallbackUsed),
		zap.String("text", util.TruncateRunes(req.Text, 50)))
	return resp
}

// Stats returns a snapshot of rolling stats for every module type seen.
func (r *Router) Stats() []StatsSnapshot {
	return r.stats.snapshots()
}

// StatsFor returns the rolling-stats snapshot for one module type.
func (r *Router) StatsFor(mt message.ModuleType) StatsSnapshot {
	return r.stats.forType(mt).Snapshot(mt)
}

// ============================================================================
// PIPELINE STEPS
// ============================================================================

// selectTarget maps the classified category to a module type, honoring an
// explicit preferred_module context override when the table has no entry.
func (r *Router) selectTarget(req *message.ProcessingRequest) message.ModuleType {
	if mt, ok := r.routeTable[req.Category]; ok {
		return mt
	}
	if preferred, ok := req.Context[ctxPreferredModule]; ok {
		if mt, err := message.ParseModuleType(preferred); err == nil {
			return mt
		}
	}
	return r.defaultModule
}

// ensureAvailable resolves the target module, attempting provisioning when
// enabled. On failure it produces a ModuleUnavailable response instead of
// an error.
func (r *Router) ensureAvailable(req *message.ProcessingRequest, target message.ModuleType) (module.Module, *message.ProcessingResponse) {
	mod, err := r.registry.Lookup(target)
	if err == nil {
		return mod, nil
	}

	if r.provisioner != nil {
		provisioned, perr := r.provisioner(context.Background(), target)
		if perr == nil && provisioned != nil {
			r.registry.Register(target, provisioned)
			r.logger.Info("provisioned module", zap.String("module", target.String()))
			return provisioned, nil
		}
		r.logger.Warn("module provisioning failed",
			zap.String("module", target.String()),
			zap.Error(perr))
	}

	return nil, message.NewErrorResponse(req, target,
		fmt.Sprintf("module unavailable: %s", target.String()))
}

// invokeScored invokes a module bounded by the request timeout and applies
// the confidence score to successful results. Failed results keep
// confidence zero.
func (r *Router) invokeScored(mod module.Module, mt message.ModuleType, req *message.ProcessingRequest) *message.ProcessingResponse {
	started := time.Now()
	resp := r.invoke(mod, mt, req)
	if resp.ProcessingTime == 0 {
		resp.ProcessingTime = time.Since(started)
	}

	if !resp.Failed() {
		resp.Confidence = r.scorer.Score(resp, r.stats.forType(mt).Recent())
	}
	return resp
}

// invoke races the module call against the request timeout. On expiry the
// router returns immediately with a timeout response; the call may finish in
// the background but its result is discarded and never overwrites the stats
// recorded for the timeout.
func (r *Router) invoke(mod module.Module, mt message.ModuleType, req *message.ProcessingRequest) *message.ProcessingResponse {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Buffered so the worker can always complete its send and exit.
	done := make(chan *message.ProcessingResponse, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- message.NewErrorResponse(req, mt, fmt.Sprintf("module panic: %v", rec))
			}
		}()

		resp, err := mod.Process(ctx, req)
		if err != nil {
			done <- message.NewErrorResponse(req, mt, err.Error())
			return
		}
		if resp == nil {
			done <- message.NewErrorResponse(req, mt, "module returned no response")
			return
		}
		resp.QueryID = req.QueryID
		resp.ModuleType = mt
		if resp.Failed() {
			resp.Confidence = 0
		}
		done <- resp
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		return message.NewErrorResponse(req, mt, ErrTimeout)
	}
}

// invokeCandidate is the InvokeFunc handed to the fallback coordinator:
// same bounded-timeout contract and scoring as a primary invocation.
func (r *Router) invokeCandidate(ctx context.Context, mt message.ModuleType, req *message.ProcessingRequest) *message.ProcessingResponse {
	mod, err := r.registry.Lookup(mt)
	if err != nil {
		return message.NewErrorResponse(req, mt, "module unavailable")
	}
	return r.invokeScored(mod, mt, req)
}

// record updates rolling stats and the optional decision recorder for the
// module type that produced the returned response.
func (r *Router) record(req *message.ProcessingRequest, resp *message.ProcessingResponse, fallbackUsed bool) {
	r.stats.forType(resp.ModuleType).Update(resp.Confidence, resp.ProcessingTime)
	if r.recorder != nil {
		r.recorder.RecordDecision(req.QueryID, req.Category, resp.ModuleType, resp.Confidence, resp.ProcessingTime, fallbackUsed)
	}
}

// ============================================================================
// CLASSIFICATION HISTORY
// ============================================================================

// recentHistory copies the shared recent-classification ring.
func (r *Router) recentHistory() []message.Category {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	return append([]message.Category(nil), r.history...)
}

// pushHistory appends a classification, trimming to the window.
func (r *Router) pushHistory(cat message.Category) {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	r.history = append(r.history, cat)
	if len(r.history) > historyWindow {
		r.history = r.history[1:]
	}
}
