// Package errorhandler implements the gateway's unified error handler: it
// normalizes errors, consults per-connection circuit breakers, picks and
// executes a recovery action, tracks retry policy, and correlates related
// errors within a sliding time window.
package errorhandler

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/resilience"
)

// RecoveryCallback actually performs a recovery action against a
// connection, returning whether it succeeded.
type RecoveryCallback func(connectionID string, action message.RecoveryAction) bool

// RecoveryStrategyCallback lets a caller override the default recovery
// action table for a given error.
type RecoveryStrategyCallback func(err *message.WebSocketError) message.RecoveryAction

// ErrorEvent is the outcome of one HandleError call. It is passed to the
// ErrorEventCallback for every call except one cut short by an open
// circuit breaker, whose event is only returned.
type ErrorEvent struct {
	EventID            string
	Error              *message.WebSocketError
	ActionTaken        message.RecoveryAction
	RecoverySuccessful bool
	EventTime          time.Time
}

// ErrorEventCallback observes ErrorEvents.
type ErrorEventCallback func(ErrorEvent)

// RetryPolicy controls shouldRetry/retryDelay.
type RetryPolicy struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	ExponentialBackoff bool
}

// DefaultRetryPolicy is the handler's built-in retry policy: 4 attempts,
// exponential backoff from 1s capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 30 * time.Second, ExponentialBackoff: true}
}

type connectionEntry struct {
	ctx     message.ConnectionContext
	breaker *resilience.CircuitBreaker
	retry   *RetryPolicy // per-connection override, nil = use global
}

type correlationEntry struct {
	errors    []*message.WebSocketError
	expiresAt time.Time
}

// ErrorHandler normalizes connection errors and decides the recovery action.
type ErrorHandler struct {
	logger *zap.Logger

	connMu      sync.Mutex
	connections map[string]*connectionEntry

	corrMu            sync.Mutex
	correlations      map[string]*correlationEntry
	correlationWindow time.Duration

	statsMu sync.Mutex
	stats   map[string]int

	globalRetry RetryPolicy

	recoveryCB RecoveryCallback
	strategyCB RecoveryStrategyCallback
	eventCB    ErrorEventCallback
}

// New constructs an ErrorHandler.
func New(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		logger:            logger,
		connections:       map[string]*connectionEntry{},
		correlations:      map[string]*correlationEntry{},
		correlationWindow: 5 * time.Second,
		stats:             map[string]int{},
		globalRetry:       DefaultRetryPolicy(),
	}
}

// SetRecoveryCallback installs the callback that executes recovery actions.
func (h *ErrorHandler) SetRecoveryCallback(cb RecoveryCallback) { h.recoveryCB = cb }

// SetRecoveryStrategyCallback installs a user override for action selection.
func (h *ErrorHandler) SetRecoveryStrategyCallback(cb RecoveryStrategyCallback) { h.strategyCB = cb }

// SetErrorEventCallback installs the ErrorEvent observer.
func (h *ErrorHandler) SetErrorEventCallback(cb ErrorEventCallback) { h.eventCB = cb }

// SetGlobalRetryPolicy replaces the fallback retry policy.
func (h *ErrorHandler) SetGlobalRetryPolicy(p RetryPolicy) { h.globalRetry = p }

// RegisterConnection begins tracking a connection and gives it a fresh
// circuit breaker with default thresholds.
func (h *ErrorHandler) RegisterConnection(ctx message.ConnectionContext) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.connections[ctx.ConnectionID] = &connectionEntry{
		ctx:     ctx,
		breaker: resilience.NewDefault(ctx.ConnectionID),
	}
}

// UnregisterConnection stops tracking a connection.
func (h *ErrorHandler) UnregisterConnection(connectionID string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	delete(h.connections, connectionID)
}

// UpdateConnectionActivity stamps lastActivity for a tracked connection.
func (h *ErrorHandler) UpdateConnectionActivity(connectionID string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if e, ok := h.connections[connectionID]; ok {
		e.ctx.LastActivity = time.Now().UTC()
	}
}

// SetRetryPolicy installs a per-connection retry policy override.
func (h *ErrorHandler) SetRetryPolicy(connectionID string, p RetryPolicy) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if e, ok := h.connections[connectionID]; ok {
		e.retry = &p
	}
}

func (h *ErrorHandler) breakerFor(connectionID string) *resilience.CircuitBreaker {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	e, ok := h.connections[connectionID]
	if !ok {
		return nil
	}
	return e.breaker
}

func (h *ErrorHandler) retryPolicyFor(connectionID string) RetryPolicy {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if e, ok := h.connections[connectionID]; ok && e.retry != nil {
		return *e.retry
	}
	return h.globalRetry
}

// defaultAction is the category-based fallback table used when neither a
// strategy callback nor the error's own recommendation applies.
func defaultAction(err *message.WebSocketError) message.RecoveryAction {
	switch err.Category {
	case message.CategoryConnection:
		if err.Severity >= message.SeverityMedium {
			return message.ActionReconnect
		}
		return message.ActionRetry
	case message.CategoryTimeout:
		return message.ActionRetry
	case message.CategoryMessage:
		return message.ActionNone
	case message.CategoryNetwork:
		return message.ActionReconnect
	case message.CategoryAuthentication:
		return message.ActionTerminate
	case message.CategoryProtocol:
		if err.Severity >= message.SeverityHigh {
			return message.ActionReconnect
		}
		return message.ActionReset
	default:
		return message.ActionRetry
	}
}

// selectAction resolves an action in order: strategy callback, the
// error's own recommendation, then the category-based default.
func (h *ErrorHandler) selectAction(err *message.WebSocketError) message.RecoveryAction {
	if h.strategyCB != nil {
		if a := h.strategyCB(err); a != message.ActionNone {
			return a
		}
	}
	if err.RecommendedAction != message.ActionNone {
		return err.RecommendedAction
	}
	return defaultAction(err)
}

// HandleError is the main entry point: normalize (already normalized here —
// callers construct the WebSocketError), consult the circuit breaker,
// select and execute a recovery action, update statistics, correlate, and
// emit an ErrorEvent.
func (h *ErrorHandler) HandleError(err *message.WebSocketError) ErrorEvent {
	connID := err.ConnectionContext.ConnectionID
	breaker := h.breakerFor(connID)

	if breaker != nil && !breaker.CanAttemptConnection() {
		h.logger.Warn("circuit breaker open, skipping recovery",
			zap.String("connectionId", connID))
		return ErrorEvent{
			EventID:     uuid.NewString(),
			Error:       err,
			ActionTaken: message.ActionNone,
			EventTime:   time.Now().UTC(),
		}
	}

	action := h.selectAction(err)

	recoverySuccessful := false
	if action != message.ActionNone {
		if h.recoveryCB != nil {
			recoverySuccessful = h.recoveryCB(connID, action)
		}
		if breaker != nil {
			if recoverySuccessful {
				breaker.RecordSuccess()
			} else {
				breaker.RecordFailure()
			}
		}
	}

	h.recordStatistics(err)
	h.recordCorrelation(err)

	event := ErrorEvent{
		EventID:            uuid.NewString(),
		Error:              err,
		ActionTaken:        action,
		RecoverySuccessful: recoverySuccessful,
		EventTime:          time.Now().UTC(),
	}

	h.logger.Warn("handled connection error",
		zap.String("connectionId", connID),
		zap.String("category", string(err.Category)),
		zap.String("severity", err.Severity.String()),
		zap.String("action", string(action)),
		zap.Bool("recovered", recoverySuccessful),
	)

	if h.eventCB != nil {
		h.eventCB(event)
	}
	return event
}

func (h *ErrorHandler) recordStatistics(err *message.WebSocketError) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats[err.Fingerprint()]++
}

// recordCorrelation files err under its CorrelationID (if any) and sweeps
// expired entries opportunistically.
func (h *ErrorHandler) recordCorrelation(err *message.WebSocketError) {
	if err.CorrelationID == "" {
		return
	}
	h.corrMu.Lock()
	defer h.corrMu.Unlock()

	now := time.Now().UTC()
	for id, entry := range h.correlations {
		if now.After(entry.expiresAt) {
			delete(h.correlations, id)
		}
	}

	entry, ok := h.correlations[err.CorrelationID]
	if !ok {
		entry = &correlationEntry{}
		h.correlations[err.CorrelationID] = entry
	}
	entry.errors = append(entry.errors, err)
	entry.expiresAt = now.Add(h.correlationWindow)
}

// CorrelatedErrors returns the errors currently filed under correlationID,
// if the window has not expired.
func (h *ErrorHandler) CorrelatedErrors(correlationID string) []*message.WebSocketError {
	h.corrMu.Lock()
	defer h.corrMu.Unlock()
	entry, ok := h.correlations[correlationID]
	if !ok || time.Now().UTC().After(entry.expiresAt) {
		return nil
	}
	out := make([]*message.WebSocketError, len(entry.errors))
	copy(out, entry.errors)
	return out
}

// ErrorPattern is one row of GetTopErrorPatterns's result.
type ErrorPattern struct {
	Fingerprint string
	Count       int
}

// GetTopErrorPatterns returns the most frequent error fingerprints seen
// since construction, most frequent first.
func (h *ErrorHandler) GetTopErrorPatterns(limit int) []ErrorPattern {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()

	patterns := make([]ErrorPattern, 0, len(h.stats))
	for fp, count := range h.stats {
		patterns = append(patterns, ErrorPattern{Fingerprint: fp, Count: count})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Fingerprint < patterns[j].Fingerprint
	})
	if limit > 0 && limit < len(patterns) {
		patterns = patterns[:limit]
	}
	return patterns
}

// ShouldRetry reports whether attempt is still within policy and err is
// retryable: below maxAttempts, marked retryable, not an authentication
// failure, and not critical severity.
func (h *ErrorHandler) ShouldRetry(connectionID string, err *message.WebSocketError, attempt int) bool {
	policy := h.retryPolicyFor(connectionID)
	if attempt >= policy.MaxAttempts {
		return false
	}
	if !err.IsRetryable {
		return false
	}
	if err.Category == message.CategoryAuthentication {
		return false
	}
	if err.Severity == message.SeverityCritical {
		return false
	}
	return true
}

// RetryDelay computes the backoff+jitter delay for attempt. jitter is
// uniform in [0.75, 1.25]; callers needing determinism should not rely on
// the exact nanosecond returned, only that it falls in that band.
func (h *ErrorHandler) RetryDelay(connectionID string, attempt int) time.Duration {
	policy := h.retryPolicyFor(connectionID)
	var base time.Duration
	if policy.ExponentialBackoff {
		backoff := policy.BaseDelay * time.Duration(1<<uint(attempt))
		if backoff > policy.MaxDelay || backoff <= 0 {
			backoff = policy.MaxDelay
		}
		base = backoff
	} else {
		base = policy.BaseDelay
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}
