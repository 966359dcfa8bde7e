package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/fleetops/authz-core/internal/domain"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	requestMillis   map[string]int64
	errorCount      map[string]int64
	decisionCount   map[string]int64
	cacheHits       int64
	cacheMisses     int64
	emergencyAllows int64
	auditDropped    int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests        map[string]int64 `json:"requests"`
	RequestMillis   map[string]int64 `json:"request_millis"`
	Errors          map[string]int64 `json:"errors"`
	Decisions       map[string]int64 `json:"decisions"`
	CacheHits       int64            `json:"cache_hits"`
	CacheMisses     int64            `json:"cache_misses"`
	EmergencyAllows int64            `json:"emergency_allows"`
	AuditDropped    int64            `json:"audit_dropped"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		requestMillis: make(map[string]int64),
		errorCount:    make(map[string]int64),
		decisionCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDecision counts a terminal authorization decision.
func (m *Metrics) RecordDecision(decision domain.AuthorizationDecision) {
	if m == nil {
		return
	}
	key := decision.Outcome()
	if decision.Reason != "" {
		key += "|" + string(decision.Reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisionCount[key]++
	if decision.CacheHit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	if decision.EmergencyBypass && decision.Allow {
		m.emergencyAllows++
	}
}

// RecordAuditDropped counts an audit event lost to a full queue.
func (m *Metrics) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditDropped++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:        copyCounts(m.requestCount),
		RequestMillis:   copyCounts(m.requestMillis),
		Errors:          copyCounts(m.errorCount),
		Decisions:       copyCounts(m.decisionCount),
		CacheHits:       m.cacheHits,
		CacheMisses:     m.cacheMisses,
		EmergencyAllows: m.emergencyAllows,
		AuditDropped:    m.auditDropped,
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
