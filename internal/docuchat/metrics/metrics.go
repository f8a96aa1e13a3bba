// Package metrics collects service-level counters for the chat core.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ChatMetrics aggregates counters across chat and ingestion. Counters
// use atomics; the float durations share one small mutex.
type ChatMetrics struct {
	chatsTotal        uint64
	chatsCacheHits    uint64
	chatsCacheMisses  uint64
	chatsErrors       uint64
	chatsNoDocuments  uint64
	chatsNoPassages   uint64
	chatsTimeouts     uint64

	retrievalTotal    uint64
	retrievalDuration float64
	retrievalErrors   uint64

	completionTotal    uint64
	completionDuration float64
	completionErrors   uint64

	documentsIngested uint64
	chunksIngested    uint64
	documentsDeleted  uint64
	ingestErrors      uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalChatMetrics *ChatMetrics
	chatMetricsOnce   sync.Once
)

// GetChatMetrics returns the process-wide metrics instance.
func GetChatMetrics() *ChatMetrics {
	chatMetricsOnce.Do(func() {
		globalChatMetrics = &ChatMetrics{
			startTime: time.Now(),
		}
	})
	return globalChatMetrics
}

// RecordChat records one finished chat request.
func (m *ChatMetrics) RecordChat(cacheHit bool, err error) {
	atomic.AddUint64(&m.chatsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.chatsErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.chatsCacheHits, 1)
	} else {
		atomic.AddUint64(&m.chatsCacheMisses, 1)
	}
}

// RecordNoDocuments records a chat answered by the gating advisory.
func (m *ChatMetrics) RecordNoDocuments() {
	atomic.AddUint64(&m.chatsNoDocuments, 1)
}

// RecordNoPassages records a chat whose retrieval came back empty.
func (m *ChatMetrics) RecordNoPassages() {
	atomic.AddUint64(&m.chatsNoPassages, 1)
}

// RecordTimeout records a chat that gave up waiting for completion.
func (m *ChatMetrics) RecordTimeout() {
	atomic.AddUint64(&m.chatsTimeouts, 1)
}

// RecordRetrieval records one retrieval attempt.
func (m *ChatMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordCompletion records one completion call.
func (m *ChatMetrics) RecordCompletion(duration time.Duration, err error) {
	atomic.AddUint64(&m.completionTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.completionErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.completionDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordIngest records an ingestion outcome.
func (m *ChatMetrics) RecordIngest(documents, chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.ingestErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIngested, uint64(documents))
	atomic.AddUint64(&m.chunksIngested, uint64(chunks))
}

// RecordDelete records a successful document deletion.
func (m *ChatMetrics) RecordDelete() {
	atomic.AddUint64(&m.documentsDeleted, 1)
}

// Export renders the counters in Prometheus text format.
func (m *ChatMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n\n", prefix, name, value))
	}
	gauge := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.6f\n\n", prefix, name, value))
	}

	counter("chats_total", "Total number of chat requests.", atomic.LoadUint64(&m.chatsTotal))
	counter("chats_cache_hits_total", "Number of answer cache hits.", atomic.LoadUint64(&m.chatsCacheHits))
	counter("chats_cache_misses_total", "Number of answer cache misses.", atomic.LoadUint64(&m.chatsCacheMisses))
	counter("chats_errors_total", "Number of failed chat requests.", atomic.LoadUint64(&m.chatsErrors))
	counter("chats_no_documents_total", "Chats answered by the no-documents advisory.", atomic.LoadUint64(&m.chatsNoDocuments))
	counter("chats_no_passages_total", "Chats where retrieval produced no passages.", atomic.LoadUint64(&m.chatsNoPassages))
	counter("chats_timeouts_total", "Chats that timed out waiting for completion.", atomic.LoadUint64(&m.chatsTimeouts))

	cacheHits := atomic.LoadUint64(&m.chatsCacheHits)
	cacheMisses := atomic.LoadUint64(&m.chatsCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}
	gauge("cache_hit_rate", "Answer cache hit rate (0-1).", cacheHitRate)

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	completionDuration := m.completionDuration
	m.durationMu.Unlock()

	counter("retrieval_total", "Total number of retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	gauge("retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)
	counter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	counter("completion_calls_total", "Total number of completion calls.", atomic.LoadUint64(&m.completionTotal))
	gauge("completion_duration_seconds_total", "Total completion call duration.", completionDuration)
	counter("completion_errors_total", "Number of completion call errors.", atomic.LoadUint64(&m.completionErrors))

	counter("documents_ingested_total", "Total documents ingested.", atomic.LoadUint64(&m.documentsIngested))
	counter("chunks_ingested_total", "Total chunks ingested.", atomic.LoadUint64(&m.chunksIngested))
	counter("documents_deleted_total", "Total documents deleted.", atomic.LoadUint64(&m.documentsDeleted))
	counter("ingest_errors_total", "Number of ingestion errors.", atomic.LoadUint64(&m.ingestErrors))

	gauge("uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats returns the counters as a nested map for the stats endpoint.
func (m *ChatMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	completionDuration := m.completionDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.chatsCacheHits)
	cacheMisses := atomic.LoadUint64(&m.chatsCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrieval := 0.0
	if retrievalTotal > 0 {
		avgRetrieval = retrievalDuration / float64(retrievalTotal)
	}

	completionTotal := atomic.LoadUint64(&m.completionTotal)
	avgCompletion := 0.0
	if completionTotal > 0 {
		avgCompletion = completionDuration / float64(completionTotal)
	}

	return map[string]interface{}{
		"chats": map[string]interface{}{
			"total":          atomic.LoadUint64(&m.chatsTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"errors":         atomic.LoadUint64(&m.chatsErrors),
			"no_documents":   atomic.LoadUint64(&m.chatsNoDocuments),
			"no_passages":    atomic.LoadUint64(&m.chatsNoPassages),
			"timeouts":       atomic.LoadUint64(&m.chatsTimeouts),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrieval,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"completion": map[string]interface{}{
			"calls_total":         completionTotal,
			"total_duration_secs": completionDuration,
			"avg_duration_secs":   avgCompletion,
			"errors":              atomic.LoadUint64(&m.completionErrors),
		},
		"ingestion": map[string]interface{}{
			"documents_ingested": atomic.LoadUint64(&m.documentsIngested),
			"chunks_ingested":    atomic.LoadUint64(&m.chunksIngested),
			"documents_deleted":  atomic.LoadUint64(&m.documentsDeleted),
			"errors":             atomic.LoadUint64(&m.ingestErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset clears all counters, for tests only.
func (m *ChatMetrics) Reset() {
	atomic.StoreUint64(&m.chatsTotal, 0)
	atomic.StoreUint64(&m.chatsCacheHits, 0)
	atomic.StoreUint64(&m.chatsCacheMisses, 0)
	atomic.StoreUint64(&m.chatsErrors, 0)
	atomic.StoreUint64(&m.chatsNoDocuments, 0)
	atomic.StoreUint64(&m.chatsNoPassages, 0)
	atomic.StoreUint64(&m.chatsTimeouts, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.completionTotal, 0)
	atomic.StoreUint64(&m.completionErrors, 0)
	atomic.StoreUint64(&m.documentsIngested, 0)
	atomic.StoreUint64(&m.chunksIngested, 0)
	atomic.StoreUint64(&m.documentsDeleted, 0)
	atomic.StoreUint64(&m.ingestErrors, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.completionDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
