// Package telemetry publishes service counters through expvar. The counters
// are cumulative since process start and are exposed on /debug/vars.
package telemetry

import (
	"expvar"
	"net/http"
	"sync"
	"time"
)

var (
	initOnce sync.Once

	ingestRuns       *expvar.Int
	ingestFragments  *expvar.Int
	retrievalQueries *expvar.Int
	chatRequests     *expvar.Int
	chatLatencyMS    *expvar.Int
)

func ensure() {
	initOnce.Do(func() {
		ingestRuns = expvar.NewInt("repopilot_ingest_runs")
		ingestFragments = expvar.NewInt("repopilot_ingest_fragments")
		retrievalQueries = expvar.NewInt("repopilot_retrieval_queries")
		chatRequests = expvar.NewInt("repopilot_chat_requests")
		chatLatencyMS = expvar.NewInt("repopilot_chat_latency_ms_total")
	})
}

// RecordIngest counts one completed ingestion run and its fragments.
func RecordIngest(fragments int) {
	ensure()
	ingestRuns.Add(1)
	ingestFragments.Add(int64(fragments))
}

// RecordRetrieval counts the similarity queries issued for one question.
func RecordRetrieval(queries int) {
	ensure()
	retrievalQueries.Add(int64(queries))
}

// RecordChat counts one answered question and accumulates its latency.
func RecordChat(elapsed time.Duration) {
	ensure()
	chatRequests.Add(1)
	chatLatencyMS.Add(elapsed.Milliseconds())
}

// Handler serves the expvar snapshot.
func Handler() http.Handler {
	ensure()
	return expvar.Handler()
}
