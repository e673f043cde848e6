package monitoring

import (
	"net/http"

	"github.com/mezonai/herder/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RejectReason classifies why validateValue/validateBallot produced cb(false).
type RejectReason string

var (
	RejectDecodeFailure  RejectReason = "decode_failure"
	RejectBadSignature   RejectReason = "bad_signature"
	RejectSlotMismatch   RejectReason = "slot_mismatch"
	RejectStaleCloseTime RejectReason = "stale_close_time"
	RejectInvalidTxSet   RejectReason = "invalid_txset"
	RejectTimeSlip       RejectReason = "time_slip"
	RejectCounterRate    RejectReason = "counter_rate"
	RejectFeeOutOfRange  RejectReason = "fee_out_of_range"
	RejectUntrusted      RejectReason = "untrusted"
	RejectSelfEnvelope   RejectReason = "self_envelope"
	RejectOutOfBracket   RejectReason = "ledger_validity_bracket_exceeded"
)

type herderPromMetrics struct {
	nodeUpUnixSeconds  prometheus.Gauge
	mempoolSize        *prometheus.GaugeVec
	panicCount         prometheus.Counter
	rejectedCount      *prometheus.CounterVec
	pendingFetches     *prometheus.GaugeVec
	fetchResolvedTotal prometheus.Counter
	deferredTimers     prometheus.Gauge
	vBlockingAccepts   prometheus.Counter
	lastClosedLedger   prometheus.Gauge
	slotsExternalized  prometheus.Counter
	triggerLatency     prometheus.Histogram
	syncCounter        prometheus.Gauge
}

func newHerderPromMetrics() *herderPromMetrics {
	return &herderPromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "herder_up_timestamp_unix_seconds",
			Help: "Unix timestamp of process start",
		}),
		mempoolSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "herder_mempool_generation_size",
			Help: "Number of transactions held in each mempool generation",
		}, []string{"generation"}),
		panicCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "herder_panic_count",
			Help: "Number of panics recovered from background goroutines",
		}),
		rejectedCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "herder_rejected_total",
			Help: "Statements rejected by the validator, by reason",
		}, []string{"reason"}),
		pendingFetches: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "herder_pending_fetches",
			Help: "Outstanding item-fetcher requests per content kind",
		}, []string{"kind"}),
		fetchResolvedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "herder_fetch_resolved_total",
			Help: "Content fetches resolved via recvItem",
		}),
		deferredTimers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "herder_deferred_ballot_timers",
			Help: "Outstanding deferred-acceptance ballot timers",
		}),
		vBlockingAccepts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "herder_vblocking_accepts_total",
			Help: "Ballots accepted early because requesters became v-blocking",
		}),
		lastClosedLedger: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "herder_last_closed_ledger_seq",
			Help: "ledgerSeq of the last closed ledger",
		}),
		slotsExternalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "herder_slots_externalized_total",
			Help: "Slots externalized by the FBA kernel",
		}),
		triggerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "herder_trigger_latency_seconds",
			Help: "Delay between scheduled and actual triggerNextLedger firing",
		}),
		syncCounter: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "herder_ledgers_to_wait_to_participate",
			Help: "Remaining ledgers before this node fully participates",
		}),
	}
}

var metrics *herderPromMetrics

// InitMetrics sets up the process-wide metric registry. Safe to call once at startup.
func InitMetrics() {
	metrics = newHerderPromMetrics()
	metrics.nodeUpUnixSeconds.SetToCurrentTime()
}

// RegisterMetrics mounts the /metrics scrape endpoint on mux.
func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func IncreasePanicCount() {
	if metrics == nil {
		return
	}
	metrics.panicCount.Inc()
}

func SetMempoolGenerationSize(generation int, size int) {
	if metrics == nil {
		return
	}
	metrics.mempoolSize.With(prometheus.Labels{"generation": generationLabel(generation)}).Set(float64(size))
}

func RecordRejected(reason RejectReason) {
	if metrics == nil {
		return
	}
	metrics.rejectedCount.With(prometheus.Labels{"reason": string(reason)}).Inc()
}

func SetPendingFetches(kind string, n int) {
	if metrics == nil {
		return
	}
	metrics.pendingFetches.With(prometheus.Labels{"kind": kind}).Set(float64(n))
}

func IncreaseFetchResolved() {
	if metrics == nil {
		return
	}
	metrics.fetchResolvedTotal.Inc()
}

func SetDeferredTimers(n int) {
	if metrics == nil {
		return
	}
	metrics.deferredTimers.Set(float64(n))
}

func IncreaseVBlockingAccepts() {
	if metrics == nil {
		return
	}
	metrics.vBlockingAccepts.Inc()
}

func SetLastClosedLedgerSeq(seq uint64) {
	if metrics == nil {
		return
	}
	metrics.lastClosedLedger.Set(float64(seq))
}

func IncreaseSlotsExternalized() {
	if metrics == nil {
		return
	}
	metrics.slotsExternalized.Inc()
}

func RecordTriggerLatencySeconds(seconds float64) {
	if metrics == nil {
		return
	}
	metrics.triggerLatency.Observe(seconds)
}

func SetLedgersToWaitToParticipate(n int) {
	if metrics == nil {
		return
	}
	metrics.syncCounter.Set(float64(n))
}

func generationLabel(g int) string {
	switch g {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "3"
	}
}
