package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-can-logger/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total CAN frames decoded from the serial adapter.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	RxQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rx_queue_dropped_frames_total",
		Help: "Frames dropped because the receive queue was full.",
	})
	RecordedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_frames_recorded_total",
		Help: "Frames accepted by the filter and appended to the buffer.",
	})
	RejectedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_frames_rejected_total",
		Help: "Frames rejected by the acceptance filter.",
	})
	DiscardedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_frames_discarded_total",
		Help: "Frames drained while no session was logging.",
	})
	BufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buffer_dropped_records_total",
		Help: "Records dropped because the accumulating buffer was full.",
	})
	Handoffs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buffer_handoffs_total",
		Help: "Buffer handoffs from the receive path to the writer.",
	})
	AlignedHandoffs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buffer_aligned_handoffs_total",
		Help: "Handoffs whose data was padded to a block boundary.",
	})
	IdleFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buffer_idle_flushes_total",
		Help: "Handoffs forced by the idle-flush deadline.",
	})
	Overruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buffer_overruns_total",
		Help: "Handoff requests refused because the previous one was pending.",
	})
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_written_bytes_total",
		Help: "Bytes written to the session file.",
	})
	Writes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_writes_total",
		Help: "Write+sync cycles performed on the session file.",
	})
	RecorderState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_state",
		Help: "Session state: 0 boot, 1 mounted, 2 configured, 3 logging.",
	})
	RecorderFaults = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_faults",
		Help: "Sticky fault bits: 1 overrun, 2 write fault.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed serial frames (invalid length, bad checksum).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialRead    = "serial_read"
	ErrSocketCANRead = "socketcan_read"
	ErrRxOverflow    = "rx_queue_overflow"
	ErrMount         = "mount"
	ErrConfig        = "config"
	ErrLink          = "link"
	ErrOpen          = "open"
	ErrWrite         = "write"
	ErrSync          = "sync"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSerialRx     uint64
	localSocketCANRx  uint64
	localRxQueueDrops uint64
	localRecorded     uint64
	localRejected     uint64
	localDiscarded    uint64
	localBufferDrops  uint64
	localHandoffs     uint64
	localAligned      uint64
	localIdleFlushes  uint64
	localOverruns     uint64
	localBytes        uint64
	localWrites       uint64
	localErrors       uint64
	localMalformed    uint64
	localState        uint64
	localFaults       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialRx     uint64
	SocketCANRx  uint64
	RxQueueDrops uint64
	Recorded     uint64
	Rejected     uint64
	Discarded    uint64
	BufferDrops  uint64
	Handoffs     uint64
	Aligned      uint64
	IdleFlushes  uint64
	Overruns     uint64
	BytesWritten uint64
	Writes       uint64
	Errors       uint64 // sum across error labels
	Malformed    uint64
	State        uint64
	Faults       uint64
}

func Snap() Snapshot {
	return Snapshot{
		SerialRx:     atomic.LoadUint64(&localSerialRx),
		SocketCANRx:  atomic.LoadUint64(&localSocketCANRx),
		RxQueueDrops: atomic.LoadUint64(&localRxQueueDrops),
		Recorded:     atomic.LoadUint64(&localRecorded),
		Rejected:     atomic.LoadUint64(&localRejected),
		Discarded:    atomic.LoadUint64(&localDiscarded),
		BufferDrops:  atomic.LoadUint64(&localBufferDrops),
		Handoffs:     atomic.LoadUint64(&localHandoffs),
		Aligned:      atomic.LoadUint64(&localAligned),
		IdleFlushes:  atomic.LoadUint64(&localIdleFlushes),
		Overruns:     atomic.LoadUint64(&localOverruns),
		BytesWritten: atomic.LoadUint64(&localBytes),
		Writes:       atomic.LoadUint64(&localWrites),
		Errors:       atomic.LoadUint64(&localErrors),
		Malformed:    atomic.LoadUint64(&localMalformed),
		State:        atomic.LoadUint64(&localState),
		Faults:       atomic.LoadUint64(&localFaults),
	}
}

// Wrapper helpers to keep call sites simple.
func IncSerialRx() {
	SerialRxFrames.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

func IncRxQueueDrop() {
	RxQueueDrops.Inc()
	atomic.AddUint64(&localRxQueueDrops, 1)
}

func IncRecorded() {
	RecordedFrames.Inc()
	atomic.AddUint64(&localRecorded, 1)
}

func IncRejected() {
	RejectedFrames.Inc()
	atomic.AddUint64(&localRejected, 1)
}

func IncDiscarded() {
	DiscardedFrames.Inc()
	atomic.AddUint64(&localDiscarded, 1)
}

func IncBufferDrop() {
	BufferDrops.Inc()
	atomic.AddUint64(&localBufferDrops, 1)
}

// IncHandoff counts a buffer swap; aligned marks one that needed padding.
func IncHandoff(aligned bool) {
	Handoffs.Inc()
	atomic.AddUint64(&localHandoffs, 1)
	if aligned {
		AlignedHandoffs.Inc()
		atomic.AddUint64(&localAligned, 1)
	}
}

func IncIdleFlush() {
	IdleFlushes.Inc()
	atomic.AddUint64(&localIdleFlushes, 1)
}

func IncOverrun() {
	Overruns.Inc()
	atomic.AddUint64(&localOverruns, 1)
}

// AddWrite records one write cycle of n bytes.
func AddWrite(n int) {
	Writes.Inc()
	atomic.AddUint64(&localWrites, 1)
	if n > 0 {
		BytesWritten.Add(float64(n))
		atomic.AddUint64(&localBytes, uint64(n))
	}
}

func SetState(s int) {
	RecorderState.Set(float64(s))
	atomic.StoreUint64(&localState, uint64(s))
}

func SetFaults(f uint32) {
	RecorderFaults.Set(float64(f))
	atomic.StoreUint64(&localFaults, uint64(f))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so dashboards see zeros before the first error.
	for _, lbl := range []string{
		ErrSerialRead, ErrSocketCANRead, ErrRxOverflow,
		ErrMount, ErrConfig, ErrLink, ErrOpen, ErrWrite, ErrSync,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
