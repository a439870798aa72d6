// Package recorder runs a logging session: it brings the card up, reads the
// session config, opens the CSV file and then moves accepted frames from the
// receive queue through the double buffer onto storage.
//
// Two goroutines touch the buffer. The receive queue worker filters,
// formats and appends frames and performs idle-flush handoffs. The writer
// loop polls for pending handoffs and writes them with a sync after each.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/config"
	"github.com/kstaniek/go-can-logger/internal/csvlog"
	"github.com/kstaniek/go-can-logger/internal/dblbuf"
	"github.com/kstaniek/go-can-logger/internal/filter"
	"github.com/kstaniek/go-can-logger/internal/logging"
	"github.com/kstaniek/go-can-logger/internal/metrics"
	"github.com/kstaniek/go-can-logger/internal/storage"
	"github.com/kstaniek/go-can-logger/internal/transport"
)

// Defaults for the writer loop.
const (
	DefaultIdleFlush    = 2 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
	DefaultQueueSize    = 64
)

var (
	// ErrNotStarted is returned by Deliver before Start.
	ErrNotStarted = errors.New("recorder: not started")
	// ErrQueueOverflow is returned by Deliver when the receive queue is full.
	ErrQueueOverflow = errors.New("recorder: receive queue overflow")
	// ErrHeaderWrite means the session header could not be written.
	ErrHeaderWrite = errors.New("recorder: header write failed")
)

// Storage is the card as seen by a session.
type Storage interface {
	ReadConfig() ([]byte, error)
	OpenSession(start time.Time) (storage.File, string, error)
}

// LinkConfigurator applies bitrate and silent mode to the CAN controller.
type LinkConfigurator interface {
	Configure(cfg *config.Config) error
}

// Options configure a Recorder. Zero fields take defaults.
type Options struct {
	Geometry     dblbuf.Geometry
	IdleFlush    time.Duration
	PollInterval time.Duration
	QueueSize    int
	// Mount brings up storage; required.
	Mount func() (Storage, error)
	// Link is optional.
	Link   LinkConfigurator
	Now    func() time.Time
	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Geometry == (dblbuf.Geometry{}) {
		o.Geometry = dblbuf.Geometry{
			Capacity:  dblbuf.DefaultCapacity,
			Threshold: dblbuf.DefaultThreshold,
			BlockSize: dblbuf.DefaultBlockSize,
			MaxLine:   csvlog.MaxLineLen,
		}
	}
	if o.IdleFlush <= 0 {
		o.IdleFlush = DefaultIdleFlush
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.L()
	}
}

// Recorder is one logging session.
type Recorder struct {
	opts Options
	log  *slog.Logger
	boot time.Time
	buf  *dblbuf.Buffer
	rx   atomic.Pointer[transport.RxQueue]

	state atomic.Int32
	// Set before the state becomes StateLogging and read-only afterwards.
	cfg      *config.Config
	file     storage.File
	fileName string

	lastWrite time.Time // writer goroutine only once logging
	started   atomic.Bool
	wg        sync.WaitGroup
}

// New builds a recorder in StateBoot. Nothing touches storage until Start.
func New(opts Options) (*Recorder, error) {
	opts.setDefaults()
	if opts.Mount == nil {
		return nil, errors.New("recorder: Mount is required")
	}
	r := &Recorder{opts: opts, log: opts.Logger, boot: opts.Now()}
	buf, err := dblbuf.New(opts.Geometry, dblbuf.Hooks{
		OnHandoff: func(n int, aligned bool) { metrics.IncHandoff(aligned) },
		OnOverrun: metrics.IncOverrun,
		OnDrop:    func(int) { metrics.IncBufferDrop() },
		OnFault:   r.onFault,
	})
	if err != nil {
		return nil, err
	}
	r.buf = buf
	metrics.SetState(int(StateBoot))
	metrics.SetFaults(0)
	return r, nil
}

// Start launches the receive worker and runs session startup. Frames
// delivered while startup is in progress, or after it failed, are drained and
// discarded. On success the writer loop is started. The returned error is the
// startup failure; the recorder keeps draining frames regardless.
func (r *Recorder) Start(ctx context.Context) error {
	if r.started.Swap(true) {
		return errors.New("recorder: already started")
	}
	rx := transport.NewRxQueue(ctx, r.opts.QueueSize, r.receive, transport.Hooks{
		OnDrop: func() error {
			metrics.IncRxQueueDrop()
			metrics.IncError(metrics.ErrRxOverflow)
			return ErrQueueOverflow
		},
		OnFlush: r.idleFlush,
	})
	r.rx.Store(rx)
	if err := r.startSession(); err != nil {
		r.log.Error("logging_disabled", "state", r.State().String(), "error", err)
		return err
	}
	r.wg.Add(1)
	go r.writerLoop(ctx, rx)
	return nil
}

// Deliver stamps f with the current tick and queues it for the receive
// worker. It never blocks.
func (r *Recorder) Deliver(f can.Frame) error {
	rx := r.rx.Load()
	if rx == nil {
		return ErrNotStarted
	}
	f.Tick = r.Tick()
	return rx.Deliver(f)
}

// Tick is the millisecond count since the recorder was created; it wraps.
func (r *Recorder) Tick() uint32 {
	return uint32(r.opts.Now().Sub(r.boot).Milliseconds())
}

// State returns the current life-cycle state.
func (r *Recorder) State() State { return State(r.state.Load()) }

// Faults returns the sticky fault set of the session.
func (r *Recorder) Faults() dblbuf.Fault { return r.buf.Faults() }

// Drops returns how many records were dropped for lack of buffer space.
func (r *Recorder) Drops() uint64 { return r.buf.Drops() }

// Config returns the session config, or nil before StateLogging.
func (r *Recorder) Config() *config.Config {
	if r.State() != StateLogging {
		return nil
	}
	return r.cfg
}

// FileName returns the session file name, or "" before StateLogging.
func (r *Recorder) FileName() string {
	if r.State() != StateLogging {
		return ""
	}
	return r.fileName
}

// Ready reports whether frames are being recorded.
func (r *Recorder) Ready() bool { return r.State() == StateLogging }

// Close stops the receive worker and the writer loop. The session file is
// left as is; anything not yet handed off is lost, as on power loss.
func (r *Recorder) Close() {
	if rx := r.rx.Load(); rx != nil {
		rx.Close()
	}
	r.wg.Wait()
}

func (r *Recorder) setState(s State) {
	r.state.Store(int32(s))
	metrics.SetState(int(s))
	r.log.Debug("state", "state", s.String())
}

func (r *Recorder) onFault(added dblbuf.Fault) {
	metrics.SetFaults(uint32(r.buf.Faults()))
	r.log.Warn("fault", "fault", added.String(), "faults", r.buf.Faults().String())
}

func (r *Recorder) startSession() error {
	st, err := r.opts.Mount()
	if err != nil {
		metrics.IncError(metrics.ErrMount)
		return err
	}
	r.setState(StateMounted)

	raw, err := st.ReadConfig()
	if err != nil {
		metrics.IncError(metrics.ErrConfig)
		return err
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		metrics.IncError(metrics.ErrConfig)
		return err
	}
	if r.opts.Link != nil {
		if err := r.opts.Link.Configure(cfg); err != nil {
			metrics.IncError(metrics.ErrLink)
			r.log.Warn("link_configure_failed", "error", err)
		}
	}
	r.cfg = cfg
	r.setState(StateConfigured)

	start := r.opts.Now().UTC()
	f, name, err := st.OpenSession(start)
	if err != nil {
		metrics.IncError(metrics.ErrOpen)
		return err
	}
	r.file, r.fileName = f, name

	// Neither side is running yet, so the header goes through the buffer and
	// straight to storage from here.
	r.buf.Reset()
	metrics.SetFaults(0)
	r.buf.Append(csvlog.Header(cfg.IncludeTimestamp))
	r.buf.RequestHandoff()
	if err := r.writePending(); err != nil {
		return fmt.Errorf("%w: %v", ErrHeaderWrite, err)
	}
	r.lastWrite = r.opts.Now()
	r.setState(StateLogging)
	r.log.Info("session_started", "file", name, "bitrate_kbps", cfg.BitrateKbps,
		"listen_only", cfg.ListenOnly(), "timestamp", cfg.IncludeTimestamp,
		"log_std", cfg.AcceptStd, "log_ext", cfg.AcceptExt,
		"filter_mask", fmt.Sprintf("0x%X", cfg.FilterMask), "filter_value", fmt.Sprintf("0x%X", cfg.FilterValue))
	return nil
}

// receive runs on the receive queue worker.
func (r *Recorder) receive(f can.Frame) {
	if r.State() != StateLogging {
		metrics.IncDiscarded()
		return
	}
	if !filter.Accept(f, r.cfg) {
		metrics.IncRejected()
		return
	}
	var scratch [csvlog.MaxLineLen]byte
	if r.buf.Append(csvlog.AppendRecord(scratch[:0], f, r.cfg.IncludeTimestamp)) {
		metrics.IncRecorded()
	}
}

// idleFlush runs on the receive queue worker on behalf of the writer loop.
func (r *Recorder) idleFlush() {
	// A request queued while a handoff is still pending is stale.
	if r.State() != StateLogging || r.buf.Len() == 0 || r.buf.IsPending() {
		return
	}
	if r.buf.RequestHandoff() {
		metrics.IncIdleFlush()
	}
}

func (r *Recorder) writerLoop(ctx context.Context, rx *transport.RxQueue) {
	defer r.wg.Done()
	t := time.NewTicker(r.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rx.Done():
			return
		case <-t.C:
		}
		r.poll(rx)
	}
}

// poll is one writer iteration: request an idle flush when due, then write
// any pending handoff. No flush is requested while a handoff is pending.
func (r *Recorder) poll(rx *transport.RxQueue) {
	if !r.buf.IsPending() && r.buf.Len() > 0 && r.opts.Now().Sub(r.lastWrite) > r.opts.IdleFlush {
		rx.Flush()
	}
	if !r.buf.IsPending() {
		return
	}
	if err := r.writePending(); err != nil {
		r.log.Error("write_failed", "file", r.fileName, "error", err)
	}
	r.lastWrite = r.opts.Now()
}

// writePending writes and syncs the pending half, then releases it. A failed
// or short write sets the write fault; the data is not retried.
func (r *Recorder) writePending() error {
	data, ok := r.buf.Pending()
	if !ok {
		return nil
	}
	defer r.buf.Release()
	n, err := r.file.Write(data)
	metrics.AddWrite(n)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err != nil {
		metrics.IncError(metrics.ErrWrite)
		r.buf.SetFault(dblbuf.FaultWrite)
		return err
	}
	if err := r.file.Sync(); err != nil {
		metrics.IncError(metrics.ErrSync)
		r.buf.SetFault(dblbuf.FaultWrite)
		return err
	}
	return nil
}
