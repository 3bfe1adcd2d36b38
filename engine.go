package accelsched

import (
	"context"
	"time"

	"github.com/coredispatch/accelsched/internal/cmdpool"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/dispatch"
	"github.com/coredispatch/accelsched/internal/logging"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
	"github.com/coredispatch/accelsched/internal/sched"
)

// EngineParams configures a new Engine, mirroring the teacher's
// DeviceParams/DefaultParams pair: a struct of knobs plus a constructor
// supplying this spec's defaults (software mode, polling, no ERT/CDMA)
// rather than exposing ExecCore's raw fields.
type EngineParams struct {
	// MMIOSize is the byte size of the simulated register/command-queue
	// window backing this engine. Must be at least CQSize.
	MMIOSize int

	// ERTAvailable and CDMAEnabled model the feature-ROM capability bits
	// a real device would report. CONFIGURE switches to the ERT back-end
	// only when ERTAvailable is set and the payload's Features word also
	// has the ERT bit; it appends a CDMA CU address whenever CDMAEnabled
	// is set, whatever the payload's CDMA feature bit says.
	ERTAvailable bool
	CDMAEnabled  bool

	// CPUAffinity pins the scheduler worker to a single CPU (-1 leaves it
	// unpinned), as described in internal/sched.Worker.
	CPUAffinity int
}

// DefaultEngineParams returns the power-on-equivalent defaults: software
// dispatch, polling, no ERT/CDMA, unpinned worker.
func DefaultEngineParams() EngineParams {
	return EngineParams{
		MMIOSize:     CQSize + (1 << 20),
		ERTAvailable: false,
		CDMAEnabled:  false,
		CPUAffinity:  -1,
	}
}

// Options carries cross-cutting dependencies for CreateEngine, mirroring
// the teacher's Options{Context, Logger, Observer}.
type Options struct {
	// Context, if set, overrides the ctx argument to CreateEngine as the
	// engine's lifetime context (the teacher's Options.Context does the
	// same for CreateAndServe).
	Context context.Context

	// Logger receives scheduler lifecycle/transition logs. Defaults to
	// logging.Default() when nil.
	Logger *logging.Logger

	// Observer receives scheduling events for custom metrics sinks.
	// Defaults to a MetricsObserver over the engine's own Metrics.
	Observer Observer
}

// EngineState mirrors DeviceState: created-but-not-configured, running,
// or stopped.
type EngineState string

const (
	EngineStateCreated EngineState = "created"
	EngineStateRunning EngineState = "running"
	EngineStateStopped EngineState = "stopped"
)

// Engine is the public handle to a running scheduler: one ExecCore, one
// worker goroutine, and the command pool/pending queue feeding it.
type Engine struct {
	ec      *core.ExecCore
	pool    *cmdpool.Pool[core.Command]
	pending *cmdpool.Pending[core.Command]
	worker  *sched.Worker
	poller  *sched.CQPoller

	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	stopped bool
}

// CreateEngine builds an Engine and starts its scheduler worker goroutine.
// The device remains unconfigured (spec.md §4.4) until a CONFIGURE command
// is submitted and runs; callers typically follow CreateEngine immediately
// with Submit of a CONFIGURE command built via BuildConfigureCommand.
//
//	engine, err := accelsched.CreateEngine(context.Background(), accelsched.DefaultEngineParams(), nil)
//	engine.Submit(engine.BuildConfigureCommand(cfg))
func CreateEngine(ctx context.Context, params EngineParams, options *Options) (*Engine, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}
	if options.Logger != nil {
		logging.SetDefault(options.Logger)
	}

	size := params.MMIOSize
	if size < CQSize {
		size = CQSize
	}
	region := mmio.NewRegion(size)
	ec := core.NewExecCore(region, params.ERTAvailable, params.CDMAEnabled, dispatch.NewSoftware, dispatch.NewERT)

	pool := cmdpool.NewPool(core.NewCommand)
	pending := cmdpool.NewPending[core.Command]()
	worker := sched.NewWorker(ec, pool, pending)
	worker.CPUAffinity = params.CPUAffinity

	metrics := NewMetrics()
	if options.Observer != nil {
		worker.Observer = options.Observer
	} else {
		worker.Observer = NewMetricsObserver(metrics)
	}

	engineCtx, cancel := context.WithCancel(ctx)
	engine := &Engine{
		ec:      ec,
		pool:    pool,
		pending: pending,
		worker:  worker,
		metrics: metrics,
		ctx:     engineCtx,
		cancel:  cancel,
	}

	go worker.Run(engineCtx)

	return engine, nil
}

// StopEngine cancels the engine's worker (and device-side poller, if one
// was started) and stamps its metrics as stopped. Mirrors StopAndDelete,
// minus the kernel device-teardown steps this simulation has no analogue
// for.
func StopEngine(ctx context.Context, engine *Engine) error {
	if engine == nil {
		return New("stop_engine", CodeNotConfigured, "nil engine")
	}
	engine.cancel()
	engine.metrics.Stop()
	engine.stopped = true
	// Give the worker goroutine a moment to observe cancellation before
	// the caller potentially tears down the MMIO region underneath it.
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
	return nil
}

// New builds a structured Error for the public API surface (thin wrapper
// over accerr.New, spelled out here so callers of this package never need
// to import internal/accerr to build one).
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Slot: -1, Msg: msg}
}

// NewCommand returns a pooled, reset *core.Command ready for the caller to
// populate (Opcode, Type, Packet, DepRefs, BO, Client) before Submit.
func (e *Engine) NewCommand() *core.Command {
	cmd := e.pool.Get()
	cmd.Reset()
	cmd.Core = e.ec
	return cmd
}

// MMIO returns the engine's simulated register/command-queue window, for
// callers wiring a cu.SimCU or MockCU watcher against it.
func (e *Engine) MMIO() *mmio.Region {
	return e.ec.MMIO
}

// Submit admits cmd into the scheduler (spec.md §4.3/§4.5). The command
// must have been obtained from NewCommand (or otherwise carry Core set to
// this engine's ExecCore).
func (e *Engine) Submit(cmd *core.Command) {
	e.worker.Submit(cmd)
}

// AttachClient registers a new client context with this engine's exec
// core, for commands that need outstanding-count tracking and poll-ready
// notification.
func (e *Engine) AttachClient(pid int) *core.ClientContext {
	c := core.NewClientContext(pid)
	e.ec.Clients.Attach(c)
	return c
}

// Teardown aborts and drains a client's outstanding commands (spec.md
// §4.10), detaching it from the engine once safe.
func (e *Engine) Teardown(ctx context.Context, client *core.ClientContext) error {
	return sched.Teardown(ctx, e.ec, client)
}

// HandleIRQ adapts a completion interrupt for status-register bank n into
// scheduler-visible state (spec.md §4.9).
func (e *Engine) HandleIRQ(n int) {
	core.HandleIRQ(e.ec, n)
}

// StartCQPoller launches the device-side command-queue scanner (spec.md
// §4.8's ERT-on-device submission path) on its own goroutine. Only
// meaningful once CONFIGURE has installed the ERT back-end with CQInterrupt
// left false; calling it before CONFIGURE runs is harmless but the poller
// will scan a CQ geometry not yet set up for the device's real packet
// format.
func (e *Engine) StartCQPoller(ctx context.Context) {
	if e.poller == nil {
		e.poller = sched.NewCQPoller(e.ec, e.worker, e.pool)
	}
	pollerCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-pollerCtx.Done():
		case <-e.ctx.Done():
		}
	}()
	go e.poller.Run(pollerCtx)
}

// State reports whether the engine has been configured, is running, or
// has been stopped.
func (e *Engine) State() EngineState {
	if e == nil || e.stopped {
		return EngineStateStopped
	}
	if !e.ec.Configured {
		return EngineStateCreated
	}
	return EngineStateRunning
}

// EngineInfo mirrors DeviceInfo: a snapshot of an engine's configuration
// and liveness.
type EngineInfo struct {
	State       EngineState
	Configured  bool
	NumSlots    int
	NumCUs      int
	DispatchOps string
	NeedsReset  bool
}

// Info returns a point-in-time snapshot of the engine's configuration.
func (e *Engine) Info() EngineInfo {
	info := EngineInfo{
		State:      e.State(),
		Configured: e.ec.Configured,
		NumSlots:   e.ec.NumSlots,
		NumCUs:     e.ec.NumCUs,
		NeedsReset: e.ec.NeedsReset.Load(),
	}
	if e.ec.Ops != nil {
		info.DispatchOps = e.ec.Ops.Name()
	}
	return info
}

// Metrics returns the engine's live metrics counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of the engine's metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// BuildConfigureCommand builds a ready-to-Submit CONFIGURE command from a
// decoded payload, convenience over NewCommand for the common case of
// bringing an engine up.
func (e *Engine) BuildConfigureCommand(cfg packet.ConfigurePayload) *core.Command {
	cmd := e.NewCommand()
	payload := packet.BuildConfigurePayload(cfg)
	p := packet.NewPacket(packet.OpConfigure, packet.TypeDevice, len(payload))
	copy(p.Payload, payload)
	cmd.Opcode = packet.OpConfigure
	cmd.Packet = p
	return cmd
}
