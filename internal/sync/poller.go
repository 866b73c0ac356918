package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/robfig/cron/v3"

	"github.com/nhle/chocosync/internal/logging"
	"github.com/nhle/chocosync/internal/mailbox"
	"github.com/nhle/chocosync/internal/workflow"
)

// RunState represents the current state of the scheduled batch.
type RunState int

const (
	RunIdle RunState = iota
	RunRunning
	RunError
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunRunning:
		return "running"
	case RunError:
		return "error"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// RunStatus holds the scheduler state shown by the watch view.
type RunStatus struct {
	Schedule string
	State    RunState
	LastRun  time.Time
	NextRun  time.Time
	Runs     int
	Error    error
}

// RunResultMsg is a tea.Msg sent when a batch run completes.
type RunResultMsg struct {
	Report    workflow.Report
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when the mailbox rejects the credentials.
type AuthErrorMsg struct {
	Message string
}

// BatchRunner runs one batch of workflows.
type BatchRunner interface {
	Run(ctx context.Context) workflow.Report
}

// runTimeout is the maximum time allowed for a single batch.
const runTimeout = 5 * time.Minute

// Poller runs the batch on a cron schedule and on demand. A Poller is
// single-use: once stopped it cannot be started again.
type Poller struct {
	runner   BatchRunner
	schedule cron.Schedule
	spec     string
	cron     *cron.Cron
	logger   *logging.Logger
	timeout  time.Duration

	resultCh  chan RunResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	runMu     gosync.Mutex

	mu      gosync.Mutex
	status  RunStatus
	running bool
	stopped bool
	now     func() time.Time
}

// New creates a Poller for a five-field cron expression.
func New(runner BatchRunner, spec string, logger *logging.Logger) (*Poller, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	cl := cronLogger{logger: logger.With("component", "scheduler")}
	return &Poller{
		runner:   runner,
		schedule: schedule,
		spec:     spec,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:    logger,
		timeout:   runTimeout,
		resultCh:  make(chan RunResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}, nil
}

// Start schedules the batch, runs it once immediately and returns a tea.Cmd
// that delivers the first RunResultMsg. It returns nil when the poller is
// already running or has been stopped.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.cron.Schedule(p.schedule, cron.FuncJob(p.runOnce))
	p.cron.Start()

	go p.loop()

	select {
	case p.triggerCh <- struct{}{}:
	default:
	}

	return p.waitForResult()
}

// Stop halts the schedule and waits for a running batch to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	<-p.cron.Stop().Done()

	// runMu stays held: no batch starts after Stop.
	p.runMu.Lock()
}

// Refresh triggers an immediate batch run unless one is already queued.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A run is already queued.
	}
	return nil
}

// Status returns the current scheduler state.
func (p *Poller) Status() RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.status
	st.Schedule = p.spec
	st.NextRun = p.schedule.Next(p.now())
	return st
}

// Results exposes the result channel for callers that do not use Bubble Tea.
func (p *Poller) Results() <-chan RunResultMsg {
	return p.resultCh
}

// WaitForNextResult returns a tea.Cmd that waits for the next run result.
// Call it after handling each RunResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

func (p *Poller) loop() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.triggerCh:
			p.runOnce()
		}
	}
}

// runOnce runs one batch. Overlapping scheduled and manual runs are skipped.
func (p *Poller) runOnce() {
	if !p.runMu.TryLock() {
		p.logger.Info("batch already running, skipping")
		return
	}
	defer p.runMu.Unlock()

	p.setStatus(RunRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	report := p.runner.Run(ctx)
	err := report.Err()

	if err != nil {
		p.setStatus(RunError, err)
	} else {
		p.setStatus(RunIdle, nil)
	}

	msg := RunResultMsg{Report: report, Error: err}
	var authErr *mailbox.AuthError
	if errors.As(err, &authErr) {
		msg.AuthError = &AuthErrorMsg{
			Message: fmt.Sprintf("%s: authentication failed. Update the credentials and press 'r'.", authErr.Backend),
		}
	}
	p.sendResult(msg)
}

func (p *Poller) setStatus(state RunState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state != RunRunning {
		p.status.LastRun = p.now()
		p.status.Runs++
	}
}

// sendResult sends a RunResultMsg without blocking.
func (p *Poller) sendResult(msg RunResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if nobody is listening.
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-p.stopCh:
			return nil
		}
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
