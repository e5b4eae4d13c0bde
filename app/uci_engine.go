// Starts the engine subprocess, speaks UCI over stdin/stdout, and exposes
// handshake, option configuration and streaming multipv analysis. One live
// subprocess per session; the session owns the pipes exclusively.

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

// Session error taxonomy. Every fatal condition surfaces one of these so
// callers can tell a missing binary from a CPU-feature mismatch.
var (
	ErrSpawn                 = errors.New("engine spawn failed")
	ErrHandshakeTimeout      = errors.New("engine handshake timeout: no uciok within deadline")
	ErrIllegalInstruction    = errors.New("engine died on an illegal instruction (binary likely built for newer CPU features)")
	ErrEngineCrashed         = errors.New("engine process crashed")
	ErrConfigurationRejected = errors.New("engine configuration rejected")
	ErrNotReady              = errors.New("engine not ready")
)

type SessionState int

const (
	StateSpawned SessionState = iota
	StateHandshaking
	StateReady
	StateConfiguring
	StateAnalyzing
	StateStopping
	StateTerminated
	StateCrashed
)

func (s SessionState) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateConfiguring:
		return "configuring"
	case StateAnalyzing:
		return "analyzing"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	case StateCrashed:
		return "crashed"
	}
	return "unknown"
}

// CrashReason distinguishes why a session ended up in StateCrashed.
type CrashReason string

const (
	CrashNone               CrashReason = ""
	CrashHandshakeTimeout   CrashReason = "handshake_timeout"
	CrashIllegalInstruction CrashReason = "illegal_instruction"
	CrashProcessExit        CrashReason = "process_exit"
	CrashIOFailure          CrashReason = "io_failure"
)

const (
	defaultHandshakeTTL = 5 * time.Second
	stopGracePeriod     = 500 * time.Millisecond
	quitGracePeriod     = 2 * time.Second
	desyncThreshold     = 8
)

type UCIEngine struct {
	cmd      *exec.Cmd
	in       *bufio.Writer
	lines    chan string   // engine stdout, one line per receive; closed on EOF
	exited   chan struct{} // closed once the process has been reaped
	scanDone chan struct{} // closed once the stdout scanner has finished
	quit     chan struct{} // closed at shutdown; flips the scanner to drain mode
	quitOnce sync.Once

	mu      sync.Mutex
	state   SessionState
	crash   CrashReason
	name    string
	options map[string]models.EngineOption
	desync  int

	handshakeTTL time.Duration
	multipv      int
}

// NewUCIEngine spawns the engine at path, performs the UCI handshake within
// the 5-second TTL, discovers declared options, and applies uciOptions.
// A process that never acknowledges is killed and reported, never hung on.
func NewUCIEngine(path string, uciOptions map[string]string) (*UCIEngine, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	e := newEngineFromIO(stdin, stdout)
	e.cmd = cmd

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, path, err)
	}
	go e.reapProcess()

	if err := e.handshake(); err != nil {
		return nil, err
	}
	if err := e.ApplyOptions(uciOptions); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// newEngineFromIO wires an engine over arbitrary streams. Production code
// goes through NewUCIEngine; tests substitute pipes for the subprocess.
func newEngineFromIO(w io.Writer, r io.Reader) *UCIEngine {
	e := &UCIEngine{
		in:           bufio.NewWriter(w),
		lines:        make(chan string),
		exited:       make(chan struct{}),
		scanDone:     make(chan struct{}),
		quit:         make(chan struct{}),
		state:        StateSpawned,
		options:      map[string]models.EngineOption{},
		handshakeTTL: defaultHandshakeTTL,
		multipv:      1,
	}
	go func() {
		defer close(e.scanDone)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case e.lines <- sc.Text():
			case <-e.quit:
				// Consumer gone; keep reading so the pipe drains to EOF.
				for sc.Scan() {
				}
				return
			}
		}
		close(e.lines)
	}()
	return e
}

// closeQuit releases the scanner from any pending line delivery.
func (e *UCIEngine) closeQuit() {
	e.quitOnce.Do(func() { close(e.quit) })
}

// reapProcess waits on the subprocess and classifies abnormal exits. A
// SIGILL death is reported distinctly so users suspect a CPU mismatch
// instead of a generic crash. Wait must not run until the stdout scanner
// has hit EOF: Wait closes the pipe and can drop buffered output.
func (e *UCIEngine) reapProcess() {
	<-e.scanDone
	err := e.cmd.Wait()
	e.mu.Lock()
	if e.state != StateTerminated && e.crash == CrashNone {
		reason := CrashProcessExit
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGILL {
				reason = CrashIllegalInstruction
			}
		} else if err == nil {
			// Clean self-exit outside shutdown is still a dead session.
			reason = CrashProcessExit
		}
		e.crash = reason
		e.state = StateCrashed
	}
	e.mu.Unlock()
	close(e.exited)
}

func (e *UCIEngine) setState(s SessionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *UCIEngine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *UCIEngine) Crash() CrashReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.crash
}

func (e *UCIEngine) Name() string { return e.name }

// Capabilities returns a copy of the declared option map; the session never
// interprets these beyond validating configuration requests.
func (e *UCIEngine) Capabilities() map[string]models.EngineOption {
	out := make(map[string]models.EngineOption, len(e.options))
	for k, v := range e.options {
		out[k] = v
	}
	return out
}

// crashError maps the recorded crash reason to its taxonomy error.
func (e *UCIEngine) crashError() error {
	switch e.Crash() {
	case CrashHandshakeTimeout:
		return ErrHandshakeTimeout
	case CrashIllegalInstruction:
		return ErrIllegalInstruction
	default:
		return ErrEngineCrashed
	}
}

// markCrashed records a reason and forcibly terminates the subprocess.
func (e *UCIEngine) markCrashed(reason CrashReason) {
	e.mu.Lock()
	if e.crash == CrashNone {
		e.crash = reason
	}
	e.state = StateCrashed
	e.mu.Unlock()
	e.killProcess()
	e.closeQuit()
}

func (e *UCIEngine) killProcess() {
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
}

// handshake sends "uci", parses id/option declarations, and requires uciok
// then readyok before the TTL expires. On timeout the process is killed and
// no further command is ever sent to it.
func (e *UCIEngine) handshake() error {
	e.setState(StateHandshaking)
	if err := e.send("uci"); err != nil {
		e.markCrashed(CrashIOFailure)
		return fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}

	deadline := time.NewTimer(e.handshakeTTL)
	defer deadline.Stop()

	for sawUCIOK := false; !sawUCIOK; {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return e.crashError()
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "uciok":
				sawUCIOK = true
			case strings.HasPrefix(line, "id name "):
				e.name = strings.TrimSpace(line[len("id name "):])
			default:
				if opt, ok := ParseOptionLine(line); ok {
					e.options[opt.Name] = opt
				}
			}
		case <-deadline.C:
			e.markCrashed(CrashHandshakeTimeout)
			return ErrHandshakeTimeout
		}
	}

	if err := e.send("isready"); err != nil {
		e.markCrashed(CrashIOFailure)
		return fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return e.crashError()
			}
			if strings.TrimSpace(line) == "readyok" {
				e.setState(StateReady)
				return nil
			}
		case <-deadline.C:
			e.markCrashed(CrashHandshakeTimeout)
			return ErrHandshakeTimeout
		}
	}
}

// Configure validates one option against the discovered capabilities and,
// only if valid, forwards it and waits for the engine to settle. Invalid
// requests fail with ErrConfigurationRejected without touching the process.
func (e *UCIEngine) Configure(name, value string) error {
	if err := ValidateOption(e.options, name, value); err != nil {
		return err
	}
	if e.State() != StateReady {
		return ErrNotReady
	}
	e.setState(StateConfiguring)

	cmd := fmt.Sprintf("setoption name %s value %s", name, value)
	if e.options[name].Type == "button" {
		cmd = fmt.Sprintf("setoption name %s", name)
	}
	if err := e.send(cmd); err != nil {
		e.markCrashed(CrashIOFailure)
		return fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	if err := e.send("isready"); err != nil {
		e.markCrashed(CrashIOFailure)
		return fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	if err := e.awaitReady(); err != nil {
		return err
	}
	e.setState(StateReady)
	return nil
}

// ApplyOptions configures options in sorted order so runs are reproducible.
// Rejected options are logged and skipped; the engine stays usable.
func (e *UCIEngine) ApplyOptions(opts map[string]string) error {
	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.Configure(name, opts[name]); err != nil {
			if errors.Is(err, ErrConfigurationRejected) {
				log.Printf("engine %s: skipping option %s=%s: %v", e.name, name, opts[name], err)
				continue
			}
			return err
		}
	}
	return nil
}

// SetCandidates requests multipv breadth. Breadth above 1 requires the
// engine to declare a MultiPV option.
func (e *UCIEngine) SetCandidates(n int) error {
	if n < 1 {
		n = 1
	}
	if n > 1 {
		if err := e.Configure("MultiPV", strconv.Itoa(n)); err != nil {
			return err
		}
	}
	e.multipv = n
	return nil
}

// NewGame clears the engine's internal state between games.
func (e *UCIEngine) NewGame() error {
	if e.State() != StateReady {
		return ErrNotReady
	}
	if err := e.send("ucinewgame"); err != nil {
		e.markCrashed(CrashIOFailure)
		return fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	if err := e.send("isready"); err != nil {
		e.markCrashed(CrashIOFailure)
		return fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	return e.awaitReady()
}

func (e *UCIEngine) awaitReady() error {
	deadline := time.NewTimer(e.handshakeTTL)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return e.crashError()
			}
			if strings.TrimSpace(line) == "readyok" {
				return nil
			}
		case <-deadline.C:
			e.markCrashed(CrashIOFailure)
			return fmt.Errorf("%w: no readyok", ErrEngineCrashed)
		}
	}
}

func goCommand(budget models.SearchBudget) string {
	parts := []string{"go"}
	if budget.Depth > 0 {
		parts = append(parts, "depth", strconv.Itoa(budget.Depth))
	}
	if budget.MoveTimeMS > 0 {
		parts = append(parts, "movetime", strconv.Itoa(budget.MoveTimeMS))
	}
	if len(parts) == 1 {
		parts = append(parts, "depth", "16")
	}
	return strings.Join(parts, " ")
}

// Analyze starts a search on fen and streams updates until the engine
// reports its best move or ctx is cancelled. The sequence is finite and not
// restartable; updates per rank arrive in non-decreasing depth order and the
// last one per rank is authoritative. Cancelling sends "stop" and, failing a
// clean bestmove within the grace period, kills the process.
func (e *UCIEngine) Analyze(ctx context.Context, fen string, budget models.SearchBudget) (<-chan models.AnalysisUpdate, error) {
	if e.State() != StateReady {
		return nil, ErrNotReady
	}
	if err := e.send("position fen " + fen); err != nil {
		e.markCrashed(CrashIOFailure)
		return nil, fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	if err := e.send(goCommand(budget)); err != nil {
		e.markCrashed(CrashIOFailure)
		return nil, fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}
	e.setState(StateAnalyzing)

	updates := make(chan models.AnalysisUpdate)
	go e.streamAnalysis(ctx, updates)
	return updates, nil
}

func (e *UCIEngine) streamAnalysis(ctx context.Context, updates chan<- models.AnalysisUpdate) {
	defer close(updates)

	var grace <-chan time.Time
	stopped := false

	for {
		select {
		case <-ctx.Done():
			if !stopped {
				stopped = true
				e.setState(StateStopping)
				if err := e.send("stop"); err != nil {
					e.markCrashed(CrashIOFailure)
					return
				}
				grace = time.After(stopGracePeriod)
			}
		case <-grace:
			// No bestmove after stop: force termination, discard results.
			e.mu.Lock()
			e.state = StateTerminated
			e.mu.Unlock()
			e.killProcess()
			e.closeQuit()
			return
		case line, ok := <-e.lines:
			if !ok {
				e.mu.Lock()
				if e.state != StateCrashed && e.state != StateTerminated {
					e.state = StateCrashed
					if e.crash == CrashNone {
						e.crash = CrashIOFailure
					}
				}
				e.mu.Unlock()
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case strings.HasPrefix(line, "bestmove"):
				e.setState(StateReady)
				return
			case strings.HasPrefix(line, "info "):
				if upd, ok := parseInfoLine(line); ok {
					e.resetDesync()
					if !stopped {
						select {
						case updates <- upd:
						case <-ctx.Done():
							// Consumer gone; keep draining toward bestmove.
						}
					}
				}
			case strings.HasPrefix(line, "id ") || strings.HasPrefix(line, "option "):
			default:
				e.noteDesync(line)
			}
		}
	}
}

// noteDesync counts consecutive unparsable output lines and surfaces a
// protocol desync warning once the threshold is crossed. The engine remains
// usable; the bad lines are discarded.
func (e *UCIEngine) noteDesync(line string) {
	e.mu.Lock()
	e.desync++
	n := e.desync
	e.mu.Unlock()
	if n == desyncThreshold {
		log.Printf("engine %s: protocol desync: %d consecutive unparsable lines, last %q", e.name, n, line)
	}
}

func (e *UCIEngine) resetDesync() {
	e.mu.Lock()
	e.desync = 0
	e.mu.Unlock()
}

// parseInfoLine extracts rank, depth, score and pv from a UCI info line.
// Lines without a score or pv (currmove reports, "info string") are valid
// protocol but carry nothing we graft, so they report false.
func parseInfoLine(line string) (models.AnalysisUpdate, bool) {
	upd := models.AnalysisUpdate{Rank: 1}
	fields := strings.Fields(line)
	haveScore := false

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				upd.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil && n > 0 {
					upd.Rank = n
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err != nil {
					return upd, false
				}
				switch fields[i+1] {
				case "cp":
					upd.Score.CP = &n
				case "mate":
					upd.Score.Mate = &n
				default:
					return upd, false
				}
				haveScore = true
				i += 2
			}
		case "pv":
			upd.PV = append([]string{}, fields[i+1:]...)
			i = len(fields)
		}
	}

	return upd, haveScore && len(upd.PV) > 0
}

// AnalyzeTerminal runs one analysis to completion and returns the terminal
// candidate line per requested rank, best rank first. A cancelled context
// discards whatever was collected: stopped analyses never produce lines.
func (e *UCIEngine) AnalyzeTerminal(ctx context.Context, fen string, budget models.SearchBudget) ([]models.CandidateLine, error) {
	updates, err := e.Analyze(ctx, fen, budget)
	if err != nil {
		return nil, err
	}

	terminal := map[int]models.AnalysisUpdate{}
	for upd := range updates {
		terminal[upd.Rank] = upd
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.State() == StateCrashed {
		return nil, e.crashError()
	}

	ranks := make([]int, 0, len(terminal))
	for r := range terminal {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	lines := make([]models.CandidateLine, 0, len(ranks))
	for _, r := range ranks {
		upd := terminal[r]
		lines = append(lines, models.CandidateLine{
			Rank:  upd.Rank,
			Depth: upd.Depth,
			Score: upd.Score,
			PV:    upd.PV,
		})
	}
	return lines, nil
}

// Close shuts the session down cleanly: quit, bounded wait, then kill.
func (e *UCIEngine) Close() error {
	e.mu.Lock()
	if e.state == StateTerminated || e.state == StateCrashed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateTerminated
	e.mu.Unlock()

	_ = e.send("quit")
	e.closeQuit()
	if e.cmd == nil {
		return nil
	}
	select {
	case <-e.exited:
	case <-time.After(quitGracePeriod):
		e.killProcess()
		<-e.exited
	}
	return nil
}

func (e *UCIEngine) send(cmd string) error {
	if _, err := fmt.Fprintln(e.in, cmd); err != nil {
		return err
	}
	return e.in.Flush()
}
