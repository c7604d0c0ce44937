// Package engine is the capture engine facade, it composes process
// resolving, filter compiling and the capture loop into start/stop sessions.
//
// One Engine runs at most one capture session at a time.
package engine

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysShub/gamecap"
	"github.com/lysShub/gamecap/capture"
	"github.com/lysShub/gamecap/divert"
	"github.com/lysShub/gamecap/games"
	"github.com/lysShub/gamecap/metrics"
	"github.com/lysShub/gamecap/process"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
)

var (
	ErrCapturing = errors.New("already capturing")
	ErrNoProcess = errors.New("game process not found")
)

type State uint32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type Engine struct {
	config   *Config
	opener   divert.Opener
	db       *games.Database
	resolver *process.Resolver
	policy   *capture.Policy
	metrics  *metrics.Aggregator

	// serialise Initialize/Start/Stop
	mu      sync.Mutex
	state   atomic.Uint32
	sess    atomic.Pointer[session]
	lastErr atomic.Pointer[error]
}

type session struct {
	game      string
	tunnel    gamecap.TunnelConfig
	pids      []uint32
	filter    string
	startedAt time.Time

	loop  *capture.Loop
	redir *capture.Redirector
}

// New create engine with empty games database.
func New(opener divert.Opener, lister process.Lister, config *Config) *Engine {
	var e = &Engine{
		config:  config.init(),
		opener:  opener,
		db:      games.New(),
		policy:  capture.NewPolicy(config.FallbackPorts),
		metrics: metrics.New(),
	}
	e.resolver = process.NewResolver(e.db, lister)
	return e
}

// Initialize check the diversion facility is usable by open a probe handle.
func (e *Engine) Initialize() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.opener.Open("false", divert.Probe)
	if err != nil {
		e.fail(errors.WithMessage(err, "initialize"))
		return false
	}
	if err := h.Close(); err != nil {
		e.config.logger.Warn(err.Error(), errorx.Trace(err))
	}
	e.config.logger.Info("initialized")
	return true
}

// Start capture outbound traffic of game's processes. Packets destined to
// game's default ports or fallback ports are redirected to tunnel, others
// are re-injected.
func (e *Engine) Start(game string, tunnel gamecap.TunnelConfig) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != Idle {
		e.fail(errors.WithStack(ErrCapturing))
		return false
	}

	pids := e.resolver.Resolve(game)
	if len(pids) == 0 {
		e.fail(errors.Wrapf(ErrNoProcess, "game %s", game))
		return false
	}
	filter, err := capture.Filter(pids)
	if err != nil {
		e.fail(err)
		return false
	}

	handle, err := e.opener.Open(filter, divert.Divert)
	if err != nil {
		e.fail(errors.WithMessagef(err, "open %s", filter))
		return false
	}
	if tunnel.LocalProxyPort == 0 {
		tunnel.LocalProxyPort = gamecap.DefaultLocalProxyPort
	}

	var s = &session{
		game:      game,
		tunnel:    tunnel,
		pids:      pids,
		filter:    filter,
		startedAt: time.Now(),
	}
	s.redir = capture.NewRedirector(tunnel, e.config.Sink, e.metrics, e.config.RedirectQueue, e.config.logger)
	s.loop = capture.Start(handle, &capture.Config{
		Game:        game,
		Database:    e.db,
		Policy:      e.policy,
		Redirect:    s.redir,
		Recorder:    e.metrics,
		MaxRecvBuff: e.config.MaxRecvBuff,
		Logger:      e.config.logger.With(slog.String("game", game)),
	})
	e.sess.Store(s)
	e.state.Store(uint32(Running))
	go e.watch(s)

	e.config.logger.Info("start capture",
		slog.String("game", game),
		slog.Any("pids", pids),
		slog.String("tunnel", tunnel.String()),
	)
	return true
}

// watch release the session if its loop exited without Stop, e.g. the
// handle was invalidated by the system.
func (e *Engine) watch(s *session) {
	<-s.loop.Done()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.Load() != s {
		return
	}
	e.config.logger.Warn("capture loop exited", slog.String("game", s.game))
	e.release(s)
}

// Stop stop capture and wait the capture loop exited, return true if
// not capturing.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess.Load()
	if s == nil {
		return true
	}
	e.release(s)
	e.config.logger.Info("stop capture", slog.String("game", s.game), slog.Any("metrics", e.metrics.Get()))
	return true
}

// release must hold mu
func (e *Engine) release(s *session) {
	e.state.Store(uint32(Stopping))
	if err := s.loop.Stop(); err != nil {
		e.config.logger.Warn(err.Error(), errorx.Trace(err))
	}
	if !s.redir.Close(e.config.DrainTimeout) {
		e.config.logger.Warn("sink blocked, session released without drain", slog.String("game", s.game))
	}

	e.sess.Store(nil)
	e.state.Store(uint32(Idle))
}

// Close stop capture
func (e *Engine) Close() error {
	e.Stop()
	return nil
}

func (e *Engine) Logger() *slog.Logger { return e.config.logger }

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) IsCapturing() bool { return e.State() != Idle }

// IsAppRunning true if any process of the game is running
func (e *Engine) IsAppRunning(game string) bool {
	return len(e.resolver.Resolve(game)) > 0
}

func (e *Engine) Metrics() metrics.NetworkMetrics { return e.metrics.Get() }

// Aggregator metrics hooks for the relay collaborator, such as ping and packet loss
func (e *Engine) Aggregator() *metrics.Aggregator { return e.metrics }

// SetAppDatabase replace whole games table, a running capture observe it
// from the next packet.
func (e *Engine) SetAppDatabase(entries []gamecap.Game) {
	e.db.Replace(entries)
	e.config.logger.Info("set games", slog.Int("games", e.db.Len()))
}

func (e *Engine) Games() []gamecap.Game { return e.db.Games() }

// Err last failure cause of Initialize/Start
func (e *Engine) Err() error {
	if p := e.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (e *Engine) fail(err error) {
	e.lastErr.Store(&err)
	e.config.logger.Error(err.Error(), errorx.Trace(err))
}

type Status struct {
	Capturing bool       `json:"capturing"`
	State     string     `json:"state"`
	Game      string     `json:"appId,omitempty"`
	Pids      []uint32   `json:"pids,omitempty"`
	Filter    string     `json:"filter,omitempty"`
	Node      string     `json:"node,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

func (e *Engine) Status() Status {
	var s = Status{
		Capturing: e.IsCapturing(),
		State:     e.State().String(),
	}
	if sess := e.sess.Load(); sess != nil {
		s.Game = sess.game
		s.Pids = slices.Clone(sess.pids)
		s.Filter = sess.filter
		if sess.tunnel.NodeIP.IsValid() {
			s.Node = sess.tunnel.Node().String()
		}
		s.SessionID = sess.tunnel.SessionID
		s.StartedAt = &sess.startedAt
	}
	if err := e.Err(); err != nil {
		s.LastError = err.Error()
	}
	return s
}
