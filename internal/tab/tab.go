// Package tab implements the connection lifecycle of a terminal tab:
// initialization, termination handling, prompted and automatic reconnects,
// and recovery token production.
package tab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ideapedyudi/tabby/internal/i18n"
	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/notify"
	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/recovery"
)

var tabLog = logging.ForComponent(logging.CompTab)

// Options configure a ConnectableTab.
type Options struct {
	ID      string
	Profile profile.Profile
	Factory SessionFactory

	// Translator renders the reconnect prompt. Defaults to English.
	Translator *i18n.Translator
	// Limiter throttles automatic reconnects. Defaults to 6/min, burst 3.
	Limiter *rate.Limiter
	// Notifier receives reconnect failures. Optional.
	Notifier notify.Notifier
	// RestoredState is replayed to the first frontend that attaches.
	RestoredState json.RawMessage
	// OnStateChange is called on every state transition with the tab lock
	// held. It must not block or call back into the tab.
	OnStateChange func(id string, s State)
}

// ConnectableTab owns one session at a time and decides what happens when
// it ends. All methods are safe for concurrent use.
type ConnectableTab struct {
	id            string
	profile       profile.Profile
	factory       SessionFactory
	tr            *i18n.Translator
	limiter       *rate.Limiter
	notifier      notify.Notifier
	onStateChange func(string, State)
	log           *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reconnectMu serializes Initialize and Reconnect.
	reconnectMu sync.Mutex

	mu               sync.Mutex
	state            State
	session          Session
	gen              uint64 // bumped for every new session
	frontend         Frontend
	frontendGen      uint64 // bumped whenever the frontend changes
	released         bool   // initial data buffer of the current session flushed
	reconnectOffered bool
	destroyed        bool
	pendingState     json.RawMessage
	cols, rows       uint16

	input InputListener
}

// New creates a tab in the Uninitialized state. Call Initialize to start
// the first session.
func New(opts Options) *ConnectableTab {
	tr := opts.Translator
	if tr == nil {
		tr = i18n.New("en")
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewReconnectLimiter(6, 3)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ConnectableTab{
		id:            opts.ID,
		profile:       opts.Profile.Clone(),
		factory:       opts.Factory,
		tr:            tr,
		limiter:       limiter,
		notifier:      opts.Notifier,
		onStateChange: opts.OnStateChange,
		log:           tabLog.With(slog.String("tab_id", opts.ID), slog.String("profile", opts.Profile.Name)),
		ctx:           ctx,
		cancel:        cancel,
		pendingState:  opts.RestoredState,
	}
}

// ID returns the tab identifier.
func (t *ConnectableTab) ID() string { return t.id }

// Profile returns a copy of the profile the tab was opened with.
func (t *ConnectableTab) Profile() profile.Profile { return t.profile.Clone() }

// Title is the label shown for the tab.
func (t *ConnectableTab) Title() string { return t.profile.Name }

// State returns the current lifecycle state.
func (t *ConnectableTab) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ReconnectOffered reports whether the tab is waiting for a key press.
func (t *ConnectableTab) ReconnectOffered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnectOffered
}

// Session returns the current session, or nil.
func (t *ConnectableTab) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// HasFrontend reports whether a frontend is attached.
func (t *ConnectableTab) HasFrontend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frontend != nil
}

// Destroyed reports whether Destroy has been called.
func (t *ConnectableTab) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// Initialize builds a new session, destroying any session left over from a
// previous initialization. The reconnect offer is withdrawn first. When a
// frontend is already attached the initial data buffer is released.
func (t *ConnectableTab) Initialize(ctx context.Context) error {
	t.reconnectMu.Lock()
	defer t.reconnectMu.Unlock()

	sess, err := t.initializeLocked(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	release := t.session == sess && t.frontend != nil && !t.released
	if release {
		t.released = true
	}
	t.mu.Unlock()
	if release {
		sess.ReleaseInitialDataBuffer()
	}
	return nil
}

// initializeLocked requires reconnectMu.
func (t *ConnectableTab) initializeLocked(ctx context.Context) (Session, error) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return nil, ErrTabDestroyed
	}
	t.reconnectOffered = false
	t.input.Cancel()
	leftover := t.session
	t.session = nil
	t.released = false
	t.gen++
	gen := t.gen
	t.setStateLocked(StateInitializing)
	t.mu.Unlock()

	if leftover != nil {
		leftover.Destroy()
	}

	sess, err := t.factory.NewSession(ctx, t.profile.Clone(), &tabOutput{tab: t, gen: gen})
	if err != nil {
		t.mu.Lock()
		if !t.destroyed && t.gen == gen {
			t.setStateLocked(StateTerminated)
		}
		t.mu.Unlock()
		t.log.Warn("session_create_failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("create session: %w", err)
	}

	t.mu.Lock()
	if t.destroyed || t.gen != gen {
		destroyed := t.destroyed
		t.mu.Unlock()
		sess.Destroy()
		if destroyed {
			return nil, ErrTabDestroyed
		}
		return nil, errors.New("session superseded")
	}
	t.session = sess
	t.reconnectOffered = false
	t.input.Cancel()
	t.setStateLocked(StateActive)
	cols, rows := t.cols, t.rows
	t.wg.Add(1)
	t.mu.Unlock()

	go t.watch(sess, gen)

	if r, ok := sess.(Resizer); ok && cols > 0 && rows > 0 {
		if err := r.Resize(cols, rows); err != nil {
			t.log.Debug("session_resize_failed", slog.String("error", err.Error()))
		}
	}
	t.log.Info("session_initialized", slog.Uint64("gen", gen))
	return sess, nil
}

// Reconnect destroys the current session, initializes a new one and then
// releases its initial data buffer. Any pending reconnect prompt is
// cancelled.
func (t *ConnectableTab) Reconnect(ctx context.Context) error {
	return t.reconnect(ctx, 0, false)
}

// reconnect with guarded set only proceeds while the session generation is
// still expectGen, so concurrent triggers for one termination coalesce.
func (t *ConnectableTab) reconnect(ctx context.Context, expectGen uint64, guarded bool) error {
	t.reconnectMu.Lock()
	defer t.reconnectMu.Unlock()

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return ErrTabDestroyed
	}
	if guarded && t.gen != expectGen {
		t.mu.Unlock()
		t.log.Debug("reconnect_superseded", slog.Uint64("gen", expectGen))
		return nil
	}
	old := t.session
	t.session = nil
	t.reconnectOffered = false
	t.input.Cancel()
	t.mu.Unlock()

	t.log.Info("reconnect_start")
	if old != nil {
		old.Destroy()
	}

	sess, err := t.initializeLocked(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	current := t.session == sess
	if current {
		t.released = true
	}
	t.mu.Unlock()
	if current {
		sess.ReleaseInitialDataBuffer()
	}
	return nil
}

// OfferReconnection writes the reconnect prompt and arms the input
// listener. It does nothing if an offer is already pending, no frontend is
// attached, or the session has not terminated.
func (t *ConnectableTab) OfferReconnection() {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	t.offerReconnection(gen)
}

// offerReconnection only proceeds while the session generation is still
// gen, so an offer decided for an earlier session cannot outlive a
// reconnect that started since.
func (t *ConnectableTab) offerReconnection(gen uint64) {
	t.mu.Lock()
	if t.destroyed || t.reconnectOffered || t.frontend == nil {
		t.mu.Unlock()
		return
	}
	if t.gen != gen || !t.state.Terminated() || (t.session != nil && t.session.Open()) {
		t.mu.Unlock()
		t.log.Debug("reconnect_offer_skipped", slog.Uint64("gen", gen))
		return
	}
	t.reconnectOffered = true
	feGen := t.frontendGen
	fe := t.frontend
	t.setStateLocked(StateAwaitingReconnectInput)
	t.input.Once(func([]byte) { t.onReconnectInput(gen, feGen) })
	t.mu.Unlock()

	t.log.Info("reconnect_offered")
	prompt := t.tr.T(i18n.PressAnyKeyToReconnect) + "\r\n"
	if _, err := fe.Write([]byte(prompt)); err != nil {
		t.log.Debug("reconnect_prompt_write_failed", slog.String("error", err.Error()))
	}
}

// onReconnectInput runs when the armed listener fires. Input is delivered
// asynchronously, so every precondition is checked again here.
func (t *ConnectableTab) onReconnectInput(gen, feGen uint64) {
	t.mu.Lock()
	valid := !t.destroyed &&
		t.reconnectOffered &&
		t.gen == gen &&
		t.frontendGen == feGen &&
		(t.session == nil || !t.session.Open())
	if !valid {
		t.mu.Unlock()
		t.log.Debug("reconnect_input_ignored", slog.Uint64("gen", gen))
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		t.reconnectAndReport(gen)
	}()
}

func (t *ConnectableTab) reconnectAndReport(gen uint64) {
	err := t.reconnect(t.ctx, gen, true)
	if err == nil || errors.Is(err, ErrTabDestroyed) || t.ctx.Err() != nil {
		return
	}
	t.log.Warn("reconnect_failed", slog.String("error", err.Error()))
	if t.notifier != nil {
		t.notifier.Error(t.id, t.tr.T(i18n.ReconnectFailed, err.Error()))
	}
}

// watch waits for sess to end.
func (t *ConnectableTab) watch(sess Session, gen uint64) {
	defer t.wg.Done()

	select {
	case <-sess.Closed():
	case <-t.ctx.Done():
		return
	}

	t.mu.Lock()
	if t.destroyed || t.gen != gen || t.session != sess {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateTerminated)
	hasFrontend := t.frontend != nil
	t.mu.Unlock()

	t.log.Info("session_terminated", slog.Uint64("gen", gen), slog.Bool("frontend", hasFrontend))
	if !hasFrontend {
		return
	}
	t.applyPolicy(sess, gen)
}

// applyPolicy decides what a terminated session leads to.
func (t *ConnectableTab) applyPolicy(sess Session, gen uint64) {
	switch t.profile.Behavior() {
	case profile.BehaviorReconnect:
		if err := t.limiter.Wait(t.ctx); err != nil {
			return
		}
		t.reconnectAndReport(gen)
	case profile.BehaviorKeep:
		t.offerReconnection(gen)
	case profile.BehaviorAuto:
		if !explicitlyTerminated(sess) {
			t.offerReconnection(gen)
		}
	default:
		t.log.Debug("session_end_no_action", slog.String("behavior", string(t.profile.Behavior())))
	}
}

func explicitlyTerminated(sess Session) bool {
	et, ok := sess.(ExplicitTerminator)
	return ok && et.ExplicitlyTerminated()
}

// Disconnect ends the current session on the user's request without
// closing the tab. The session-end policy then treats it as explicit.
func (t *ConnectableTab) Disconnect() error {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	if sess == nil || !sess.Open() {
		return ErrNoSession
	}
	if term, ok := sess.(Terminator); ok {
		term.Terminate()
		return nil
	}
	sess.Destroy()
	return nil
}

// AttachFrontend connects a rendering surface. The first attach after a
// session starts flushes its initial data buffer; attaching to a tab whose
// session already ended re-evaluates the session-end policy.
func (t *ConnectableTab) AttachFrontend(fe Frontend) error {
	if fe == nil {
		return errors.New("nil frontend")
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return ErrTabDestroyed
	}
	t.frontend = fe
	t.frontendGen++
	t.reconnectOffered = false
	t.input.Cancel()
	pending := t.pendingState
	t.pendingState = nil
	sess := t.session
	gen := t.gen
	release := sess != nil && !t.released
	if release {
		t.released = true
	}
	terminated := t.state.Terminated()
	if t.state == StateAwaitingReconnectInput {
		t.setStateLocked(StateTerminated)
	}
	if terminated {
		t.wg.Add(1)
	}
	t.mu.Unlock()

	t.log.Debug("frontend_attached", slog.Bool("restore", pending != nil))
	if pending != nil {
		if r, ok := fe.(StateRestorer); ok {
			if err := r.RestoreState(pending); err != nil {
				t.log.Warn("frontend_restore_failed", slog.String("error", err.Error()))
			}
		}
	}
	if release {
		sess.ReleaseInitialDataBuffer()
	}
	if terminated {
		go func() {
			defer t.wg.Done()
			if sess == nil {
				// Never had a session: the previous initialization failed.
				t.offerReconnection(gen)
				return
			}
			t.applyPolicy(sess, gen)
		}()
	}
	return nil
}

// DetachFrontend removes fe if it is still the attached frontend. A pending
// reconnect offer is withdrawn, since nobody can see the prompt.
func (t *ConnectableTab) DetachFrontend(fe Frontend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frontend == nil || t.frontend != fe {
		return
	}
	t.frontend = nil
	t.frontendGen++
	t.reconnectOffered = false
	t.input.Cancel()
	if t.state == StateAwaitingReconnectInput {
		t.setStateLocked(StateTerminated)
	}
	t.log.Debug("frontend_detached")
}

// HandleInput routes raw input from the frontend. While a reconnect is
// offered the first event is consumed by the prompt; otherwise input goes
// to the session.
func (t *ConnectableTab) HandleInput(data []byte) {
	logging.Stream(logging.CompTab, "input", t.id, len(data))
	if t.input.Dispatch(data) {
		return
	}

	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	if sess == nil || !sess.Open() {
		return
	}
	if w, ok := sess.(InputWriter); ok {
		if _, err := w.Write(data); err != nil {
			t.log.Debug("session_input_write_failed", slog.String("error", err.Error()))
		}
	}
}

// Resize records the frontend size and forwards it to the session.
func (t *ConnectableTab) Resize(cols, rows uint16) error {
	t.mu.Lock()
	t.cols, t.rows = cols, rows
	sess := t.session
	t.mu.Unlock()
	if r, ok := sess.(Resizer); ok && sess.Open() {
		return r.Resize(cols, rows)
	}
	return nil
}

// WorkingDirectory returns the session's current directory, falling back to
// the profile's cwd when the session can't tell.
func (t *ConnectableTab) WorkingDirectory(ctx context.Context) string {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()

	if sess != nil {
		cwd, err := sess.WorkingDirectory(ctx)
		if err != nil {
			t.log.Debug("working_directory_unknown", slog.String("error", err.Error()))
		}
		if err == nil && strings.TrimSpace(cwd) != "" {
			return cwd
		}
	}
	return t.profile.Options.Cwd
}

// RecoveryToken returns a point-in-time token for this tab. The frontend
// state is included only when includeState is set and a frontend is
// attached; a failing capture leaves it out.
func (t *ConnectableTab) RecoveryToken(includeState bool) recovery.Token {
	t.mu.Lock()
	fe := t.frontend
	t.mu.Unlock()

	var state json.RawMessage
	if includeState && fe != nil {
		state = t.captureState(fe)
	}
	return recovery.New(t.profile, state)
}

func (t *ConnectableTab) captureState(fe Frontend) (state json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("recovery_capture_panic", slog.String("recover", fmt.Sprintf("%v", r)))
			state = nil
		}
	}()
	s, err := fe.SaveState()
	if err != nil {
		t.log.Warn("recovery_capture_failed", slog.String("error", err.Error()))
		return nil
	}
	if len(s) > 0 && !json.Valid(s) {
		t.log.Warn("recovery_capture_invalid_json")
		return nil
	}
	return s
}

// Destroy tears the tab down. After it returns no session is created or
// reconnected for this tab. Safe to call more than once.
func (t *ConnectableTab) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	sess := t.session
	t.session = nil
	t.frontend = nil
	t.reconnectOffered = false
	t.input.Cancel()
	t.setStateLocked(StateTerminated)
	t.mu.Unlock()

	t.cancel()
	if sess != nil {
		sess.Destroy()
	}
	t.wg.Wait()
	t.log.Info("tab_destroyed")
}

func (t *ConnectableTab) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	if t.onStateChange != nil {
		t.onStateChange(t.id, s)
	}
}

// tabOutput forwards session output to whichever frontend is attached.
// Output from a session that has since been replaced is dropped.
type tabOutput struct {
	tab *ConnectableTab
	gen uint64
}

func (o *tabOutput) Write(p []byte) (int, error) {
	t := o.tab
	t.mu.Lock()
	fe := t.frontend
	current := t.gen == o.gen && !t.destroyed
	t.mu.Unlock()

	if !current || fe == nil {
		return len(p), nil
	}
	logging.Stream(logging.CompSession, "output", t.id, len(p))
	if _, err := fe.Write(p); err != nil {
		t.log.Debug("frontend_write_failed", slog.String("error", err.Error()))
	}
	return len(p), nil
}
