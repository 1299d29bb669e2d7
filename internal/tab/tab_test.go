package tab

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prompt = "Press any key to reconnect\r\n"

func TestInitializeStartsActiveSession(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	assert.Equal(t, StateUninitialized, tb.State())

	require.NoError(t, tb.Initialize(context.Background()))
	assert.Equal(t, StateActive, tb.State())
	assert.False(t, tb.ReconnectOffered())
	assert.Equal(t, 1, f.count())
}

func TestInitializeIsReentrant(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)

	require.NoError(t, tb.Initialize(context.Background()))
	require.NoError(t, tb.Initialize(context.Background()))

	assert.Equal(t, int32(1), f.session(0).destroys.Load(), "old session leaked")
	assert.Same(t, f.session(1), tb.Session())
}

func TestInitializeAfterFrontendReleasesBuffer(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))

	require.NoError(t, tb.Initialize(context.Background()))
	assert.Equal(t, int32(1), f.session(0).releases.Load())
}

func TestAttachFrontendReleasesBufferOnce(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.Initialize(context.Background()))
	assert.Equal(t, int32(0), f.session(0).releases.Load())

	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	tb.DetachFrontend(fe)
	require.NoError(t, tb.AttachFrontend(fe))
	assert.Equal(t, int32(1), f.session(0).releases.Load())
}

func TestReconnectOrdering(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.Initialize(context.Background()))

	require.NoError(t, tb.Reconnect(context.Background()))

	assert.Equal(t, []string{"create:1", "destroy:1", "create:2", "release:2"}, f.log.snapshot())
	assert.Equal(t, int32(1), f.session(0).destroys.Load())
	assert.Equal(t, StateActive, tb.State())
}

func TestConcurrentGuardedReconnectsCoalesce(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "close", f)
	require.NoError(t, tb.Initialize(context.Background()))

	tb.mu.Lock()
	gen := tb.gen
	tb.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tb.reconnect(context.Background(), gen, true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, f.count(), "only one reconnect should win")
	assert.Equal(t, int32(1), f.session(0).destroys.Load())
}

func TestConcurrentExplicitReconnectsDestroyEachSessionOnce(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "close", f)
	require.NoError(t, tb.Initialize(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tb.Reconnect(context.Background()))
		}()
	}
	wg.Wait()

	require.Equal(t, 5, f.count())
	for i := 0; i < 4; i++ {
		assert.Equal(t, int32(1), f.session(i).destroys.Load(), "session %d", i+1)
	}
	assert.Equal(t, int32(0), f.session(4).destroys.Load())
}

func TestOfferReconnectionIsIdempotent(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")

	tb.OfferReconnection()
	tb.OfferReconnection()

	assert.True(t, tb.ReconnectOffered())
	assert.Equal(t, 1, strings.Count(fe.String(), prompt))
	tb.input.mu.Lock()
	arms := tb.input.arms
	tb.input.mu.Unlock()
	assert.Equal(t, uint64(1), arms)
	assert.Equal(t, StateAwaitingReconnectInput, tb.State())
}

func TestOfferRequiresClosedSession(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	tb.OfferReconnection()
	assert.False(t, tb.ReconnectOffered())
}

func TestOfferDuringReconnectIsRejected(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	tb.mu.Lock()
	staleGen := tb.gen
	tb.mu.Unlock()

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- tb.Reconnect(context.Background()) }()

	select {
	case <-f.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never reached the factory")
	}
	assert.Equal(t, StateInitializing, tb.State())

	tb.OfferReconnection()
	tb.offerReconnection(staleGen)
	assert.False(t, tb.ReconnectOffered())
	assert.False(t, tb.input.Armed())

	close(f.gate)
	require.NoError(t, <-done)

	assert.Equal(t, StateActive, tb.State())
	assert.False(t, tb.ReconnectOffered())
	assert.False(t, tb.input.Armed())

	tb.HandleInput([]byte("a"))
	assert.Equal(t, "a", f.session(1).inputString())
}

func TestInstallingSessionWithdrawsOffer(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- tb.Initialize(context.Background()) }()
	<-f.entered

	// An offer that slipped in while the session was being created.
	tb.mu.Lock()
	tb.reconnectOffered = true
	tb.input.Once(func([]byte) {})
	tb.mu.Unlock()

	close(f.gate)
	require.NoError(t, <-done)

	assert.False(t, tb.ReconnectOffered())
	assert.False(t, tb.input.Armed())
	assert.Equal(t, StateActive, tb.State())
}

func TestAnyKeyReconnects(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")

	tb.HandleInput([]byte("x"))
	eventually(t, func() bool { return f.count() == 2 && tb.State() == StateActive }, "no reconnect")

	assert.False(t, tb.ReconnectOffered())
	assert.Equal(t, int32(1), f.session(1).releases.Load())
	assert.Empty(t, f.session(1).inputString(), "the key press must not reach the new session")

	tb.HandleInput([]byte("ls\r"))
	assert.Equal(t, "ls\r", f.session(1).inputString())
}

func TestDestroyBetweenOfferAndInput(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")

	tb.mu.Lock()
	gen, feGen := tb.gen, tb.frontendGen
	tb.mu.Unlock()

	tb.Destroy()

	// A key press that was already in flight when the tab was destroyed.
	tb.onReconnectInput(gen, feGen)
	tb.HandleInput([]byte("x"))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, f.count(), "no session may be created after destroy")
	assert.ErrorIs(t, tb.Reconnect(context.Background()), ErrTabDestroyed)
	assert.ErrorIs(t, tb.Initialize(context.Background()), ErrTabDestroyed)
}

func TestDestroyWhileReconnectInFlight(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	f.mu.Unlock()

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")
	tb.HandleInput([]byte("x"))

	select {
	case <-f.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never reached the factory")
	}

	tb.Destroy()

	assert.Equal(t, 1, f.count())
	assert.Nil(t, tb.Session())
	assert.True(t, tb.Destroyed())
}

func TestAutoExplicitTerminationDoesNothing(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "auto", f)
	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(true)
	eventually(t, func() bool { return tb.State() == StateTerminated }, "not terminated")
	time.Sleep(20 * time.Millisecond)

	assert.False(t, tb.ReconnectOffered())
	assert.Equal(t, 1, f.count())
	assert.NotContains(t, fe.String(), prompt)
}

func TestAutoNonExplicitTerminationOffers(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "auto", f)
	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, f.count(), "auto must offer, not reconnect")
	assert.Contains(t, fe.String(), prompt)
}

func TestEmptyBehaviorIsAuto(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")
}

func TestReconnectBehaviorReconnectsImmediately(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "reconnect", f)
	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(true)
	eventually(t, func() bool { return f.count() == 2 && tb.State() == StateActive }, "no auto reconnect")

	assert.NotContains(t, fe.String(), prompt)
	assert.Equal(t, int32(1), f.session(1).releases.Load())
}

func TestCloseAndMalformedBehaviorDoNothing(t *testing.T) {
	for _, behavior := range []string{"close", "sometimes"} {
		t.Run(behavior, func(t *testing.T) {
			f := newFakeFactory()
			tb := newTestTab(t, behavior, f)
			require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
			require.NoError(t, tb.Initialize(context.Background()))

			f.session(0).exit(false)
			eventually(t, func() bool { return tb.State() == StateTerminated }, "not terminated")
			time.Sleep(20 * time.Millisecond)

			assert.False(t, tb.ReconnectOffered())
			assert.Equal(t, 1, f.count())
		})
	}
}

func TestNoFrontendSkipsPolicyUntilAttached(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, func() bool { return tb.State() == StateTerminated }, "not terminated")
	time.Sleep(20 * time.Millisecond)
	assert.False(t, tb.ReconnectOffered())

	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	eventually(t, tb.ReconnectOffered, "offer after attach")
	assert.Contains(t, fe.String(), prompt)
}

func TestReplacedFrontendInvalidatesOffer(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	fe1 := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe1))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")

	tb.mu.Lock()
	gen, oldFeGen := tb.gen, tb.frontendGen
	tb.mu.Unlock()

	tb.DetachFrontend(fe1)
	assert.False(t, tb.ReconnectOffered())
	assert.Equal(t, StateTerminated, tb.State())

	fe2 := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe2))
	eventually(t, tb.ReconnectOffered, "re-offer on new frontend")

	// Input captured for the old frontend is stale.
	tb.onReconnectInput(gen, oldFeGen)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.count())

	tb.HandleInput([]byte("y"))
	eventually(t, func() bool { return f.count() == 2 }, "reconnect via new frontend")
}

func TestDetachIgnoresOtherFrontend(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))

	tb.DetachFrontend(&fakeFrontend{})
	assert.True(t, tb.HasFrontend())
}

func TestExplicitReconnectCancelsPrompt(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")

	require.NoError(t, tb.Reconnect(context.Background()))
	assert.False(t, tb.input.Armed())

	// The key press now goes to the new session, not to a stale listener.
	tb.HandleInput([]byte("a"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, f.count())
	assert.Equal(t, "a", f.session(1).inputString())
}

func TestReconnectFailureNotifies(t *testing.T) {
	f := newFakeFactory()
	n := &recordingNotifier{}
	tb := newTestTab(t, "keep", f)
	tb.notifier = n
	require.NoError(t, tb.AttachFrontend(&fakeFrontend{}))
	require.NoError(t, tb.Initialize(context.Background()))

	f.mu.Lock()
	f.err = errBoom
	f.mu.Unlock()

	f.session(0).exit(false)
	eventually(t, tb.ReconnectOffered, "reconnect not offered")
	tb.HandleInput([]byte("x"))

	eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.errors) == 1
	}, "failure not reported")
	assert.Equal(t, StateTerminated, tb.State())
}

func TestOutputFromReplacedSessionIsDropped(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	require.NoError(t, tb.Initialize(context.Background()))

	old := f.session(0)
	_, _ = old.out.Write([]byte("first "))
	require.NoError(t, tb.Reconnect(context.Background()))
	_, _ = old.out.Write([]byte("stale "))
	_, _ = f.session(1).out.Write([]byte("second"))

	assert.Equal(t, "first second", fe.String())
}

func TestRecoveryToken(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)

	tok := tb.RecoveryToken(true)
	assert.Equal(t, "app:local-tab", tok.Type)
	assert.Equal(t, "x", tok.Profile.Name)
	assert.Equal(t, "/tmp", tok.Profile.Options.Cwd)
	assert.False(t, tok.HasState(), "no frontend, no state")

	fe := &fakeFrontend{state: json.RawMessage(`{"lines":["$ "]}`)}
	require.NoError(t, tb.AttachFrontend(fe))

	withState := tb.RecoveryToken(true)
	assert.JSONEq(t, `{"lines":["$ "]}`, string(withState.SavedState))

	without := tb.RecoveryToken(false)
	assert.False(t, without.HasState())

	fe.stateErr = errBoom
	failed := tb.RecoveryToken(true)
	assert.False(t, failed.HasState())
	assert.Equal(t, "app:local-tab", failed.Type)
}

func TestRestoredStateReplayedOnAttach(t *testing.T) {
	f := newFakeFactory()
	tb := New(Options{
		ID:            "restored",
		Factory:       f,
		RestoredState: json.RawMessage(`"screen"`),
	})
	defer tb.Destroy()

	fe := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe))
	assert.JSONEq(t, `"screen"`, string(fe.restored))

	fe2 := &fakeFrontend{}
	require.NoError(t, tb.AttachFrontend(fe2))
	assert.Nil(t, fe2.restored, "state is replayed once")
}

func TestWorkingDirectoryFallsBackToProfile(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	assert.Equal(t, "/tmp", tb.WorkingDirectory(context.Background()))

	f.cwd = "/srv/app"
	require.NoError(t, tb.Initialize(context.Background()))
	assert.Equal(t, "/srv/app", tb.WorkingDirectory(context.Background()))

	f.session(0).cwdErr = errBoom
	assert.Equal(t, "/tmp", tb.WorkingDirectory(context.Background()))
}

func TestDisconnect(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	assert.ErrorIs(t, tb.Disconnect(), ErrNoSession)

	require.NoError(t, tb.Initialize(context.Background()))
	require.NoError(t, tb.Disconnect())
	eventually(t, func() bool { return tb.State() == StateTerminated }, "not terminated")
}

func TestStateChangeCallback(t *testing.T) {
	f := newFakeFactory()
	var mu sync.Mutex
	var states []State
	tb := New(Options{
		ID:      "cb",
		Factory: f,
		OnStateChange: func(_ string, s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	require.NoError(t, tb.Initialize(context.Background()))
	tb.Destroy()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateInitializing, StateActive, StateTerminated}, states)
}

func TestDestroyIsIdempotent(t *testing.T) {
	f := newFakeFactory()
	tb := newTestTab(t, "keep", f)
	require.NoError(t, tb.Initialize(context.Background()))

	tb.Destroy()
	tb.Destroy()
	assert.Equal(t, int32(1), f.session(0).destroys.Load())
	assert.ErrorIs(t, tb.AttachFrontend(&fakeFrontend{}), ErrTabDestroyed)
}
