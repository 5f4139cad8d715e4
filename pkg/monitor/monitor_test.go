package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/coreration/pkg/enforce"
	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/priority"
	"github.com/ja7ad/coreration/pkg/profile"
)

type fakeProcess struct {
	pid  int
	name string

	mu         sync.Mutex
	affinities []mask.CoreMask
	classes    []priority.Class
}

func (p *fakeProcess) PID() int     { return p.pid }
func (p *fakeProcess) Name() string { return p.name }

func (p *fakeProcess) SetAffinity(m mask.CoreMask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.affinities = append(p.affinities, m)
	return nil
}

func (p *fakeProcess) SetPriority(c priority.Class) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.classes = append(p.classes, c)
	return nil
}

func (p *fakeProcess) applied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.affinities)
}

// scripted hands out one snapshot per List call and repeats the last one.
type scripted struct {
	mu    sync.Mutex
	snaps [][]*fakeProcess
	errs  []error
	calls int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *scripted) List(context.Context) ([]enforce.Process, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		old := s.maxInFlight.Load()
		if n <= old || s.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.snaps) {
		i = len(s.snaps) - 1
	}
	out := make([]enforce.Process, 0, len(s.snaps[i]))
	for _, p := range s.snaps[i] {
		out = append(out, p)
	}
	return out, nil
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func hourly() profile.Raw {
	return profile.Raw{Name: "test", OtherCores: "0", IntervalMS: int(time.Hour / time.Millisecond)}
}

func TestTick_OnlyNewcomersAreApplied(t *testing.T) {
	p1 := &fakeProcess{pid: 1, name: "a"}
	p2 := &fakeProcess{pid: 2, name: "b"}
	p3 := &fakeProcess{pid: 3, name: "c"}
	l := &scripted{snaps: [][]*fakeProcess{{p1, p2}, {p1, p2, p3}}}

	m := New(l, nil, nil)
	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	defer m.Stop()

	// Start ran the first tick: {1,2}
	assert.Equal(t, 1, p1.applied())
	assert.Equal(t, 1, p2.applied())
	assert.Equal(t, 0, p3.applied())

	m.tick(context.Background(), m.run)
	assert.Equal(t, 1, p1.applied(), "pid 1 must not be re-applied")
	assert.Equal(t, 1, p2.applied(), "pid 2 must not be re-applied")
	assert.Equal(t, 1, p3.applied())
	assert.Equal(t, []mask.CoreMask{0b1}, p3.affinities)
}

func TestTick_SwapNotMerge(t *testing.T) {
	p1 := &fakeProcess{pid: 1, name: "a"}
	p2 := &fakeProcess{pid: 2, name: "b"}
	// pid 2 disappears for one tick and comes back: it is new again
	l := &scripted{snaps: [][]*fakeProcess{{p1, p2}, {p1}, {p1, p2}}}

	m := New(l, nil, nil)
	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	defer m.Stop()

	m.tick(context.Background(), m.run)
	m.tick(context.Background(), m.run)
	assert.Equal(t, 1, p1.applied())
	assert.Equal(t, 2, p2.applied())
}

func TestTick_SnapshotErrorKeepsPrevious(t *testing.T) {
	p1 := &fakeProcess{pid: 1, name: "a"}
	p2 := &fakeProcess{pid: 2, name: "b"}
	l := &scripted{
		snaps: [][]*fakeProcess{{p1}, nil, {p1, p2}},
		errs:  []error{nil, errors.New("readdir failed")},
	}

	m := New(l, nil, nil)
	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	defer m.Stop()

	m.tick(context.Background(), m.run) // fails
	m.tick(context.Background(), m.run)
	assert.Equal(t, 1, p1.applied())
	assert.Equal(t, 1, p2.applied())
}

func TestTick_RulesAndPriority(t *testing.T) {
	game := &fakeProcess{pid: 10, name: "Game"}
	l := &scripted{snaps: [][]*fakeProcess{{game}}}
	raw := hourly()
	raw.Processes = []profile.RawRule{{Name: "game", Cores: "1-2", Priority: priority.High}}

	m := New(l, nil, nil)
	require.NoError(t, m.Start(context.Background(), raw, 4))
	defer m.Stop()

	high, _, _ := priority.High.Class()
	assert.Equal(t, []mask.CoreMask{0b110}, game.affinities)
	assert.Equal(t, []priority.Class{high}, game.classes)
}

func TestStart_Errors(t *testing.T) {
	l := &scripted{snaps: [][]*fakeProcess{{}}}
	m := New(l, nil, nil)

	bad := hourly()
	bad.Processes = []profile.RawRule{{Name: "x"}, {Name: "X"}}
	assert.ErrorIs(t, m.Start(context.Background(), bad, 4), profile.ErrDuplicateName)
	assert.False(t, m.Running())

	bad = hourly()
	bad.OtherCores = "9"
	assert.ErrorIs(t, m.Start(context.Background(), bad, 4), mask.ErrRange)
	assert.False(t, m.Running())

	bad = hourly()
	bad.IntervalMS = -5
	assert.ErrorIs(t, m.Start(context.Background(), bad, 4), profile.ErrBadInterval)
	assert.False(t, m.Running())
	assert.Zero(t, l.Calls(), "no tick on a failed start")

	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	assert.True(t, m.Running())
	assert.ErrorIs(t, m.Start(context.Background(), hourly(), 4), ErrRunning)
	m.Stop()
	assert.False(t, m.Running())
}

// blocking parks the first List call until release is closed.
type blocking struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blocking) List(ctx context.Context) ([]enforce.Process, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return nil, nil
}

func TestStart_FirstTickDoesNotHoldLock(t *testing.T) {
	l := &blocking{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(l, nil, nil)

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background(), hourly(), 4) }()
	<-l.entered

	running := make(chan bool, 1)
	go func() { running <- m.Running() }()
	select {
	case r := <-running:
		assert.True(t, r)
	case <-time.After(2 * time.Second):
		t.Fatal("Running blocked during the first tick")
	}
	assert.ErrorIs(t, m.Start(context.Background(), hourly(), 4), ErrRunning)

	close(l.release)
	require.NoError(t, <-started)
	m.Stop()
	assert.False(t, m.Running())
}

func TestStop_IdempotentAndRestartClearsState(t *testing.T) {
	p1 := &fakeProcess{pid: 1, name: "a"}
	l := &scripted{snaps: [][]*fakeProcess{{p1}}}
	m := New(l, nil, nil)

	m.Stop() // idle: no-op
	select {
	case <-m.Done():
	default:
		t.Fatal("Done of an idle monitor must be closed")
	}

	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	m.Stop()
	m.Stop()

	// a new run starts from an empty seen set
	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	m.Stop()
	assert.Equal(t, 2, p1.applied())
}

func TestLoop_TicksSeriallyUntilStopped(t *testing.T) {
	p1 := &fakeProcess{pid: 1, name: "a"}
	l := &scripted{snaps: [][]*fakeProcess{{p1}}}
	raw := hourly()
	raw.IntervalMS = 5

	m := New(l, nil, nil)
	require.NoError(t, m.Start(context.Background(), raw, 4))
	require.Eventually(t, func() bool { return l.Calls() >= 4 }, 2*time.Second, time.Millisecond)

	m.Stop()
	calls := l.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, l.Calls(), "no tick after Stop returned")
	assert.Equal(t, int32(1), l.maxInFlight.Load(), "ticks must not overlap")
	assert.Equal(t, 1, p1.applied())
}

func TestLoop_ContextCancelEndsRun(t *testing.T) {
	l := &scripted{snaps: [][]*fakeProcess{{}}}
	raw := hourly()
	raw.IntervalMS = 5

	ctx, cancel := context.WithCancel(context.Background())
	m := New(l, nil, nil)
	require.NoError(t, m.Start(ctx, raw, 4))
	done := m.Done()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not end after context cancel")
	}
	assert.False(t, m.Running())

	// a finished run does not block the next Start
	require.NoError(t, m.Start(context.Background(), hourly(), 4))
	m.Stop()
}
