package door

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (f *fakeSender) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return f.err
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.lines)
}

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func tick(i int) time.Time {
	return t0.Add(time.Duration(i) * 33 * time.Millisecond)
}

func newTestMachine() (*Machine, *fakeSender) {
	s := &fakeSender{}
	return NewMachine(Config{OpenConfirmFrames: 5, CloseGrace: 3000 * time.Millisecond}, s), s
}

func TestUpdate_FourAcceptsThenRejectNeverOpens(t *testing.T) {
	m, s := newTestMachine()

	for i := range 4 {
		m.Update(true, tick(i))
	}
	m.Update(false, tick(4))
	for i := 5; i < 9; i++ {
		m.Update(true, tick(i))
	}

	if len(s.sent()) != 0 {
		t.Errorf("expected no command, got %v", s.sent())
	}
	if m.State().Belief != Closed {
		t.Error("expected belief to stay closed")
	}
}

func TestUpdate_FiveAcceptsOpenOnce(t *testing.T) {
	m, s := newTestMachine()

	var cmds []Command
	for i := range 7 {
		cmd, err := m.Update(true, tick(i))
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		cmds = append(cmds, cmd)
	}

	want := []Command{CommandNone, CommandNone, CommandNone, CommandNone, CommandOpen, CommandNone, CommandNone}
	if !slices.Equal(cmds, want) {
		t.Errorf("commands = %v, want %v", cmds, want)
	}
	if !slices.Equal(s.sent(), []string{"OPEN"}) {
		t.Errorf("expected exactly one OPEN, got %v", s.sent())
	}
	if m.State().Belief != Open {
		t.Error("expected belief open")
	}
}

func TestUpdate_CloseAfterGrace(t *testing.T) {
	m, s := newTestMachine()
	for i := range 5 {
		m.Update(true, tick(i))
	}
	lastAccept := tick(4)

	for _, at := range []time.Duration{100 * time.Millisecond, 2999 * time.Millisecond, 3000 * time.Millisecond} {
		if cmd, _ := m.Update(false, lastAccept.Add(at)); cmd != CommandNone {
			t.Fatalf("unexpected %s at +%v", cmd, at)
		}
	}

	cmd, err := m.Update(false, lastAccept.Add(3001*time.Millisecond))
	if err != nil || cmd != CommandClose {
		t.Fatalf("expected CLOSE after grace, got %q (%v)", cmd, err)
	}
	if cmd, _ := m.Update(false, lastAccept.Add(4*time.Second)); cmd != CommandNone {
		t.Errorf("expected no repeated CLOSE, got %s", cmd)
	}

	if !slices.Equal(s.sent(), []string{"OPEN", "CLOSE"}) {
		t.Errorf("unexpected traffic %v", s.sent())
	}
	if m.State().Belief != Closed {
		t.Error("expected belief closed")
	}
}

func TestUpdate_AcceptsExtendGrace(t *testing.T) {
	m, s := newTestMachine()
	for i := range 5 {
		m.Update(true, tick(i))
	}

	m.Update(true, t0.Add(2*time.Second))
	if cmd, _ := m.Update(false, t0.Add(4*time.Second)); cmd != CommandNone {
		t.Errorf("expected grace measured from latest accept, got %s", cmd)
	}
	if len(s.sent()) != 1 {
		t.Errorf("unexpected traffic %v", s.sent())
	}
}

func TestUpdate_OpenRuleSkipsCloseRuleSameTick(t *testing.T) {
	m, _ := newTestMachine()
	for i := range 4 {
		m.Update(true, tick(i))
	}
	// Far in the future, but the open rule wins and returns.
	cmd, _ := m.Update(true, t0.Add(time.Hour))
	if cmd != CommandOpen {
		t.Errorf("expected OPEN, got %s", cmd)
	}
}

func TestUpdate_SendFailureStillFlipsBelief(t *testing.T) {
	m, s := newTestMachine()
	s.err = errors.New("port closed")

	var err error
	for i := range 5 {
		_, err = m.Update(true, tick(i))
	}
	if err == nil {
		t.Fatal("expected send error")
	}
	if m.State().Belief != Open {
		t.Error("expected belief to flip before the write")
	}
	if _, err := m.Update(true, tick(5)); err != nil {
		t.Errorf("expected no retry on next tick, got %v", err)
	}
	if len(s.sent()) != 1 {
		t.Errorf("expected a single attempt, got %v", s.sent())
	}
}

func TestIdle(t *testing.T) {
	t.Run("keeps the open streak", func(t *testing.T) {
		m, s := newTestMachine()
		for i := range 3 {
			m.Update(true, tick(i))
		}
		if cmd, _ := m.Idle(tick(3)); cmd != CommandNone {
			t.Fatalf("expected no command on idle tick, got %s", cmd)
		}
		if got := m.State().Consecutive; got != 3 {
			t.Errorf("expected streak of 3 kept across idle tick, got %d", got)
		}
		m.Update(true, tick(4))
		m.Update(true, tick(5))
		if !slices.Equal(s.sent(), []string{"OPEN"}) {
			t.Errorf("expected OPEN after 5 accepted frames around a gap, got %v", s.sent())
		}
	})

	t.Run("never opens", func(t *testing.T) {
		m, s := newTestMachine()
		for i := range 5 {
			m.Update(true, tick(i))
		}
		m.HandleLine("LOCKED")
		m.Idle(tick(5))
		if !slices.Equal(s.sent(), []string{"OPEN"}) {
			t.Errorf("expected idle tick to send nothing, got %v", s.sent())
		}
	})

	t.Run("still closes after grace", func(t *testing.T) {
		m, s := newTestMachine()
		for i := range 5 {
			m.Update(true, tick(i))
		}
		last := tick(4)
		if cmd, _ := m.Idle(last.Add(3000 * time.Millisecond)); cmd != CommandNone {
			t.Errorf("expected no close at exactly the grace, got %s", cmd)
		}
		if cmd, _ := m.Idle(last.Add(3001 * time.Millisecond)); cmd != CommandClose {
			t.Errorf("expected CLOSE after the grace, got %s", cmd)
		}
		if !slices.Equal(s.sent(), []string{"OPEN", "CLOSE"}) {
			t.Errorf("unexpected commands %v", s.sent())
		}
	})
}

func TestHandleLine(t *testing.T) {
	tests := []struct {
		name       string
		start      Belief
		line       string
		wantBelief Belief
		wantReed   Reed
		wantSent   []string
	}{
		{"done open", Closed, "DONE: OPEN", Open, ReedUnknown, nil},
		{"done close forces closed", Open, "DONE: CLOSE\r\n", Closed, ReedUnknown, nil},
		{"auto close", Open, "  AUTO: CLOSE", Closed, ReedUnknown, nil},
		{"locked", Open, "LOCKED", Closed, ReedUnknown, nil},
		{"unlocked", Closed, "UNLOCKED", Open, ReedUnknown, nil},
		{"sensor closed keeps belief", Open, "SENSOR: CLOSED", Open, ReedClosed, nil},
		{"sensor opened keeps belief", Closed, "SENSOR: OPENED", Closed, ReedOpened, nil},
		{"ready queries status", Open, "READY", Open, ReedUnknown, []string{"STATUS?"}},
		{"case sensitive", Closed, "done: open", Closed, ReedUnknown, nil},
		{"empty", Open, "   ", Open, ReedUnknown, nil},
		{"unknown", Open, "HELLO", Open, ReedUnknown, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, s := newTestMachine()
			m.belief = tc.start

			if err := m.HandleLine(tc.line); err != nil {
				t.Fatalf("HandleLine: %v", err)
			}
			st := m.State()
			if st.Belief != tc.wantBelief {
				t.Errorf("belief = %s, want %s", st.Belief, tc.wantBelief)
			}
			if st.Reed != tc.wantReed {
				t.Errorf("reed = %s, want %s", st.Reed, tc.wantReed)
			}
			if !slices.Equal(s.sent(), tc.wantSent) {
				t.Errorf("sent = %v, want %v", s.sent(), tc.wantSent)
			}
		})
	}
}

func TestHandleLine_DeviceCloseThenCameraReopens(t *testing.T) {
	m, s := newTestMachine()
	for i := range 5 {
		m.Update(true, tick(i))
	}
	_ = m.HandleLine("AUTO: CLOSE")

	// The counter is still at 5, so the next accepted frame re-opens.
	if cmd, _ := m.Update(true, tick(5)); cmd != CommandOpen {
		t.Errorf("expected OPEN after device auto-close, got %s", cmd)
	}
	if !slices.Equal(s.sent(), []string{"OPEN", "OPEN"}) {
		t.Errorf("unexpected traffic %v", s.sent())
	}
}

func TestObserve(t *testing.T) {
	m, _ := newTestMachine()
	var events []Event
	m.Observe(func(ev Event) { events = append(events, ev) })

	for i := range 5 {
		m.Update(true, tick(i))
	}
	_ = m.HandleLine("SENSOR: OPENED")
	_ = m.HandleLine("nonsense")

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Command != CommandOpen || events[0].Source != SourceCommand || !events[0].Changed {
		t.Errorf("unexpected command event %+v", events[0])
	}
	if events[1].Message != MessageSensorOpened || events[1].Changed || events[1].Reed != ReedOpened {
		t.Errorf("unexpected device event %+v", events[1])
	}
}

func TestRun(t *testing.T) {
	m, s := newTestMachine()
	lines := make(chan string, 3)
	lines <- "DONE: OPEN"
	lines <- "READY"
	close(lines)

	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), lines)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after lines closed")
	}
	if m.State().Belief != Open {
		t.Error("expected belief open")
	}
	if !slices.Equal(s.sent(), []string{"STATUS?"}) {
		t.Errorf("expected status query, got %v", s.sent())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	m, _ := newTestMachine()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, make(chan string))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestParseLine(t *testing.T) {
	if ParseLine("UNLOCKED") != MessageUnlocked {
		t.Error("UNLOCKED must not match LOCKED")
	}
	if ParseLine("DONE: OPEN extra") != MessageDoneOpen {
		t.Error("expected prefix match")
	}
	if MessageReady.String() != "READY" || MessageIgnored.String() != "ignored" {
		t.Error("unexpected message names")
	}
}
