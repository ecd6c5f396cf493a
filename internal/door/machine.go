// Package door holds the lock actuation state machine: it debounces per-frame verdicts
// into OPEN/CLOSE commands and reconciles its lock belief with device reports.
package door

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/constants"
)

// Belief is the controller's view of the physical lock.
type Belief int

const (
	Closed Belief = iota
	Open
)

func (b Belief) String() string {
	if b == Open {
		return "open"
	}
	return "closed"
}

// Reed is the last door reed sensor report.
type Reed int

const (
	ReedUnknown Reed = iota
	ReedClosed
	ReedOpened
)

func (r Reed) String() string {
	switch r {
	case ReedClosed:
		return "closed"
	case ReedOpened:
		return "opened"
	default:
		return "unknown"
	}
}

// Sender writes one line to the device.
type Sender interface {
	Send(line string) error
}

// Config holds the hysteresis parameters.
type Config struct {
	OpenConfirmFrames int           // consecutive accepted frames before OPEN
	CloseGrace        time.Duration // time since the last accepted frame before CLOSE
}

// Source tells whether a belief change came from a camera-driven command or the device.
type Source string

const (
	SourceCommand Source = "command"
	SourceDevice  Source = "device"
)

// Event describes something the machine did. Observers must not block.
type Event struct {
	At      time.Time
	Source  Source
	Belief  Belief  // belief after the event
	Changed bool    // belief changed
	Command Command // command sent, if any
	Message Message // device message handled, if any
	Reed    Reed
	Err     error // send failure
}

// Observer receives events synchronously.
type Observer func(Event)

// State is a snapshot of the machine.
type State struct {
	Belief      Belief
	Reed        Reed
	Consecutive int
	LastAccept  time.Time
}

// Machine is the only writer of the lock belief.
type Machine struct {
	cfg    Config
	sender Sender
	now    func() time.Time

	mu          sync.Mutex
	belief      Belief
	reed        Reed
	consecutive int
	lastAccept  time.Time
	observers   []Observer
}

// NewMachine creates a machine believing the lock is closed.
func NewMachine(cfg Config, sender Sender) *Machine {
	if cfg.OpenConfirmFrames <= 0 {
		cfg.OpenConfirmFrames = constants.DefaultOpenConfirmFrames
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = constants.DefaultCloseGrace
	}
	return &Machine{cfg: cfg, sender: sender, now: time.Now}
}

// Observe registers an observer. Call before the machine is in use.
func (m *Machine) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// State returns a snapshot of belief, reed and debounce counters.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Belief: m.belief, Reed: m.reed, Consecutive: m.consecutive, LastAccept: m.lastAccept}
}

// Update applies one frame verdict. At most one command is sent per call; the belief is
// flipped before the write and a failed write is returned without retry.
func (m *Machine) Update(accepted bool, now time.Time) (Command, error) {
	m.mu.Lock()
	if accepted {
		m.consecutive++
		m.lastAccept = now
	} else {
		m.consecutive = 0
	}
	return m.decideLocked(now, true)
}

// Idle advances the clock for a tick that produced no frame. Only the close rule runs;
// the open streak is left as it was.
func (m *Machine) Idle(now time.Time) (Command, error) {
	m.mu.Lock()
	return m.decideLocked(now, false)
}

// decideLocked picks the command for this tick and releases m.mu before sending.
func (m *Machine) decideLocked(now time.Time, mayOpen bool) (Command, error) {
	cmd := CommandNone
	switch {
	case mayOpen && m.belief == Closed && m.consecutive >= m.cfg.OpenConfirmFrames:
		m.belief = Open
		cmd = CommandOpen
	case m.belief == Open && now.Sub(m.lastAccept) > m.cfg.CloseGrace:
		m.belief = Closed
		cmd = CommandClose
	}
	belief, reed := m.belief, m.reed
	observers := m.observers
	m.mu.Unlock()

	if cmd == CommandNone {
		return CommandNone, nil
	}

	err := m.send(cmd)
	notify(observers, Event{At: now, Source: SourceCommand, Belief: belief, Changed: true, Command: cmd, Reed: reed, Err: err})
	return cmd, err
}

// HandleLine reconciles the belief with one inbound device line. Acknowledgements and
// lock reports set the belief directly; READY triggers a status query.
func (m *Machine) HandleLine(line string) error {
	msg := ParseLine(line)
	if msg == MessageIgnored {
		return nil
	}

	m.mu.Lock()
	before := m.belief
	switch msg {
	case MessageDoneOpen, MessageUnlocked:
		m.belief = Open
	case MessageDoneClose, MessageAutoClose, MessageLocked:
		m.belief = Closed
	case MessageSensorClosed:
		m.reed = ReedClosed
	case MessageSensorOpened:
		m.reed = ReedOpened
	}
	ev := Event{At: m.now(), Source: SourceDevice, Belief: m.belief, Changed: m.belief != before, Message: msg, Reed: m.reed}
	observers := m.observers
	m.mu.Unlock()

	if msg == MessageReady {
		ev.Command = CommandStatus
		ev.Err = m.send(CommandStatus)
	}
	notify(observers, ev)
	return ev.Err
}

// Run handles inbound lines until ctx is done or lines is closed.
func (m *Machine) Run(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := m.HandleLine(line); err != nil {
				slog.Warn("door: status query failed", "error", err)
			}
		}
	}
}

func (m *Machine) send(cmd Command) error {
	if m.sender == nil {
		return fmt.Errorf("send %s: no device link", cmd)
	}
	if err := m.sender.Send(string(cmd)); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

func notify(observers []Observer, ev Event) {
	for _, o := range observers {
		o(ev)
	}
}
