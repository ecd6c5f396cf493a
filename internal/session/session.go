// Package session runs the frame loop of one controller session: capture, decide, actuate.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/door"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/recognition"
	"github.com/kozaktomas/facegate/internal/status"
	"github.com/kozaktomas/facegate/internal/training"
)

// ErrTrainingInProgress is returned by Retrain while another pass is running.
var ErrTrainingInProgress = errors.New("training already in progress")

// Camera yields frames; reopened reports that the read triggered a capture reopen.
type Camera interface {
	Read() (frame image.Image, reopened bool)
	Name() string
}

// Trainer builds a model from the sample store.
type Trainer interface {
	Build(ctx context.Context) (*training.Model, error)
}

// AccessFunc is called when OPEN is commanded for an accepted verdict.
type AccessFunc func(v recognition.Verdict, at time.Time)

// Options configures a Controller. Nil fields are optional.
type Options struct {
	Tick     time.Duration
	Metrics  *metrics.Metrics
	Board    *status.Board
	OnAccess AccessFunc
}

// Controller owns the tick goroutine. The engine model is the only state shared with
// Retrain and it is swapped atomically.
type Controller struct {
	id      uuid.UUID
	camera  Camera
	engine  *recognition.Engine
	door    *door.Machine
	trainer Trainer
	tick    time.Duration
	metrics *metrics.Metrics
	board   *status.Board
	access  AccessFunc
	now     func() time.Time

	training sync.Mutex

	// announced is owned by the tick goroutine.
	announced *verdictKey

	mu          sync.RWMutex
	lastVerdict recognition.Verdict
	lastFrame   time.Time
	cameraName  string
	ticks       uint64
}

type verdictKey struct {
	reason recognition.Reason
	name   string
	label  int
}

// New creates a controller. camera may be nil, in which case every tick is empty.
func New(camera Camera, engine *recognition.Engine, machine *door.Machine, trainer Trainer, opts Options) *Controller {
	if opts.Tick <= 0 {
		opts.Tick = constants.TickInterval
	}
	if opts.Board == nil {
		opts.Board = status.NewBoard()
	}
	c := &Controller{
		id:      uuid.New(),
		camera:  camera,
		engine:  engine,
		door:    machine,
		trainer: trainer,
		tick:    opts.Tick,
		metrics: opts.Metrics,
		board:   opts.Board,
		access:  opts.OnAccess,
		now:     time.Now,
	}
	machine.Observe(c.observeDoor)
	return c
}

// ID identifies the session.
func (c *Controller) ID() uuid.UUID { return c.id }

// Board returns the operator status board.
func (c *Controller) Board() *status.Board { return c.board }

// Engine returns the recognition engine.
func (c *Controller) Engine() *recognition.Engine { return c.engine }

// Door returns the door state machine.
func (c *Controller) Door() *door.Machine { return c.door }

// Retrain builds a new model and publishes it. On failure the active model is kept.
func (c *Controller) Retrain(ctx context.Context) (*training.Model, error) {
	if !c.training.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer c.training.Unlock()

	c.board.SetStatus("training model")
	model, err := c.trainer.Build(ctx)
	if err != nil {
		result := "error"
		if errors.Is(err, training.ErrInsufficientData) {
			result = "insufficient_data"
		}
		c.metrics.ObserveTraining(result, 0, 0)
		if c.engine.Model() != nil {
			c.board.SetStatus("training failed, keeping previous model")
		} else {
			c.board.SetStatus("training failed, recognition disabled")
		}
		return nil, fmt.Errorf("retrain: %w", err)
	}

	c.engine.Publish(model)
	c.metrics.ObserveTraining("ok", model.Classes(), model.Loaded)
	c.board.SetStatus(model.Summary())
	slog.Info("session: model published",
		"model", model.ID, "matcher", model.Kind(), "classes", model.Classes(),
		"samples", model.Loaded, "skipped", model.Skipped, "conflicts", len(model.Conflicts))
	return model, nil
}

// Run handles inbound device lines on their own goroutine and ticks until ctx is done.
// The timer is re-armed after each tick, so slow ticks delay the next one instead of queueing.
func (c *Controller) Run(ctx context.Context, lines <-chan string) {
	var wg sync.WaitGroup
	if lines != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.door.Run(ctx, lines)
		}()
	}

	slog.Info("session: started", "session", c.id, "tick", c.tick)
	timer := time.NewTimer(c.tick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			slog.Info("session: stopped", "session", c.id)
			return
		case <-timer.C:
			c.Tick()
			timer.Reset(c.tick)
		}
	}
}

// Tick runs one capture/decide/actuate step. An empty frame only advances the close rule,
// so the grace keeps running while the camera is down without breaking an open streak.
func (c *Controller) Tick() recognition.Verdict {
	start := c.now()

	var (
		frame  image.Image
		camera string
	)
	if c.camera != nil {
		var reopened bool
		frame, reopened = c.camera.Read()
		camera = c.camera.Name()
		if reopened {
			c.metrics.IncCameraReopens()
			if camera != "" {
				c.board.SetStatus("camera reconnected: " + camera)
			} else {
				c.board.SetStatus("camera lost, retrying")
			}
		}
	}

	var (
		v   recognition.Verdict
		cmd door.Command
		err error
	)
	if frame != nil {
		v = c.engine.Decide(frame)
		c.metrics.ObserveVerdict(string(v.Reason), v.Score, v.FaceFound())
		c.announce(v)
		cmd, err = c.door.Update(v.Matched, start)
	} else {
		cmd, err = c.door.Idle(start)
	}
	if err != nil {
		slog.Warn("session: door command failed", "command", cmd, "error", err)
	}
	if cmd == door.CommandOpen && v.Matched && c.access != nil {
		c.access(v, start)
	}

	c.mu.Lock()
	c.ticks++
	c.cameraName = camera
	if frame != nil {
		c.lastVerdict = v
		c.lastFrame = start
	}
	c.mu.Unlock()

	c.metrics.ObserveTick(c.now().Sub(start), frame != nil)
	return v
}

// announce puts the verdict on the board when its outcome changes. Score-only changes are
// left to the snapshot so a face in view does not rewrite the board every frame.
func (c *Controller) announce(v recognition.Verdict) {
	key := verdictKey{reason: v.Reason, name: v.Name, label: v.Label}
	if c.announced != nil && *c.announced == key {
		return
	}
	c.announced = &key
	c.board.SetMessage(v.String())
}

func (c *Controller) observeDoor(ev door.Event) {
	if ev.Command != door.CommandNone {
		c.metrics.ObserveCommand(string(ev.Command), ev.Err)
	}
	c.metrics.SetLock(ev.Belief == door.Open)
	c.metrics.SetReed(ev.Reed == door.ReedClosed, ev.Reed != door.ReedUnknown)

	if ev.Changed {
		slog.Info("session: lock belief changed", "lock", ev.Belief, "source", ev.Source, "command", ev.Command, "message", ev.Message)
		c.board.SetStatus("lock " + ev.Belief.String())
	}
	if ev.Err != nil && ev.Command == door.CommandStatus {
		c.board.SetStatus("device status query failed")
	}
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	SessionID   string       `json:"session_id"`
	Camera      string       `json:"camera"`
	Detector    bool         `json:"detector"`
	Threshold   float64      `json:"threshold"`
	Model       *ModelInfo   `json:"model"`
	Lock        string       `json:"lock"`
	Reed        string       `json:"reed"`
	Consecutive int          `json:"consecutive"`
	LastVerdict *VerdictInfo `json:"last_verdict,omitempty"`
	Ticks       uint64       `json:"ticks"`
	Board       status.Entry `json:"board"`
}

// ModelInfo describes the active model.
type ModelInfo struct {
	ID        string    `json:"id"`
	Matcher   string    `json:"matcher"`
	Classes   int       `json:"classes"`
	Samples   int       `json:"samples"`
	Skipped   int       `json:"skipped"`
	Conflicts []int     `json:"conflicts"`
	TrainedAt time.Time `json:"trained_at"`
}

// VerdictInfo describes the last decided frame.
type VerdictInfo struct {
	Reason  string    `json:"reason"`
	Matched bool      `json:"matched"`
	Name    string    `json:"name,omitempty"`
	Label   int       `json:"label,omitempty"`
	Score   float64   `json:"score,omitempty"`
	At      time.Time `json:"at"`
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	st := c.door.State()
	s := Snapshot{
		SessionID:   c.id.String(),
		Detector:    c.engine.DetectorAvailable(),
		Threshold:   c.engine.Threshold(),
		Lock:        st.Belief.String(),
		Reed:        st.Reed.String(),
		Consecutive: st.Consecutive,
		Board:       c.board.Get(),
	}
	if m := c.engine.Model(); m != nil {
		s.Model = &ModelInfo{
			ID:        m.ID.String(),
			Matcher:   string(m.Kind()),
			Classes:   m.Classes(),
			Samples:   m.Loaded,
			Skipped:   m.Skipped,
			Conflicts: m.Conflicts,
			TrainedAt: m.TrainedAt,
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	s.Ticks = c.ticks
	s.Camera = c.cameraName
	if !c.lastFrame.IsZero() {
		v := c.lastVerdict
		s.LastVerdict = &VerdictInfo{Reason: string(v.Reason), Matched: v.Matched, Name: v.Name, Label: v.Label, Score: v.Score, At: c.lastFrame}
	}
	return s
}
