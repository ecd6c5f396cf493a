// Package training builds a recognition model from the enrolled samples in the store.
package training

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facecodec"
	"github.com/kozaktomas/facegate/internal/labels"
	"github.com/kozaktomas/facegate/internal/matcher"
)

var (
	// ErrInsufficientData means the store held no decodable sample. Recognition stays disabled
	// (or keeps the previous model) until a later retrain succeeds.
	ErrInsufficientData = errors.New("no usable training samples")
	// ErrTrainingFailed wraps an error returned by the matcher while training.
	ErrTrainingFailed = errors.New("training failed")
)

// Model is a trained matcher together with the label mapping it was trained with.
// It is never mutated after Build returns.
type Model struct {
	ID        uuid.UUID
	Matcher   matcher.Matcher
	Labels    *labels.Snapshot
	Loaded    int   // samples used for training
	Skipped   int   // samples that failed to decode
	Conflicts []int // identity ids split by name
	TrainedAt time.Time
}

// Kind returns the matcher implementation of the model.
func (m *Model) Kind() matcher.Kind {
	return m.Matcher.Kind()
}

// Classes returns the number of distinct labels the model knows.
func (m *Model) Classes() int {
	return m.Labels.Len()
}

// Summary is a one-line description for the operator status.
func (m *Model) Summary() string {
	return fmt.Sprintf("model ready (%s, classes=%d, samples=%d, skipped=%d)", m.Kind(), m.Classes(), m.Loaded, m.Skipped)
}

// Builder assembles training sets from a sample store.
type Builder struct {
	store   database.SampleReader
	factory matcher.Factory
	now     func() time.Time
}

// NewBuilder creates a builder that trains a fresh matcher from factory on every Build.
func NewBuilder(store database.SampleReader, factory matcher.Factory) *Builder {
	return &Builder{store: store, factory: factory, now: time.Now}
}

// Survey lists the stored identities and the ids stored under more than one name.
func Survey(ctx context.Context, store database.SampleReader) ([]database.Identity, labels.ConflictSet, error) {
	identities, err := store.ListIdentities(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing identities: %w", err)
	}

	observed := make([]labels.Identity, len(identities))
	for i, ident := range identities {
		observed[i] = labels.Identity{ID: ident.UserID, Name: ident.UserName}
	}
	return identities, labels.DetectConflicts(observed), nil
}

// Build reads the full sample set and trains a new model.
//
// Conflicts are detected on a complete identity scan before any label is assigned, so the
// label of a sample never depends on the order samples are read in.
func (b *Builder) Build(ctx context.Context) (*Model, error) {
	_, conflicts, err := Survey(ctx, b.store)
	if err != nil {
		return nil, err
	}
	for _, id := range conflicts.IDs() {
		slog.Warn("training: identity has multiple names, splitting by name", "user_id", id)
	}

	m := b.factory()
	registry := labels.NewRegistry(conflicts)

	var (
		faces   []*image.Gray
		lbls    []labels.Label
		skipped int
	)
	err = b.store.EachSample(ctx, func(s database.Sample) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := facecodec.Decode(s.Data)
		if err != nil {
			skipped++
			slog.Debug("training: skipping undecodable sample", "id", s.ID, "user_id", s.UserID, "error", err)
			return nil
		}
		faces = append(faces, m.Prepare(img))
		lbls = append(lbls, registry.Resolve(s.UserID, s.UserName))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	if len(faces) == 0 {
		return nil, fmt.Errorf("%w (skipped %d)", ErrInsufficientData, skipped)
	}

	if err := m.Train(faces, lbls); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}

	model := &Model{
		ID:        uuid.New(),
		Matcher:   m,
		Labels:    registry.Snapshot(),
		Loaded:    len(faces),
		Skipped:   skipped,
		Conflicts: conflicts.IDs(),
		TrainedAt: b.now(),
	}
	slog.Info("training: model built",
		"model_id", model.ID,
		"matcher", model.Kind(),
		"classes", model.Classes(),
		"samples", model.Loaded,
		"skipped", model.Skipped)
	return model, nil
}
