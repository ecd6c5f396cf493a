package vision

import (
	"errors"
	"image"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kozaktomas/facegate/internal/config"
)

type fakeSource struct {
	name   string
	frames []bool // true yields a frame, false an empty read
	pos    int
	closed bool
}

func (f *fakeSource) Read() (image.Image, bool) {
	if f.pos >= len(f.frames) {
		return nil, false
	}
	ok := f.frames[f.pos]
	f.pos++
	if !ok {
		return nil, false
	}
	return image.NewGray(image.Rect(0, 0, 4, 4)), true
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestFindCascade(t *testing.T) {
	present := map[string]bool{"/b/cascade.xml": true, "/c/cascade.xml": true}
	exists := func(p string) bool { return present[p] }

	got, err := FindCascade([]string{"/a/cascade.xml", "/b/cascade.xml", "/c/cascade.xml"}, exists)
	if err != nil {
		t.Fatalf("FindCascade: %v", err)
	}
	if got != "/b/cascade.xml" {
		t.Errorf("expected first existing candidate, got %s", got)
	}

	if _, err := FindCascade([]string{"/a/cascade.xml"}, exists); !errors.Is(err, ErrNoCascade) {
		t.Errorf("expected ErrNoCascade, got %v", err)
	}
}

func TestCascadeCandidates_Order(t *testing.T) {
	cfg := &config.CameraConfig{
		CascadePath:       "/opt/custom.xml",
		CascadeCandidates: []string{"/usr/share/opencv4/haarcascades/" + CascadeFile},
	}
	got := CascadeCandidates(cfg)

	if got[0] != "/opt/custom.xml" {
		t.Errorf("expected explicit path first, got %s", got[0])
	}
	if got[len(got)-1] != cfg.CascadeCandidates[0] {
		t.Errorf("expected system location last, got %s", got[len(got)-1])
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 candidates, got %v", got)
	}
	for _, c := range got[1:3] {
		if filepath.Base(c) != CascadeFile {
			t.Errorf("expected %s in exe/cwd candidate, got %s", CascadeFile, c)
		}
	}

	if slices.Contains(CascadeCandidates(&config.CameraConfig{}), "") {
		t.Error("expected empty explicit path to be skipped")
	}
}

func TestCamera_ReopensAfterEmptyFrames(t *testing.T) {
	first := &fakeSource{name: "first", frames: []bool{true, false, false, false}}
	second := &fakeSource{name: "second", frames: []bool{true}}
	sources := []*fakeSource{first, second}
	opens := 0
	open := func() (Source, error) {
		s := sources[opens]
		opens++
		return s, nil
	}

	cam := NewCamera(open, 3)
	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if frame, _ := cam.Read(); frame == nil {
		t.Fatal("expected first frame")
	}
	for i := range 2 {
		if _, reopened := cam.Read(); reopened {
			t.Fatalf("empty read %d: reopened too early", i+1)
		}
	}
	if _, reopened := cam.Read(); !reopened {
		t.Fatal("expected reopen on third consecutive empty read")
	}
	if !first.closed {
		t.Error("expected old source to be closed")
	}
	if cam.Name() != "second" || cam.reopens != 1 {
		t.Errorf("expected second source after 1 reopen, got %q after %d", cam.Name(), cam.reopens)
	}
	if frame, _ := cam.Read(); frame == nil {
		t.Error("expected frame from reopened source")
	}
}

func TestCamera_FrameResetsEmptyCount(t *testing.T) {
	src := &fakeSource{name: "cam", frames: []bool{false, false, true, false, false}}
	cam := NewCamera(func() (Source, error) { return src, nil }, 3)
	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for range 5 {
		if _, reopened := cam.Read(); reopened {
			t.Fatal("expected no reopen when a frame interrupts the empty run")
		}
	}
}

func TestCamera_RetriesWhenNoCamera(t *testing.T) {
	attempts := 0
	cam := NewCamera(func() (Source, error) {
		attempts++
		return nil, ErrNoCamera
	}, 2)

	if err := cam.Open(); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
	cam.Read()
	if _, reopened := cam.Read(); !reopened {
		t.Error("expected reopen attempt after limit")
	}
	if attempts != 2 {
		t.Errorf("expected 2 open attempts, got %d", attempts)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
