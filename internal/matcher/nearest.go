package matcher

import (
	"image"
	"math"
	"sync"

	"github.com/kozaktomas/facegate/internal/labels"
)

// Nearest is the dependency-free fallback recogniser: it keeps every training face and
// returns the label of the one with the smallest Euclidean pixel distance.
type Nearest struct {
	size   int
	mu     sync.RWMutex
	faces  [][]uint8
	labels []labels.Label
}

// NewNearest creates an untrained nearest-neighbour matcher for size x size faces.
func NewNearest(size int) *Nearest {
	return &Nearest{size: size}
}

func (n *Nearest) Kind() Kind { return KindNearest }

func (n *Nearest) Prepare(img image.Image) *image.Gray {
	return prepare(img, n.size)
}

func (n *Nearest) Train(faces []*image.Gray, lbls []labels.Label) error {
	if err := validateTrainingSet(faces, lbls, n.size); err != nil {
		return err
	}

	pixels := make([][]uint8, len(faces))
	for i, f := range faces {
		pixels[i] = grayPixels(f)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.faces = pixels
	n.labels = append([]labels.Label(nil), lbls...)
	return nil
}

func (n *Nearest) Predict(face *image.Gray) (Prediction, error) {
	if err := checkSize(face, n.size); err != nil {
		return Prediction{}, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.faces) == 0 {
		return Prediction{}, ErrNotTrained
	}

	probe := grayPixels(face)
	best := Prediction{Score: math.MaxFloat64}
	for i, f := range n.faces {
		if d := l2(probe, f); d < best.Score {
			best = Prediction{Label: n.labels[i], Score: d}
		}
	}
	return best, nil
}

// grayPixels returns the pixel rows of g without stride padding.
func grayPixels(g *image.Gray) []uint8 {
	b := g.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		out = append(out, g.Pix[off:off+b.Dx()]...)
	}
	return out
}

func l2(a, b []uint8) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
