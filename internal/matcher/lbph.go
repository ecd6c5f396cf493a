package matcher

import (
	"image"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facegate/internal/labels"
)

// LBPH parameters: radius 1 with 8 neighbours over an 8x8 cell grid.
const (
	lbphGridX     = 8
	lbphGridY     = 8
	lbphBins      = 256
	lbphNeighbors = 16 // HNSW M parameter
	lbphEfSearch  = 64
	lbphRescoreK  = 16 // candidates re-scored exactly after graph search
)

// LBPH recognises faces by comparing spatial histograms of local binary patterns.
// Training histograms are indexed in an HNSW graph; the top candidates returned by
// the graph are re-scored with the exact chi-square distance before picking a label.
type LBPH struct {
	size   int
	mu     sync.RWMutex
	graph  *hnsw.Graph[int]
	labels []labels.Label
}

// NewLBPH creates an untrained LBPH matcher for size x size faces.
func NewLBPH(size int) *LBPH {
	return &LBPH{size: size}
}

func (l *LBPH) Kind() Kind { return KindLBPH }

func (l *LBPH) Prepare(img image.Image) *image.Gray {
	return prepare(img, l.size)
}

func (l *LBPH) Train(faces []*image.Gray, lbls []labels.Label) error {
	if err := validateTrainingSet(faces, lbls, l.size); err != nil {
		return err
	}

	g := hnsw.NewGraph[int]()
	g.M = lbphNeighbors
	g.Ml = 1.0 / float64(lbphNeighbors)
	g.EfSearch = lbphEfSearch
	g.Distance = chiSquare

	for i, f := range faces {
		g.Add(hnsw.MakeNode(i, Histogram(f)))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.graph = g
	l.labels = append([]labels.Label(nil), lbls...)
	return nil
}

func (l *LBPH) Predict(face *image.Gray) (Prediction, error) {
	if err := checkSize(face, l.size); err != nil {
		return Prediction{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.graph == nil || l.graph.Len() == 0 {
		return Prediction{}, ErrNotTrained
	}

	query := Histogram(face)
	k := min(lbphRescoreK, l.graph.Len())

	best := Prediction{Score: math.MaxFloat64}
	bestKey := -1
	for _, n := range l.graph.Search(query, k) {
		d := float64(chiSquare(query, n.Value))
		// Ties go to the earliest training sample so results do not depend on graph order.
		if d < best.Score || (d == best.Score && n.Key < bestKey) {
			best = Prediction{Label: l.labels[n.Key], Score: d}
			bestKey = n.Key
		}
	}
	if bestKey < 0 {
		return Prediction{}, ErrNotTrained
	}
	return best, nil
}

// Histogram computes the concatenated, per-cell normalised LBP histograms of g.
func Histogram(g *image.Gray) []float32 {
	b := g.Bounds()
	w, h := b.Dx()-2, b.Dy()-2
	hist := make([]float32, lbphGridX*lbphGridY*lbphBins)
	if w <= 0 || h <= 0 {
		return hist
	}

	cellW, cellH := w/lbphGridX, h/lbphGridY
	if cellW == 0 || cellH == 0 {
		return hist
	}

	at := func(x, y int) uint8 { return g.Pix[g.PixOffset(b.Min.X+x, b.Min.Y+y)] }

	for cy := range lbphGridY {
		for cx := range lbphGridX {
			cell := hist[(cy*lbphGridX+cx)*lbphBins : (cy*lbphGridX+cx+1)*lbphBins]
			for y := cy * cellH; y < (cy+1)*cellH; y++ {
				for x := cx * cellW; x < (cx+1)*cellW; x++ {
					cell[lbpCode(at, x+1, y+1)]++
				}
			}
			n := float32(cellW * cellH)
			for i := range cell {
				cell[i] /= n
			}
		}
	}
	return hist
}

// lbpCode compares the 8 neighbours of (x, y) clockwise from the top-left against the centre.
func lbpCode(at func(x, y int) uint8, x, y int) uint8 {
	c := at(x, y)
	var code uint8
	neighbours := [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}}
	for i, d := range neighbours {
		if at(x+d[0], y+d[1]) >= c {
			code |= 1 << (7 - i)
		}
	}
	return code
}

// chiSquare is the symmetric chi-square distance 2 * sum((a-b)^2 / (a+b)).
func chiSquare(a, b []float32) float32 {
	var sum float32
	for i := range a {
		s := a[i] + b[i]
		if s <= 0 {
			continue
		}
		d := a[i] - b[i]
		sum += d * d / s
	}
	return 2 * sum
}
