// Package matcher decides whether a probe embedding belongs to a known face.
package matcher

import (
	"context"
	"fmt"
	"math"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// Labels returned to clients when no identity is accepted.
const (
	LabelUnknown = "Unknown"
	LabelNoFace  = "No face detected"
)

// DefaultThreshold is the maximum accepted Euclidean distance (exclusive).
const DefaultThreshold = 0.6

// Neighbor is the nearest gallery entry to a probe.
type Neighbor struct {
	Entry    models.GalleryEntry
	Distance float64
}

// Index finds the nearest known face. Implementations must break distance
// ties by scan order, first entry wins. ok is false for an empty index.
type Index interface {
	Nearest(ctx context.Context, probe []float32) (n Neighbor, ok bool, err error)
}

// Result is the outcome of one match.
type Result struct {
	Matched    bool
	Name       string  // gallery name when Matched, LabelUnknown otherwise
	Distance   float64 // nearest distance, 0 when the index is empty
	Confidence float64 // percent, only meaningful when Matched
	HasNearest bool
}

// Matcher applies the acceptance threshold to an Index.
type Matcher struct {
	index     Index
	threshold float64
}

// New creates a Matcher. A non-positive threshold selects DefaultThreshold.
func New(index Index, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{index: index, threshold: threshold}
}

// Threshold returns the acceptance threshold in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match accepts the nearest entry iff its distance is strictly below the
// threshold.
func (m *Matcher) Match(ctx context.Context, probe []float32) (Result, error) {
	n, ok, err := m.index.Nearest(ctx, probe)
	if err != nil {
		return Result{}, fmt.Errorf("nearest neighbour: %w", err)
	}
	if !ok {
		return Result{Name: LabelUnknown}, nil
	}

	res := Result{Name: LabelUnknown, Distance: n.Distance, HasNearest: true}
	if n.Distance < m.threshold {
		res.Matched = true
		res.Name = n.Entry.Name
		res.Confidence = Confidence(n.Distance)
	}
	return res, nil
}

// Confidence converts a distance to a percentage, (1-d)*100 rounded to two
// decimals. It is not clamped.
func Confidence(distance float64) float64 {
	return math.Round((1-distance)*100*100) / 100
}

// FormatConfidence renders a confidence the way clients expect, e.g. "87.23%".
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", c)
}

// EuclideanDistance returns the L2 distance between a and b. Vectors of
// different length are compared over the shorter one and the surplus
// components of the longer one count in full.
func EuclideanDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	for _, v := range a[n:] {
		sum += float64(v) * float64(v)
	}
	for _, v := range b[n:] {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Scan is the linear nearest-neighbour search over entries in slice order.
func Scan(entries []models.GalleryEntry, probe []float32) (Neighbor, bool) {
	if len(entries) == 0 {
		return Neighbor{}, false
	}
	best := Neighbor{Entry: entries[0], Distance: EuclideanDistance(probe, entries[0].Embedding)}
	for _, e := range entries[1:] {
		if d := EuclideanDistance(probe, e.Embedding); d < best.Distance {
			best = Neighbor{Entry: e, Distance: d}
		}
	}
	return best, true
}
