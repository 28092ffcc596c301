package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Face is one detected face in source image coordinates.
type Face struct {
	Box   [4]float32 // x1, y1, x2, y2
	Score float32
}

func (f Face) area() float32 {
	return (f.Box[2] - f.Box[0]) * (f.Box[3] - f.Box[1])
}

const (
	retinaInputSize = 640
	anchorsPerCell  = 2
	nmsIoUThreshold = 0.4
)

// retinaHead describes one det_10g feature-map level. Output tensors carry no
// batch dimension: cells = (640/stride)^2 * 2.
type retinaHead struct {
	stride     int
	scoreName  string
	boxName    string
	landmkName string
}

var retinaHeads = []retinaHead{
	{stride: 8, scoreName: "448", boxName: "451", landmkName: "454"},
	{stride: 16, scoreName: "471", boxName: "474", landmkName: "477"},
	{stride: 32, scoreName: "494", boxName: "497", landmkName: "500"},
}

// retinaFace wraps the RetinaFace det_10g ONNX session. Not safe for
// concurrent use.
type retinaFace struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32]
	boxes     []*ort.Tensor[float32]
	landmarks []*ort.Tensor[float32] // bound to the session, never read
	threshold float32
}

func newRetinaFace(modelPath string, threshold float32, opts *ort.SessionOptions) (*retinaFace, error) {
	r := &retinaFace{threshold: threshold}

	var err error
	r.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, retinaInputSize, retinaInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var (
		names   []string
		outputs []ort.Value
	)
	groups := []struct {
		width int64
		name  func(retinaHead) string
		dst   *[]*ort.Tensor[float32]
	}{
		{1, func(h retinaHead) string { return h.scoreName }, &r.scores},
		{4, func(h retinaHead) string { return h.boxName }, &r.boxes},
		{10, func(h retinaHead) string { return h.landmkName }, &r.landmarks},
	}
	for _, g := range groups {
		for _, h := range retinaHeads {
			cells := int64((retinaInputSize / h.stride) * (retinaInputSize / h.stride) * anchorsPerCell)
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, g.width))
			if err != nil {
				r.close()
				return nil, fmt.Errorf("create output tensor %s: %w", g.name(h), err)
			}
			*g.dst = append(*g.dst, t)
			names = append(names, g.name(h))
			outputs = append(outputs, t)
		}
	}

	r.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		names,
		[]ort.Value{r.input},
		outputs,
		opts,
	)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return r, nil
}

// detect runs the model on a letterboxed CHW input. scale maps model
// coordinates back to the source image; w and h bound the result.
func (r *retinaFace) detect(chw []float32, scale float32, w, h int) ([]Face, error) {
	copy(r.input.GetData(), chw)

	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	var faces []Face
	for i, head := range retinaHeads {
		faces = r.decodeHead(faces, head, r.scores[i].GetData(), r.boxes[i].GetData(), scale, w, h)
	}
	return suppress(faces, nmsIoUThreshold), nil
}

// decodeHead converts anchor-relative distances at one stride into boxes.
func (r *retinaFace) decodeHead(dst []Face, head retinaHead, scores, boxes []float32, scale float32, w, h int) []Face {
	cellsPerRow := retinaInputSize / head.stride
	st := float32(head.stride)

	for idx, score := range scores {
		if score < r.threshold {
			continue
		}
		cell := idx / anchorsPerCell
		ax := float32(cell%cellsPerRow) * st
		ay := float32(cell/cellsPerRow) * st

		d := boxes[idx*4 : idx*4+4]
		dst = append(dst, Face{
			Box: [4]float32{
				clamp((ax-d[0]*st)*scale, 0, float32(w)),
				clamp((ay-d[1]*st)*scale, 0, float32(h)),
				clamp((ax+d[2]*st)*scale, 0, float32(w)),
				clamp((ay+d[3]*st)*scale, 0, float32(h)),
			},
			Score: score,
		})
	}
	return dst
}

func (r *retinaFace) close() {
	if r.session != nil {
		r.session.Destroy()
	}
	if r.input != nil {
		r.input.Destroy()
	}
	for _, t := range r.scores {
		t.Destroy()
	}
	for _, t := range r.boxes {
		t.Destroy()
	}
	for _, t := range r.landmarks {
		t.Destroy()
	}
}

// suppress applies non-maximum suppression and returns faces ordered by
// descending score, so the primary face is first.
func suppress(faces []Face, iouThreshold float32) []Face {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	kept := faces[:0:0]
	for _, f := range faces {
		overlaps := false
		for _, k := range kept {
			if iou(f, k) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, f)
		}
	}
	return kept
}

func iou(a, b Face) float32 {
	x1 := max(a.Box[0], b.Box[0])
	y1 := max(a.Box[1], b.Box[1])
	x2 := min(a.Box[2], b.Box[2])
	y2 := min(a.Box[3], b.Box[3])

	inter := max(0, x2-x1) * max(0, y2-y1)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
