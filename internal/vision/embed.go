package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// ArcFace w600k_r50 geometry.
const (
	arcFaceInputSize = 112
	EmbeddingDim     = 512
)

// arcFace wraps the ArcFace ONNX session. It is not safe for concurrent use;
// Provider serializes access.
type arcFace struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newArcFace(modelPath string, opts *ort.SessionOptions) (*arcFace, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, arcFaceInputSize, arcFaceInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &arcFace{session: session, input: input, output: output}, nil
}

// embed runs the model on a CHW face crop and returns an L2-normalised vector.
func (a *arcFace) embed(chw []float32) ([]float32, error) {
	copy(a.input.GetData(), chw)

	if err := a.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	vec := make([]float32, EmbeddingDim)
	copy(vec, a.output.GetData())
	l2Normalize(vec)
	return vec, nil
}

func (a *arcFace) close() {
	if a.session != nil {
		a.session.Destroy()
	}
	if a.input != nil {
		a.input.Destroy()
	}
	if a.output != nil {
		a.output.Destroy()
	}
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
