package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
)

var (
	// ErrInvalidImage means the payload could not be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrNoFaceFound means the image decoded but contains no detectable face.
	ErrNoFaceFound = errors.New("no face found")
)

// FaceEmbedder turns image bytes into the embedding of the primary face.
type FaceEmbedder interface {
	Embed(ctx context.Context, data []byte) ([]float32, error)
}

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// InitRuntime loads the ONNX Runtime shared library. An empty libPath picks
// the platform default name.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

// DestroyRuntime releases the ONNX Runtime environment.
func DestroyRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("destroy onnx runtime", "error", err)
	}
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Provider embeds faces with RetinaFace detection followed by ArcFace.
// ONNX sessions own shared tensors, so inference is serialized; decoding and
// resizing run outside the lock.
type Provider struct {
	mu       sync.Mutex
	detector *retinaFace
	embedder *arcFace
}

// NewProvider loads both models from cfg.ModelsDir. InitRuntime must have
// succeeded first.
func NewProvider(cfg config.VisionConfig) (*Provider, error) {
	detPath := filepath.Join(cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(cfg.ModelsDir, embedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := newRetinaFace(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newArcFace(embPath, nil)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Provider{detector: det, embedder: emb}, nil
}

// Embed returns the embedding of the highest-scoring face in data.
// It returns ErrInvalidImage for undecodable input and ErrNoFaceFound when
// the detector finds nothing.
func (p *Provider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	start := time.Now()
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	canvas, scale := letterbox(img, retinaInputSize)
	detInput := toCHW(canvas, detectorNorm)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	start = time.Now()
	p.mu.Lock()
	faces, err := p.detector.detect(detInput, scale, b.Dx(), b.Dy())
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	if len(faces) == 0 {
		return nil, ErrNoFaceFound
	}

	crop := cropFace(img, faces[0].Box, arcFaceInputSize)
	if crop == nil {
		return nil, ErrNoFaceFound
	}
	embInput := toCHW(crop, embedderNorm)

	start = time.Now()
	p.mu.Lock()
	vec, err := p.embedder.embed(embInput)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return vec, nil
}

// Close releases both ONNX sessions.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector != nil {
		p.detector.close()
	}
	if p.embedder != nil {
		p.embedder.close()
	}
}
