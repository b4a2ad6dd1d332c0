package detection

import (
	"fmt"

	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

// Frame is one captured camera image in its encoded form. The pipeline never
// decodes it, snapshots are written byte for byte.
type Frame []byte

// Detection is a single classified object in a frame
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box,omitempty"`
}

// Camera delivers frames. A false return means no frame was available, the
// caller decides whether that is transient or fatal.
type Camera interface {
	CaptureFrame() (Frame, bool)
	Shutdown()
}

// Detector classifies objects in a frame. Model selection and inference
// details live behind this interface.
type Detector interface {
	Detect(frame Frame) []Detection
	Shutdown()
}

type BackendType int32

const (
	// STUB implementation
	STUB BackendType = -1
)

func (e BackendType) String() string {
	switch e {
	case STUB:
		return "StubImplementation"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

func NewCamera(backend BackendType) (Camera, error) {
	var camera Camera

	switch backend {
	case STUB:
		camera = &stubCamera{}
	default:
		return nil, fmt.Errorf("unknown camera backend %s", backend)
	}

	log.Info("camera backend selected", zap.String("name", backend.String()))

	return camera, nil
}

func NewDetector(backend BackendType) (Detector, error) {
	var detector Detector

	switch backend {
	case STUB:
		detector = &stubDetector{}
	default:
		return nil, fmt.Errorf("unknown detector backend %s", backend)
	}

	log.Info("detector backend selected", zap.String("name", backend.String()))

	return detector, nil
}
