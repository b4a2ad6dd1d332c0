package detection

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/DisasterSentry/client/internal/modem"
	"github.com/DisasterSentry/client/pkg/file"
	"github.com/DisasterSentry/client/pkg/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is the durable result of one detection cycle
type Record struct {
	Id           string         `json:"id"`
	Time         time.Time      `json:"time"`
	Counts       map[string]int `json:"counts"`
	Detections   []Detection    `json:"detections"`
	Fix          *modem.Fix     `json:"fix,omitempty"`
	SnapshotPath string         `json:"snapshot_path,omitempty"`
}

// Engine runs the capture/classify/filter pipeline and persists what it
// finds. GPS and alerting stay with the caller, the engine only produces
// records.
type Engine struct {
	camera   Camera
	detector Detector

	classes   map[string]struct{}
	threshold float64

	snapshotDir string
	logPath     string

	// overridable for tests
	clock func() time.Time
	newID func() string
}

func NewEngine(camera Camera, detector Detector, classes []string, threshold float64, snapshotDir string, logPath string) *Engine {
	classSet := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		classSet[class] = struct{}{}
	}

	return &Engine{
		camera:      camera,
		detector:    detector,
		classes:     classSet,
		threshold:   threshold,
		snapshotDir: snapshotDir,
		logPath:     logPath,
		clock:       time.Now,
		newID:       uuid.NewString,
	}
}

// Cycle captures one frame and classifies it. The bool mirrors the camera
// state: false means no frame was delivered. A nil record with true means
// nothing relevant was in view.
func (e *Engine) Cycle() (*Record, bool) {
	frame, ok := e.camera.CaptureFrame()
	if !ok {
		log.Warn("camera delivered no frame")
		return nil, false
	}

	var relevant []Detection
	for _, det := range e.detector.Detect(frame) {
		if det.Confidence < e.threshold {
			continue
		}
		if _, tracked := e.classes[det.Class]; !tracked {
			continue
		}
		relevant = append(relevant, det)
	}

	if len(relevant) == 0 {
		return nil, true
	}

	counts := make(map[string]int)
	for _, det := range relevant {
		counts[det.Class]++
	}

	record := &Record{
		Id:         e.newID(),
		Time:       e.clock(),
		Counts:     counts,
		Detections: relevant,
	}

	record.SnapshotPath = e.writeSnapshot(record.Id, frame)

	log.Info("detection cycle hit",
		zap.String("id", record.Id),
		zap.Any("counts", counts))

	return record, true
}

// Append persists the finished record to the NDJSON log, one object per
// line. Called after the caller attached the GPS fix.
func (e *Engine) Append(record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return file.AppendLine(e.logPath, data)
}

// writeSnapshot stores the frame next to the detection log, best effort
func (e *Engine) writeSnapshot(id string, frame Frame) string {
	if e.snapshotDir == "" {
		return ""
	}

	path := filepath.Join(e.snapshotDir, id+".jpg")
	f, err := file.CreateFileP(path, 0750)
	if err != nil {
		log.Error("failed creating snapshot file", zap.String("path", path), zap.Error(err))
		return ""
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if _, err := f.Write(frame); err != nil {
		log.Error("failed writing snapshot", zap.String("path", path), zap.Error(err))
		return ""
	}

	return path
}

// Shutdown releases both backends
func (e *Engine) Shutdown() {
	e.camera.Shutdown()
	e.detector.Shutdown()
}
