package detection

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DisasterSentry/client/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(true)
	os.Exit(m.Run())
}

type fakeCamera struct {
	frame Frame
	ok    bool
}

func (c *fakeCamera) CaptureFrame() (Frame, bool) { return c.frame, c.ok }
func (c *fakeCamera) Shutdown()                   {}

type fakeDetector struct {
	detections []Detection
}

func (d *fakeDetector) Detect(frame Frame) []Detection { return d.detections }
func (d *fakeDetector) Shutdown()                      {}

func newTestEngine(t *testing.T, camera Camera, detector Detector) *Engine {
	t.Helper()
	dir := t.TempDir()
	engine := NewEngine(camera, detector,
		[]string{"person", "cat", "dog"}, 0.5,
		filepath.Join(dir, "snapshots"),
		filepath.Join(dir, "detections.ndjson"))
	engine.newID = func() string { return "det-test" }
	engine.clock = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }
	return engine
}

func TestCycleFiltersAndCounts(t *testing.T) {
	detector := &fakeDetector{detections: []Detection{
		{Class: "person", Confidence: 0.91},
		{Class: "person", Confidence: 0.62},
		{Class: "cat", Confidence: 0.55},
		{Class: "person", Confidence: 0.31}, // below threshold
		{Class: "bird", Confidence: 0.99},   // untracked class
	}}
	engine := newTestEngine(t, &fakeCamera{frame: Frame("jpegbytes"), ok: true}, detector)

	record, ok := engine.Cycle()
	require.True(t, ok)
	require.NotNil(t, record)

	assert.Equal(t, "det-test", record.Id)
	assert.Equal(t, map[string]int{"person": 2, "cat": 1}, record.Counts)
	assert.Len(t, record.Detections, 3)

	// Snapshot carries the raw frame bytes
	require.NotEmpty(t, record.SnapshotPath)
	data, err := os.ReadFile(record.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
}

func TestCycleNothingRelevant(t *testing.T) {
	detector := &fakeDetector{detections: []Detection{
		{Class: "bird", Confidence: 0.9},
	}}
	engine := newTestEngine(t, &fakeCamera{frame: Frame("x"), ok: true}, detector)

	record, ok := engine.Cycle()
	assert.True(t, ok)
	assert.Nil(t, record)
}

func TestCycleCameraFailure(t *testing.T) {
	engine := newTestEngine(t, &fakeCamera{ok: false}, &fakeDetector{})

	record, ok := engine.Cycle()
	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestAppendWritesNDJSON(t *testing.T) {
	detector := &fakeDetector{detections: []Detection{{Class: "dog", Confidence: 0.8}}}
	engine := newTestEngine(t, &fakeCamera{frame: Frame("x"), ok: true}, detector)

	first, ok := engine.Cycle()
	require.True(t, ok)
	require.NoError(t, engine.Append(first))

	second, ok := engine.Cycle()
	require.True(t, ok)
	require.NoError(t, engine.Append(second))

	f, err := os.Open(engine.logPath)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}

	require.Len(t, records, 2)
	assert.Equal(t, map[string]int{"dog": 1}, records[0].Counts)
}

func TestStubBackends(t *testing.T) {
	camera, err := NewCamera(STUB)
	require.NoError(t, err)
	detector, err := NewDetector(STUB)
	require.NoError(t, err)

	frame, ok := camera.CaptureFrame()
	require.True(t, ok)
	assert.NotEmpty(t, frame)

	detections := detector.Detect(frame)
	require.NotEmpty(t, detections)
	assert.Equal(t, "person", detections[0].Class)

	_, err = NewCamera(BackendType(42))
	assert.Error(t, err)
}
