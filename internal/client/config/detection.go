package config

import (
	"fmt"
	"time"
)

const (
	DefaultDetectionInterval   = 2 * time.Second
	DefaultConfidenceThreshold = 0.5
)

// DefaultDetectionClasses are the object classes an unconfigured device
// reports on
var DefaultDetectionClasses = []string{"person", "cat", "dog"}

// If you want to modify any field at run-time here, make sure to lock it using a mutex
type DetectionConfig struct {
	Interval            TOMLDuration `toml:"interval,omitempty" comment:"how often a detection cycle runs"`
	ConfidenceThreshold float64      `toml:"confidence_threshold,omitempty" comment:"detections below this score are discarded, range 0..1"`
	Classes             []string     `toml:"classes,omitempty" comment:"object classes that count towards an alert"`
	SnapshotDir         string       `toml:"snapshot_dir,omitempty"`
	LogPath             string       `toml:"log_path,omitempty" comment:"append-only detection record log"`
	CameraDevice        int          `toml:"camera_device"`
	Disabled            bool         `toml:"disabled"`
}

type DetectionConfigManager struct {
	BaseConfigManager[DetectionConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on
func (a *DetectionConfigManager) Verify() error {
	if a.conf.ConfidenceThreshold < 0 || a.conf.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside 0..1", a.conf.ConfidenceThreshold)
	}

	if a.conf.ConfidenceThreshold == 0 {
		a.conf.ConfidenceThreshold = DefaultConfidenceThreshold
	}

	if a.conf.Interval.Value() <= 0 {
		a.conf.Interval = TOMLDuration(DefaultDetectionInterval)
	}

	if len(a.conf.Classes) == 0 {
		a.conf.Classes = DefaultDetectionClasses
	}

	if a.conf.SnapshotDir == "" {
		a.conf.SnapshotDir = DefaultSnapshotDir
	}

	if a.conf.LogPath == "" {
		a.conf.LogPath = DefaultDetectionDir + "detections.ndjson"
	}

	return nil
}

func NewDetectionConfigManager(config *DetectionConfig, mgr *Manager) *DetectionConfigManager {
	j := DetectionConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}
