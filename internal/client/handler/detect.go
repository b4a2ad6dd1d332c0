package handler

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/DisasterSentry/client/internal/client/api"
	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/internal/detection"
	"github.com/DisasterSentry/client/pkg/log"
)

// DetectionTick runs one capture/classify cycle and everything that hangs off
// a positive result: the fix lookup, the durable record, the alert fan-out and
// the cloud upload.
func (h *CommandHandler) DetectionTick() {
	app := h.app
	if app.Engine == nil {
		return
	}

	record, frameOk := app.Engine.Cycle()
	if !frameOk {
		h.Lock()
		h.cameraFailures++
		h.Unlock()
		return
	}

	h.Lock()
	h.cameraFailures = 0
	h.Unlock()

	// Nothing relevant in view
	if record == nil {
		return
	}

	if app.GPS != nil {
		record.Fix = app.GPS.Coordinates(app.Conf.Modem().C().GpsFixAttempts)
	}

	if err := app.Engine.Append(record); err != nil {
		log.Error("could not append detection record", zap.String("id", record.Id), zap.Error(err))
	}

	log.Info("detection", zap.String("id", record.Id), zap.Any("counts", record.Counts), zap.Bool("hasFix", record.Fix != nil))

	if app.Alerts != nil {
		app.Alerts.Dispatch(record, h.alertSite())
	}

	h.uploadDetection(record)
}

// alertSite returns the primary evacuation site, nil when none is configured
func (h *CommandHandler) alertSite() *config.EvacuationSite {
	sites := h.app.Conf.Sites().C().Sites
	if len(sites) == 0 {
		return nil
	}

	return &sites[0]
}

// uploadDetection pushes the record and its snapshot to the server without
// blocking the detection loop
func (h *CommandHandler) uploadDetection(record *detection.Record) {
	app := h.app
	if app.Api == nil {
		return
	}

	if app.Conf.System().C().NetworkCheck &&
		app.NetworkService != nil && !app.NetworkService.HasConnectivity() {
		log.Debug("skipping detection upload, no connectivity", zap.String("id", record.Id))
		return
	}

	upload := api.DetectionUpload{
		Id:         record.Id,
		Time:       record.Time.Unix(),
		Counts:     record.Counts,
		Detections: make([]api.DetectionEntry, 0, len(record.Detections)),
	}

	for _, det := range record.Detections {
		upload.Detections = append(upload.Detections, api.DetectionEntry{
			Class:      det.Class,
			Confidence: det.Confidence,
		})
	}

	if record.Fix != nil {
		upload.LocationLat = &record.Fix.Latitude
		upload.LocationLon = &record.Fix.Longitude
	}

	if record.SnapshotPath != "" {
		upload.SnapshotName = filepath.Base(record.SnapshotPath)
	}

	app.WG.Add(1)
	go func() {
		defer app.WG.Done()

		if err := app.Api.PostDetection(upload); err != nil {
			log.Error("detection upload failed", zap.String("id", record.Id), zap.Error(err))
			return
		}

		if record.SnapshotPath == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), api.SnapshotUploadTimeout)
		defer cancel()

		if err := app.Api.PostSnapshot(ctx, record.Id, record.SnapshotPath); err != nil {
			log.Error("snapshot upload failed", zap.String("id", record.Id), zap.Error(err))
		}
	}()
}
