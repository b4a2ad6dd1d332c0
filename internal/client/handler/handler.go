package handler

// This defines a generic handler that manages remote commands and the
// periodic device duties around them

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DisasterSentry/client/internal/client"
	"github.com/DisasterSentry/client/internal/client/api"
	"github.com/DisasterSentry/client/pkg/file"
	"github.com/DisasterSentry/client/pkg/log"
)

type CommandHandler struct {
	sync.RWMutex
	app *client.App

	// consecutive detection cycles without a frame, reset on success
	cameraFailures  int
	restartAttempts int
}

func NewCommandHandler(app *client.App) (*CommandHandler, error) {
	if app == nil {
		return nil, errors.New("no app instance supplied")
	}

	return &CommandHandler{app: app}, nil
}

// Checkin performs a status report with the server
func (h *CommandHandler) Checkin() error {
	if h.app.Api == nil {
		return nil
	}

	return h.app.Api.PutDeviceStatus(h.BuildStatus())
}

func verifyBasicCommandFacts(cmd api.RemoteCommand) bool {
	if len(cmd.Name) == 0 || len(cmd.Id) == 0 {
		log.Error("empty command name/id not permitted", zap.String("command", cmd.Json()))
		return false
	}

	return true
}

// Tick polls the server for pending commands and executes them in order
func (h *CommandHandler) Tick() error {
	if h.app.Api == nil {
		return nil
	}

	log.Debug("Polling commands.")
	commands, err := h.app.Api.GetCommands()
	if err != nil {
		log.Error("Failed to fetch commands, sitting this one out")
		return err
	}

	for _, cmd := range commands {
		if !verifyBasicCommandFacts(cmd) {
			go h.app.Api.PutCommandUpdate(cmd.Id, "failed")
			continue
		}

		h.runCommand(cmd)
	}

	return nil
}

func (h *CommandHandler) runCommand(cmd api.RemoteCommand) {
	name := strings.ToLower(cmd.Name)

	runningErr := h.app.Api.PutCommandUpdate(cmd.Id, "running")
	log.Info("command starting", zap.String("name", name), zap.String("id", cmd.Id), zap.Time("issuedAt", cmd.IssuedAt))

	var err error
	if strings.Contains("get_status, push_status, report_status", name) {
		err = h.Checkin()
	} else if strings.Contains("send_test_sms, test_sms", name) {
		err = h.sendTestSMS(cmd)
	} else if strings.Contains("export_logs, get_logs", name) {
		err = h.exportLogs(cmd)
	} else if strings.Contains("delete_sms", name) {
		err = h.deleteSMS(cmd)
	} else {
		err = fmt.Errorf("unsupported command was sent to the client")
	}

	verb := "finished"
	if err != nil {
		verb = "failed"
	}

	submitErr := h.app.Api.PutCommandUpdate(cmd.Id, verb)
	log.Info("command result change", zap.String("name", name),
		zap.NamedError("setRunningError", runningErr),
		zap.NamedError("executionError", err),
		zap.String("finalState", verb),
		zap.NamedError("submitError", submitErr))
}

func (h *CommandHandler) sendTestSMS(cmd api.RemoteCommand) error {
	if h.app.SMS == nil {
		return errors.New("modem is disabled on this device")
	}

	number := cmd.Arguments["number"]
	if number == "" {
		contacts := h.app.Conf.EmergencyContacts()
		if len(contacts) == 0 {
			return errors.New("no target number supplied and no emergency contacts configured")
		}
		number = contacts[0]
	}

	body := cmd.Arguments["message"]
	if body == "" {
		body = "Test message from " + h.app.Conf.DeviceName()
	}

	if !h.app.SMS.SendMessage(number, body, h.app.Conf.Modem().C().SendAttempts) {
		return fmt.Errorf("test sms to %s failed: %s", number, h.app.SMS.Stats().LastError)
	}

	return nil
}

// exportLogs zips the detection log plus all snapshots and uploads the archive
func (h *CommandHandler) exportLogs(cmd api.RemoteCommand) error {
	detConf := h.app.Conf.Detection().C()

	filesToAdd := make([]string, 0, 8)
	if file.Exists(detConf.LogPath) == nil {
		filesToAdd = append(filesToAdd, detConf.LogPath)
	}

	entries, err := os.ReadDir(detConf.SnapshotDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			filesToAdd = append(filesToAdd, filepath.Join(detConf.SnapshotDir, entry.Name()))
		}
	}

	if len(filesToAdd) == 0 {
		return errors.New("nothing to export yet")
	}

	archivePath := filepath.Join(os.TempDir(), "export_"+cmd.Id+".zip")
	if err = file.CreateArchive(archivePath, filesToAdd); err != nil {
		log.Error("Error creating export archive: " + err.Error())
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), api.SnapshotUploadTimeout)
	defer cancel()

	err = h.app.Api.PostExport(ctx, cmd.Id, archivePath)
	if err != nil {
		log.Error("Uploading did not work!" + err.Error())
		return err
	}

	return os.Remove(archivePath)
}

func (h *CommandHandler) deleteSMS(cmd api.RemoteCommand) error {
	if h.app.SMS == nil {
		return errors.New("modem is disabled on this device")
	}

	index := cmd.Arguments["index"]
	if index == "" {
		index = "ALL"
	}

	if !h.app.SMS.DeleteMessage(index) {
		return fmt.Errorf("deleting stored message(s) %q failed", index)
	}

	return nil
}
