package api

import (
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	h "github.com/DisasterSentry/client/internal/client/api/helpers"
	"github.com/DisasterSentry/client/internal/client/api/jwt"
	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/pkg/log"

	"github.com/imroc/req/v3"
)

type RestAPI struct {
	client *req.Client

	jwt *jwt.JwtHandler

	// Store these for later usage
	conf     *config.Manager
	cm       *config.SyncConfigManager
	clientCM *config.ClientConfigManager
}

func NewRestAPI(conf *config.Manager, debug bool) (*RestAPI, error) {
	a := RestAPI{}
	a.conf = conf

	a.cm = conf.Sync()
	a.clientCM = conf.Client()

	//set up the connection
	a.client = req.C()

	if debug {
		a.client.EnableDebugLog()
	}

	// Get a copy of the sync config
	syncConf := a.cm.C()

	// Set up the api base-url
	a.client.SetBaseURL(syncConf.Url)

	// Set up the certificate and authentication
	rootCert := syncConf.RootCertificate
	if len(rootCert) > 0 {
		a.client.SetRootCertsFromFile(rootCert)
	}

	if syncConf.Auth.Bearer != nil {
		// Verify that the refresh token is valid
		if err := jwt.Validate(syncConf.Auth.Bearer.Refresh); err != nil {
			log.Error("refresh token validation failed", zap.NamedError("reason", err))
			return nil, fmt.Errorf("trying to use bearer authentication with invalid refresh token")
		}

		log.Info("using bearer authorization")

		// Set up the handler and its hooks
		var err error
		a.jwt, err = jwt.NewJWTHandler(a.cm, a.client)
		if err != nil {
			return nil, err
		}
	} else if syncConf.Auth.Basic != nil {
		username, password := syncConf.Auth.Basic.Credentials()
		log.Info("using basic auth mechanism", zap.String("username", username))
		a.client.SetCommonBasicAuth(username, password)
	} else {
		log.Warn("no/invalid api authentication scheme specified")
	}

	if syncConf.AllowInsecure {
		// Skip TLS verification upon request
		a.client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

		log.Warn("!WARNING WARNING WARNING! DISABLED TLS CERTIFICATE VERIFICATION! !WARNING WARNING WARNING!")
	}

	// Some connection configurations
	a.client.SetTimeout(RequestTimeout)
	a.client.SetCommonRetryCount(MaxRetries)
	a.client.SetCommonRetryBackoffInterval(RequestRetryMinWaitTime, RequestRetryMaxWaitTime)

	return &a, nil
}

func (a *RestAPI) GetBaseURL() string {
	if a.client == nil {
		log.Panic("no client, cant get base url")
	}

	return a.client.BaseURL
}

// GetClient Use this for tests to set the transport to mock
func (a *RestAPI) GetClient() *req.Client {
	return a.client
}

// PutDeviceStatus reports the periodic health snapshot
func (r *RestAPI) PutDeviceStatus(status DeviceStatus) error {
	resp, err := r.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(status).
		Put("devices/update/" + r.clientCM.C().DeviceName)

	return h.ErrorFromResponse(err, resp)
}

// PostDetection uploads the result of one detection cycle
func (r *RestAPI) PostDetection(upload DetectionUpload) error {
	resp, err := r.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(upload).
		Post("detections/" + r.clientCM.C().DeviceName)

	return h.ErrorFromResponse(err, resp)
}

// GetCommands fetches pending remote commands for this device
func (r *RestAPI) GetCommands() ([]RemoteCommand, error) {
	respCont := RemoteCommandResponse{}
	resp, err := r.client.R().
		SetHeader("Accept", "application/json").
		SetSuccessResult(&respCont).
		Get("commands/" + r.clientCM.C().DeviceName)

	if err != nil {
		return []RemoteCommand{}, err
	}

	return respCont.Data, h.ErrorFromResponse(nil, resp)
}

// PutCommandUpdate acknowledges a remote command
func (r *RestAPI) PutCommandUpdate(commandID string, status string) error {
	if !(strings.HasPrefix(status, "running") ||
		strings.HasPrefix(status, "finished") ||
		strings.HasPrefix(status, "failed")) {
		return errors.New("status has to start with 'running', 'finished' or 'failed'")
	}
	resp, err := r.client.R().
		Put("commands/" + r.clientCM.C().DeviceName + "?command_id=" + commandID + "&status=" + status)

	return h.ErrorFromResponse(err, resp)
}

// PostSnapshot uploads one detection snapshot image. The server compares the
// md5 so a truncated upload over a flaky LTE link is rejected.
func (r *RestAPI) PostSnapshot(ctx context.Context, detectionID string, filePath string) error {
	sum, err := fileMD5(filePath)
	if err != nil {
		log.Error("failed hashing snapshot", zap.String("file", filePath), zap.Error(err))
		return err
	}

	r.client.SetTimeout(SnapshotUploadTimeout)
	defer r.client.SetTimeout(RequestTimeout)

	resp, err := r.client.R().
		SetContext(ctx). // Set the context so we can abort
		SetFile("in_file", filePath).
		EnableForceChunkedEncoding().
		SetUploadCallbackWithInterval(func(info req.UploadInfo) {
			log.Info("snapshot upload progress",
				zap.String("file", info.FileName),
				zap.Float64("pct", float64(info.UploadedSize)/float64(info.FileSize)*100.0))
		}, uploadProgressInterval).
		Post("snapshots/" + r.clientCM.C().DeviceName + "/" + detectionID + "?name=" + filepath.Base(filePath) + "&md5=" + sum)

	return h.ErrorFromResponse(err, resp)
}

// PostExport uploads an archive produced by a remote command
func (r *RestAPI) PostExport(ctx context.Context, commandID string, filePath string) error {
	sum, err := fileMD5(filePath)
	if err != nil {
		log.Error("failed hashing export", zap.String("file", filePath), zap.Error(err))
		return err
	}

	r.client.SetTimeout(SnapshotUploadTimeout)
	defer r.client.SetTimeout(RequestTimeout)

	resp, err := r.client.R().
		SetContext(ctx).
		SetFile("in_file", filePath).
		EnableForceChunkedEncoding().
		Post("exports/" + r.clientCM.C().DeviceName + "/" + commandID + "?name=" + filepath.Base(filePath) + "&md5=" + sum)

	return h.ErrorFromResponse(err, resp)
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
