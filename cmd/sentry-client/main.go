package main

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/DisasterSentry/client/internal/client"
	"github.com/DisasterSentry/client/internal/client/api/helpers"
	jwt "github.com/DisasterSentry/client/internal/client/api/jwt/misc"
	"github.com/DisasterSentry/client/internal/client/handler"
	"github.com/DisasterSentry/client/pkg/log"
)

// verifyServiceHealth is designed to handle common faults with the service,
// it returns false if client termination is required and true if the error is
// recoverable
func verifyServiceHealth(app *client.App, e error) bool {
	// Terminate the client if the refresh token is invalid
	if e == jwt.ErrRefreshTokenInvalid {
		return false
	}

	// Check if its an API related Error
	if urlErr, ok := e.(*url.Error); ok {
		// Grab the underlying error
		err := urlErr.Err

		// Check for "deal-breaker" errors
		if certerror, ok := err.(x509.UnknownAuthorityError); ok {
			log.Error("self signed certificate used without proper root_certificate entry, exiting", zap.Error(certerror))
			return false
		} else if certerror, ok := err.(x509.HostnameError); ok {
			log.Error("certificate hostname error, exiting", zap.Error(certerror))
			return false
		} else if certerror, ok := err.(x509.CertificateInvalidError); ok {
			log.Error("the encountered certificate was deemed invalid", zap.Error(certerror))
			return false
		}
	}

	// Check if its an api response error
	if respErr, ok := e.(*helpers.ResponseError); ok {
		switch respErr.Code {
		// This is the only "permanent" error
		case http.StatusUnauthorized:
			log.Error("api denied our authentication, unlikely to change, exiting", zap.Error(respErr))
			return false
		// Everything else will fix itself if we keep running
		default:
			log.Error("(temporary) server error encountered, continuing", zap.Error(respErr))
			return true
		}
	}

	// If we did not match anything so far, try to check network connectivity
	if app.NetworkService != nil && !app.NetworkService.HasConnectivity() {
		log.Error("no network connectivity, keeping local operation only")
		return true
	}

	log.Debug("service state is looking fine, continuing")
	return true
}

func main() {
	app, err := client.Setup(false)
	if err != nil || app == nil {
		fmt.Printf("Initialization failed, error: %s\n", err)
		return // Exit
	}

	// Register the command handler
	cmdHandler, err := handler.NewCommandHandler(app)
	if err != nil {
		log.Fatal("Could not start command handler, aborting", zap.Error(err))
		return
	}

	detectionTicker := time.NewTicker(app.Conf.Detection().C().Interval.Value())
	healthTicker := time.NewTicker(app.Conf.System().C().HealthInterval.Value())
	syncTicker := time.NewTicker(app.Conf.Sync().C().StatusInterval.Value())

	// The nil channel never fires when telemetry is disabled
	var telemetryTicker *time.Ticker
	var telemetryCh <-chan time.Time
	if app.Telemetry != nil {
		telemetryTicker = time.NewTicker(app.Conf.System().C().Telemetry.Interval.Value())
		telemetryCh = telemetryTicker.C
	}

	app.WG.Add(1)

	EXIT_CODE := 0

	// Attention: "tick shifts"
	// If the execution takes more time, consequent runs are delayed.
	go func() {
		TerminateLoop := func() {
			detectionTicker.Stop()
			healthTicker.Stop()
			syncTicker.Stop()
			if telemetryTicker != nil {
				telemetryTicker.Stop()
			}
			app.WG.Done()
		}

		// Initial check-in, tells the server we are alive
		err = cmdHandler.Checkin()
		if err != nil {
			log.Warn("initial check-in failed, verifying service health")

			if !verifyServiceHealth(app, err) {
				// Critical fault, set EXIT_CODE = 1 and let systemd restart us
				EXIT_CODE = 1
				TerminateLoop()
				return
			}
		}

		log.Info("initial check-in completed, starting the watch")

		for {
			select {
			case <-detectionTicker.C:
				cmdHandler.DetectionTick()

			case <-healthTicker.C:
				if !cmdHandler.HealthTick() {
					EXIT_CODE = 1
					TerminateLoop()
					return
				}

			case <-syncTicker.C:
				// Try to check-in with the server
				err = cmdHandler.Checkin()
				if err != nil {
					// Terminate if the troubleshooter found some problem
					if !verifyServiceHealth(app, err) {
						EXIT_CODE = 1
						TerminateLoop()
						return
					}

					continue
				}

				// Poll and execute pending remote commands
				cmdHandler.Tick()

			case <-telemetryCh:
				if err := app.Telemetry.Publish(cmdHandler.BuildStatus()); err != nil {
					log.Warn("telemetry heartbeat failed", zap.Error(err))
				}

			case <-app.ReloadSignal:
				log.Info("reload signal received")

			case <-app.ExitSignal:
				log.Info("exit signal received - shutting down tasks and routines")
				TerminateLoop()
				return
			}
		}
	}()

	// Wait until everything terminates
	app.WG.Wait()

	log.Info("pending tasks and routines terminated")

	// Shutdown everything
	app.Shutdown()

	// Final greetings :)
	log.Info("stopped watching the field!")

	// Exit with the proper code
	os.Exit(EXIT_CODE)
}
