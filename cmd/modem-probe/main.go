package main

// Field diagnostic for the modem wiring. Run it on the bench before a
// deployment to confirm the serial port, the SIM and the GPS antenna.

import (
	"flag"

	"go.uber.org/zap"

	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/internal/modem"
	"github.com/DisasterSentry/client/pkg/log"
)

func main() {
	device := flag.String("device", config.DefaultModemDevice, "serial device of the modem AT port")
	baudRate := flag.Int("baud", config.DefaultModemBaudRate, "serial baud rate")
	fixAttempts := flag.Int("fix-attempts", 3, "how often to retry the position query")
	withSms := flag.Bool("sms", true, "also probe the sms subsystem")
	flag.Parse()

	log.Init(true)

	channel := modem.NewChannel(modem.NewSerialDialer(*device, *baudRate))
	if !channel.Connect() {
		log.Fatal("modem did not respond on the given device", zap.String("device", *device))
	}
	defer channel.Close()

	log.Info("modem channel is up", zap.String("device", *device), zap.Int("baud", *baudRate))

	gps := modem.NewGPS(channel)
	if !gps.Enable() {
		log.Warn("gps could not be enabled")
	} else {
		log.Info("gps status", zap.Any("status", gps.Status()))

		for _, line := range gps.SatelliteInfo() {
			log.Info("satellite", zap.String("line", line))
		}

		if fix := gps.Coordinates(*fixAttempts); fix != nil {
			log.Info("position fix",
				zap.Float64("lat", fix.Latitude),
				zap.Float64("lon", fix.Longitude),
				zap.String("maps", fix.MapsLink()))
		} else {
			log.Warn("no position fix, check the antenna and sky view")
		}
	}

	if *withSms {
		sms := modem.NewSMS(channel)
		if !sms.Initialize() {
			log.Warn("sms subsystem did not initialize, check the SIM and registration")
		} else {
			log.Info("sms status", zap.Any("status", sms.Status()))

			for _, msg := range sms.ReadMessages("ALL") {
				log.Info("stored message",
					zap.String("index", msg.Index),
					zap.String("sender", msg.Sender),
					zap.String("content", msg.Content))
			}
		}
	}
}
