package telemetry

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher pushes the periodic status snapshot to an MQTT broker. It is an
// optional side channel next to the REST sync, useful for ops dashboards
// that watch a whole fleet.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher connects to the configured broker. Returns nil without error
// when telemetry is disabled.
func NewPublisher(settings config.TelemetrySettings, deviceName string) (*Publisher, error) {
	if !settings.Enabled {
		return nil, nil
	}

	clientID := settings.ClientID
	if clientID == "" {
		clientID = config.ProductName + "-" + deviceName
	}

	opts := mqtt.NewClientOptions().
		AddBroker(settings.Broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	log.Info("telemetry connected", zap.String("broker", settings.Broker), zap.String("topic", settings.Topic))

	return &Publisher{
		client: client,
		topic:  settings.Topic,
	}, nil
}

// Publish serializes the snapshot and hands it to the broker, QoS 0 because
// a lost heartbeat is replaced by the next one anyway
func (p *Publisher) Publish(snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn("telemetry publish timed out", zap.String("topic", p.topic))
		return nil
	}

	return token.Error()
}

// Shutdown disconnects from the broker
func (p *Publisher) Shutdown() {
	p.client.Disconnect(250)
}
