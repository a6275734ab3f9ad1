// Package mqtt is a best-effort telemetry side-channel: it mirrors
// forecast, schedule and inverter state onto MQTT topics, with
// optional Home Assistant discovery, in the shape of the teacher's
// internal/mqtt client. It sits outside the core pipelines — a
// publish failure is logged and dropped, never a pipeline error.
package mqtt

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/carlmjohnson/versioninfo"
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/config"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Publisher wraps a paho client with the base-topic conventions and a
// short publish timeout, matching the teacher's fire-and-forget
// continuation style: Connect blocks on its token, while each publish
// returns at once and a goroutine waits on the token and logs failures.
type Publisher struct {
	client  paho.Client
	cfg     config.MQTTConfig
	logger  *zap.Logger
	timeout time.Duration
}

func New(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("solarctl_%d", rand.IntN(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(payloadOffline)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.BaseTopic)
	opts.WillQos = 0

	return &Publisher{
		client:  paho.NewClient(opts),
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "mqtt")),
		timeout: 5 * time.Second,
	}
}

// Connect is a no-op if MQTT is disabled in configuration.
func (p *Publisher) Connect() error {
	if !p.cfg.Enabled {
		return nil
	}
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt: connect timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}
	p.publish(bridgeStateTopic(p.cfg.BaseTopic), payloadOnline, true)
	if p.cfg.HADiscoveryEnable {
		p.publishDiscovery()
	}
	return nil
}

func (p *Publisher) Disconnect() {
	if !p.cfg.Enabled {
		return
	}
	p.client.Disconnect(uint(p.timeout.Milliseconds()))
}

// PublishSOC mirrors the live SOC and mode onto a retained sensor
// topic; a publish error is logged, not propagated, since telemetry
// is best-effort by design.
func (p *Publisher) PublishSOC(socPercent float64, mode string) {
	p.publishJSON(p.sensorStateTopic("battery_soc"), map[string]any{"soc": socPercent, "mode": mode})
}

func (p *Publisher) PublishSchedule(activeAction string, targetW float64) {
	p.publishJSON(p.sensorStateTopic("active_schedule"), map[string]any{"action": activeAction, "target_w": targetW})
}

func (p *Publisher) PublishForecast(nextHourKWh float64) {
	p.publishJSON(p.sensorStateTopic("forecast_next_hour"), map[string]any{"kwh": nextHourKWh})
}

func (p *Publisher) publishJSON(topic string, v any) {
	if !p.cfg.Enabled {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("mqtt: marshal failed", zap.Error(err))
		return
	}
	p.publish(topic, payload, false)
}

func (p *Publisher) publish(topic string, payload any, retain bool) {
	token := p.client.Publish(topic, 0, retain, payload)
	go func() {
		if !token.WaitTimeout(p.timeout) {
			p.logger.Warn("mqtt: publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt: publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (p *Publisher) sensorStateTopic(id string) string {
	return fmt.Sprintf("%s/sensor/%s/state", p.cfg.BaseTopic, id)
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}

// haDiscoveryConfig is the subset of Home Assistant's MQTT discovery
// schema this controller needs: one device, a handful of sensors.
type haDiscoveryConfig struct {
	Device            haDiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	ValueTemplate     string            `json:"value_template,omitempty"`
}

type haDiscoveryDevice struct {
	Id        []string `json:"identifiers"`
	Name      string   `json:"name"`
	SWVersion string   `json:"sw_version,omitempty"`
}

func (p *Publisher) publishDiscovery() {
	dev := haDiscoveryDevice{Id: []string{"solarctl"}, Name: "solarctl", SWVersion: versioninfo.Short()}
	sensors := []struct {
		id, name, unit, template string
	}{
		{"battery_soc", "Battery SOC", "%", "{{ value_json.soc }}"},
		{"active_schedule", "Active schedule action", "", "{{ value_json.action }}"},
		{"forecast_next_hour", "Solar forecast next hour", "kWh", "{{ value_json.kwh }}"},
	}
	for _, s := range sensors {
		cfg := haDiscoveryConfig{
			Device:            dev,
			StateTopic:        p.sensorStateTopic(s.id),
			AvTopic:           bridgeStateTopic(p.cfg.BaseTopic),
			Name:              s.name,
			UniqueId:          "solarctl_" + s.id,
			Platform:          "mqtt",
			UnitOfMeasurement: s.unit,
			ValueTemplate:     s.template,
			StateClass:        "measurement",
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			continue
		}
		topic := fmt.Sprintf("%s/sensor/solarctl_%s/config", p.cfg.HADiscoveryTopic, s.id)
		p.publish(topic, payload, true)
	}
}
