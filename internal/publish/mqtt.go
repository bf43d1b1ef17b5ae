// Package publish announces capture results on an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"snapcam/pkg/models"
)

const (
	publishTimeout = 2 * time.Second
	connectWait    = 5 * time.Second
)

// Config selects the broker and topics.
type Config struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	TopicPrefix  string
	QoS          byte
	IncludeImage bool
}

// publisher is the part of mqtt.Client the Publisher needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
}

// CaptureEvent is the payload published for every capture.
type CaptureEvent struct {
	ID         string            `json:"id"`
	Camera     string            `json:"camera"`
	Type       models.CameraType `json:"type"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	DurationMS int64             `json:"duration_ms"`
	Bytes      int               `json:"bytes"`
	Image      []byte            `json:"image,omitempty"`
}

// ReportEvent is the payload published after a batch capture.
type ReportEvent struct {
	Total       int                     `json:"total"`
	Succeeded   []string                `json:"succeeded"`
	Failures    []models.CaptureFailure `json:"failures"`
	GeneratedAt time.Time               `json:"generated_at"`
	DurationMS  int64                   `json:"duration_ms"`
}

// Publisher sends capture events to MQTT. It implements service.Observer.
type Publisher struct {
	cfg    Config
	client publisher
	mqtt   mqtt.Client
	logger zerolog.Logger
	wait   time.Duration

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
}

// New returns a Publisher that is not yet connected.
func New(cfg Config, logger zerolog.Logger) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "snapcam"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "snapcam"
	}
	return &Publisher{
		cfg:       cfg,
		logger:    logger.With().Str("component", "mqtt").Logger(),
		wait:      connectWait,
		published: make(map[string]uint64),
	}
}

// Connect dials the broker. The client is kept even when the first attempt
// does not finish in time: paho keeps retrying in the background and events
// flow once the connection is up.
func (p *Publisher) Connect(ctx context.Context) error {
	broker := p.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		p.logger.Info().Str("broker", broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	p.logger.Info().Str("broker", broker).Msg("connecting to mqtt broker")

	p.mqtt = client
	p.client = client

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "mqtt connect")
	case <-time.After(p.wait):
		return errors.New("mqtt connection timeout, retrying in background")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "mqtt connection failed")
	}
	return nil
}

// Connected reports whether events can be published right now.
func (p *Publisher) Connected() bool {
	return p.client != nil && p.client.IsConnectionOpen()
}

// Disconnect closes the broker connection and stops any pending retries.
func (p *Publisher) Disconnect() {
	if p.mqtt == nil {
		return
	}
	p.mqtt.Disconnect(250)
	p.logger.Info().Msg("mqtt disconnected")
}

// CaptureTopic is where results for camera are published.
func (p *Publisher) CaptureTopic(camera string) string {
	return fmt.Sprintf("%s/captures/%s", p.cfg.TopicPrefix, camera)
}

// ReportTopic is where batch reports are published.
func (p *Publisher) ReportTopic() string {
	return p.cfg.TopicPrefix + "/reports"
}

// NewCaptureEvent builds the event for res. The image is only attached when
// includeImage is set.
func NewCaptureEvent(res models.CaptureResult, includeImage bool) CaptureEvent {
	ev := CaptureEvent{
		ID:         res.ID,
		Camera:     res.CameraName,
		Type:       res.CameraType,
		Success:    res.Success,
		Error:      res.Error,
		CapturedAt: res.CapturedAt,
		DurationMS: res.Duration.Milliseconds(),
		Bytes:      len(res.Image),
	}
	if includeImage && res.Success {
		ev.Image = res.Image
	}
	return ev
}

// NewReportEvent summarizes report without any image data.
func NewReportEvent(report *models.AggregateReport) ReportEvent {
	ev := ReportEvent{
		Total:       report.TotalCameras,
		Succeeded:   make([]string, 0, len(report.Successes)),
		Failures:    report.Failures,
		GeneratedAt: report.GeneratedAt,
		DurationMS:  report.Duration.Milliseconds(),
	}
	for _, s := range report.Successes {
		ev.Succeeded = append(ev.Succeeded, s.CameraName)
	}
	if ev.Failures == nil {
		ev.Failures = []models.CaptureFailure{}
	}
	return ev
}

func (p *Publisher) send(topic string, v interface{}) error {
	if !p.Connected() {
		p.countError()
		return errors.New("mqtt not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.countError()
		return errors.Wrap(err, "encoding event")
	}

	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.countError()
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return errors.Wrap(err, "publish failed")
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()

	p.logger.Debug().Str("topic", topic).Int("size", len(payload)).Msg("event published")
	return nil
}

func (p *Publisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// ObserveResult publishes a capture event. Failures are logged, not returned.
func (p *Publisher) ObserveResult(res models.CaptureResult) {
	if err := p.send(p.CaptureTopic(res.CameraName), NewCaptureEvent(res, p.cfg.IncludeImage)); err != nil {
		p.logger.Warn().Err(err).Str("camera", res.CameraName).Msg("failed to publish capture")
	}
}

// ObserveReport publishes a batch report.
func (p *Publisher) ObserveReport(report *models.AggregateReport) {
	if report == nil {
		return
	}
	if err := p.send(p.ReportTopic(), NewReportEvent(report)); err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish report")
	}
}

// Stats is a snapshot of publish counters.
type Stats struct {
	Published map[string]uint64
	Errors    uint64
}

func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return Stats{Published: published, Errors: p.errors}
}
