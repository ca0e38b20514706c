// Package mqtt provides an availability publisher: a component that marks
// the application online on an MQTT broker while it runs, with a retained
// last-will that reports it offline if the connection drops.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
)

// ComponentType is the config type of the availability publisher.
const ComponentType = "mqtt"

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Config holds broker and topic settings.
type Config struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Prefix         string        `mapstructure:"prefix"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StatusTopic returns <prefix>/<client_id>/status.
func (c Config) StatusTopic() string {
	return fmt.Sprintf("%s/%s/status", c.Prefix, c.ClientID)
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

var newClient = func(opts *paho.ClientOptions) client {
	return paho.NewClient(opts)
}

func init() {
	integration.MustRegisterFactory(ComponentType, integration.Factory{
		Version:     "1.0.0",
		Description: "Publishes retained online/offline availability to an MQTT broker",
		New:         newComponent,
	})
}

func newComponent(name string, settings map[string]interface{}, _ lifecycle.Control) (lifecycle.Component, error) {
	var cfg Config
	if err := integration.DecodeConfig(settings, &cfg); err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", name, err)
	}
	return NewPublisher(name, cfg)
}

// Publisher is the availability component.
type Publisher struct {
	name   string
	cfg    Config
	logger *logging.Logger

	mu     sync.Mutex
	client client
}

// NewPublisher validates cfg and fills defaults.
func NewPublisher(name string, cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt %s: broker not configured", name)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt %s: qos must be 0, 1 or 2", name)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = name
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "jiotty"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Publisher{
		name:   name,
		cfg:    cfg,
		logger: logging.GetLogger("mqtt").WithField("component", name),
	}, nil
}

// Name implements lifecycle.Component.
func (p *Publisher) Name() string { return p.name }

func (p *Publisher) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetConnectTimeout(p.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetWill(p.cfg.StatusTopic(), PayloadOffline, p.cfg.QoS, true)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		// Re-announce after automatic reconnects; the broker published the will.
		c.Publish(p.cfg.StatusTopic(), p.cfg.QoS, true, PayloadOnline)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.logger.Warn("Connection to %s lost: %v", p.cfg.Broker, err)
	})
	return opts
}

// Start connects and publishes the retained online message.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return fmt.Errorf("mqtt %s already started", p.name)
	}

	c := newClient(p.options())
	if err := wait(ctx, c.Connect(), p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", p.cfg.Broker, err)
	}

	if err := wait(ctx, c.Publish(p.cfg.StatusTopic(), p.cfg.QoS, true, PayloadOnline), p.cfg.ConnectTimeout); err != nil {
		c.Disconnect(250)
		return fmt.Errorf("publishing availability: %w", err)
	}

	p.client = c
	p.logger.Info("Published %s to %s", PayloadOnline, p.cfg.StatusTopic())
	return nil
}

// Stop publishes the retained offline message and disconnects. The
// connection is closed even when publishing fails.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	c := p.client
	p.client = nil
	p.mu.Unlock()

	if c == nil {
		return nil
	}
	defer c.Disconnect(250)

	if err := wait(ctx, c.Publish(p.cfg.StatusTopic(), p.cfg.QoS, true, PayloadOffline), p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("publishing availability: %w", err)
	}
	p.logger.Info("Published %s to %s", PayloadOffline, p.cfg.StatusTopic())
	return nil
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
