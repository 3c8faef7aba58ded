package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client wraps the paho client. A Client without a host is disabled and
// all its methods are no-ops.
type Client struct {
	client       paho.Client
	clientID     string
	enabled      bool
	log          *zap.Logger
	onConnect    func()
	onDisconnect func()
	onMessage    func(topic string, payload []byte)
}

// Config holds MQTT connection settings.
type Config struct {
	Host       string `yaml:"host" env:"COOPDOOR_MQTT_HOST"`
	Port       int    `yaml:"port" env:"COOPDOOR_MQTT_PORT"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	Username   string `yaml:"username" env:"COOPDOOR_MQTT_USERNAME"`
	Password   string `yaml:"password" env:"COOPDOOR_MQTT_PASSWORD"`
}

// Handlers holds callback functions for MQTT events.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnMessage    func(topic string, payload []byte)
}

// New creates a client. Returns a disabled client if host is empty.
func New(cfg Config, clientID string, handlers Handlers, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		clientID:     clientID,
		log:          log.Named("mqtt"),
		onConnect:    handlers.OnConnect,
		onDisconnect: handlers.OnDisconnect,
		onMessage:    handlers.OnMessage,
	}

	if cfg.Host == "" {
		c.log.Info("disabled, no host configured")
		return c, nil
	}
	c.enabled = true

	var broker string
	var tlsConfig *tls.Config

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		c.log.Info("using non-TLS connection", zap.String("broker", broker))
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect).
		SetDefaultPublishHandler(c.handleMessage)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)

	paho.ERROR = zap.NewStdLog(c.log.WithOptions(zap.IncreaseLevel(zap.ErrorLevel)))
	paho.CRITICAL = paho.ERROR
	paho.WARN = zap.NewStdLog(c.log)

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := ioutil.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect starts connecting to the broker and returns without waiting, so
// the control loop is never held up by the network. If disabled, onConnect
// is not called.
func (c *Client) Connect() {
	if !c.enabled {
		return
	}
	token := c.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			c.log.Error("connect", zap.Error(token.Error()))
		}
	}()
}

// Disconnect disconnects from the broker. No-op if disabled.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}

// Subscribe subscribes to a topic. No-op if disabled.
func (c *Client) Subscribe(topic string) error {
	if !c.enabled {
		return nil
	}
	if token := c.client.Subscribe(topic, 1, nil); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Publish publishes a message without waiting for delivery. No-op if
// disabled.
func (c *Client) Publish(topic string, retained bool, payload string) {
	if !c.enabled {
		return
	}
	c.client.Publish(topic, 0, retained, payload)
}

// IsEnabled returns whether MQTT is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) handleConnect(client paho.Client) {
	c.log.Info("connection established")
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	c.log.Warn("connection lost", zap.Error(err))
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Client) handleMessage(client paho.Client, msg paho.Message) {
	if c.onMessage != nil {
		c.onMessage(msg.Topic(), msg.Payload())
	}
}
