package location

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/trip"
)

const connectTimeout = 10 * time.Second

// MQTTConfig configures the device position source. The source is disabled
// unless both broker and topic are set.
type MQTTConfig struct {
	Broker   string `toml:"mqtt_broker"`
	Topic    string `toml:"mqtt_topic"`
	ClientID string `toml:"mqtt_client_id"`
	Username string `toml:"mqtt_username"`
	Password string `toml:"mqtt_password"`
}

// Enabled reports whether a broker is configured
func (c MQTTConfig) Enabled() bool {
	return c.Broker != "" && c.Topic != ""
}

// solvedPayload is the location_solved uplink of a LoRaWAN tracker
type solvedPayload struct {
	ReceivedAt     time.Time `json:"received_at"`
	LocationSolved struct {
		Location struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Accuracy  float64 `json:"accuracy"`
		} `json:"location"`
	} `json:"location_solved"`
}

func decodePayload(data []byte) (trip.Fix, error) {
	var p solvedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return trip.Fix{}, fmt.Errorf("error decoding location payload: %w", err)
	}
	loc := p.LocationSolved.Location
	fix := trip.Fix{
		Coords:    nav.Coordinates{Lng: loc.Longitude, Lat: loc.Latitude},
		Accuracy:  loc.Accuracy,
		Timestamp: p.ReceivedAt,
	}
	if err := ValidateFix(fix); err != nil {
		return trip.Fix{}, err
	}
	return fix, nil
}

// deviceID extracts the device from topics shaped like v3/{app}/devices/{id}/location/solved
func deviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 4 && parts[2] == "devices" {
		return parts[3]
	}
	return ""
}

// MQTTSource subscribes to a tracker topic and publishes fixes to attached feeds
type MQTTSource struct {
	cfg    MQTTConfig
	logger *slog.Logger
	client mqtt.Client

	mu     sync.Mutex
	feeds  map[int]*Feed
	nextID int
}

// NewMQTTSource creates a source. Call Connect to start receiving.
func NewMQTTSource(cfg MQTTConfig, logger *slog.Logger) *MQTTSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MQTTSource{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		feeds:  make(map[int]*Feed),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(s.handleMessage)
	opts.SetOnConnectHandler(s.subscribe)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "error", err)
		s.fail(fmt.Errorf("mqtt connection lost: %w", err))
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Connect connects to the broker. The topic is subscribed on every
// (re)connect.
func (s *MQTTSource) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to mqtt broker %s", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error connecting to mqtt broker: %w", err)
	}
	return nil
}

func (s *MQTTSource) subscribe(client mqtt.Client) {
	token := client.Subscribe(s.cfg.Topic, 0, nil)
	if token.Wait() && token.Error() != nil {
		s.logger.Error("error subscribing to topic", "topic", s.cfg.Topic, "error", token.Error())
		s.fail(token.Error())
		return
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.cfg.Topic)
}

// Attach publishes device fixes to feed until detach is called
func (s *MQTTSource) Attach(feed *Feed) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.feeds[id] = feed

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.feeds, id)
	}
}

func (s *MQTTSource) attached() []*Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, f)
	}
	return out
}

func (s *MQTTSource) fail(err error) {
	for _, f := range s.attached() {
		f.Fail(err)
	}
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	device := deviceID(msg.Topic())
	fix, err := decodePayload(msg.Payload())
	if err != nil {
		s.logger.Warn("dropping location message", "topic", msg.Topic(), "device", device, "error", err)
		return
	}

	s.logger.Debug("device location", "device", device, "lng", fix.Coords.Lng, "lat", fix.Coords.Lat)
	for _, f := range s.attached() {
		f.Publish(fix)
	}
}

// Close disconnects from the broker
func (s *MQTTSource) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
