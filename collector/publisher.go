package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"tempmon/models"
	"tempmon/services"
)

// Publisher fans a freshly stored sample out to live consumers.
type Publisher interface {
	Publish(ctx context.Context, sample models.Sample) error
}

// RedisPublisher pushes the sample on the live channel and bumps the samples
// version so the API stops serving its cached GET /samples page.
type RedisPublisher struct {
	cache *services.CacheService
}

func NewRedisPublisher(cache *services.CacheService) *RedisPublisher {
	return &RedisPublisher{cache: cache}
}

func (p *RedisPublisher) Publish(ctx context.Context, sample models.Sample) error {
	if err := p.cache.BumpVersion(ctx, services.SamplesVersionKey); err != nil {
		return fmt.Errorf("bump samples version: %w", err)
	}
	if err := p.cache.Publish(ctx, services.LiveChannel, sample); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to the broker and keeps reconnecting in the
// background if the connection drops.
func NewMQTTPublisher(brokerURL, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID("tempmon-collector-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		log.Printf("mqtt connected: %s", brokerURL)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if err := connectMQTT(client, brokerURL, mqttConnectTimeout); err != nil {
		return nil, err
	}
	return newMQTTPublisher(client, topic), nil
}

// connectMQTT waits for the first connection. On failure the client is
// disconnected, which also stops its background connect retries.
func connectMQTT(client mqtt.Client, brokerURL string, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func newMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic}
}

func (p *MQTTPublisher) Publish(_ context.Context, sample models.Sample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, false, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", p.topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
