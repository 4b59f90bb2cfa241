package config

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"food-delivery/tracking/durable"
)

// NewMQTT connects to the broker. The capability follows the connection:
// degraded when it drops, available again once auto reconnect succeeds.
func NewMQTT(cfg *Config, capability *durable.Capability) (mqtt.Client, error) {
	client := mqtt.NewClient(mqttOptions(cfg, capability))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

func mqttOptions(cfg *Config, capability *durable.Capability) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			capability.MarkAvailable()
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
			capability.MarkDegraded(err)
		})
}
