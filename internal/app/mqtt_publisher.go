// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/event"
)

const mqttPublishTimeout = 2 * time.Second

// MQTTTopics maps each bridge event to a topic.
type MQTTTopics struct {
	LocationUpdate string
	GyroUpdate     string
	LocationError  string
	GyroError      string
}

func (t MQTTTopics) byEvent() map[string]string {
	return map[string]string{
		bridge.EventLocationUpdate: t.LocationUpdate,
		bridge.EventGyroUpdate:     t.GyroUpdate,
		bridge.EventLocationError:  t.LocationError,
		bridge.EventGyroError:      t.GyroError,
	}
}

// ConnectMQTT opens a client connection to broker.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	return client, nil
}

// MQTTPublisher mirrors bridge events onto MQTT topics at QoS 0. Location
// updates are retained so late subscribers see the last position.
type MQTTPublisher struct {
	client mqtt.Client
	topics map[string]string
	log    *slog.Logger
	onFail func()
	subs   []*event.Subscription
}

// NewMQTTPublisher creates a publisher. onFail may be nil.
func NewMQTTPublisher(client mqtt.Client, topics MQTTTopics, log *slog.Logger, onFail func()) *MQTTPublisher {
	if onFail == nil {
		onFail = func() {}
	}
	return &MQTTPublisher{
		client: client,
		topics: topics.byEvent(),
		log:    log.With(slog.String("component", "mqtt")),
		onFail: onFail,
	}
}

// Attach starts mirroring events from ch.
func (p *MQTTPublisher) Attach(ch *event.Channel) {
	p.subs = append(p.subs, listenAll(ch, p.publish)...)
}

func (p *MQTTPublisher) publish(name string, payload any) {
	topic := p.topics[name]
	if topic == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal event", slog.String("event", name), slog.Any("error", err))
		p.onFail()
		return
	}

	retained := name == bridge.EventLocationUpdate
	token := p.client.Publish(topic, 0, retained, body)

	// Never block the sensor delivery path on the network.
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			p.log.Warn("publish timed out", slog.String("topic", topic))
			p.onFail()
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("publish failed", slog.String("topic", topic), slog.Any("error", err))
			p.onFail()
		}
	}()
}

// Close stops mirroring and disconnects the client.
func (p *MQTTPublisher) Close() {
	removeAll(p.subs)
	p.subs = nil
	p.client.Disconnect(250)
}
