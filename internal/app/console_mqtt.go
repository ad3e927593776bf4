// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/config"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/orientation"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

// topicsFromConfig maps configured topics to bridge event names.
func topicsFromConfig(cfg *config.Config) MQTTTopics {
	return MQTTTopics{
		LocationUpdate: cfg.TopicLocationUpdate,
		GyroUpdate:     cfg.TopicGyroUpdate,
		LocationError:  cfg.TopicLocationError,
		GyroError:      cfg.TopicGyroError,
	}
}

// decodeEvent turns an MQTT payload back into the bridge value for name.
func decodeEvent(name string, payload []byte) (any, error) {
	switch name {
	case bridge.EventLocationUpdate:
		var r location.Reading
		err := json.Unmarshal(payload, &r)
		return r, err
	case bridge.EventGyroUpdate:
		var r orientation.Reading
		err := json.Unmarshal(payload, &r)
		return r, err
	case bridge.EventLocationError, bridge.EventGyroError:
		var e sensors.Error
		err := json.Unmarshal(payload, &e)
		return &e, err
	}
	return nil, fmt.Errorf("unknown event %q", name)
}

// subscribeEvents subscribes to every configured topic and hands each
// decoded payload to fn.
func subscribeEvents(client mqtt.Client, topics MQTTTopics, log *slog.Logger, fn func(name string, v any)) error {
	for name, topic := range topics.byEvent() {
		if topic == "" {
			continue
		}
		name, topic := name, topic
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			v, err := decodeEvent(name, msg.Payload())
			if err != nil {
				log.Warn("payload unmarshal error", slog.String("topic", topic), slog.Any("error", err))
				return
			}
			fn(name, v)
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		log.Info("subscribed", slog.String("topic", topic))
	}
	return nil
}

// formatEvent renders one console line.
func formatEvent(name string, v any) string {
	switch e := v.(type) {
	case location.Reading:
		line := fmt.Sprintf("[LOC ] lat=%.6f lon=%.6f acc=%.1fm", e.Latitude, e.Longitude, e.Accuracy)
		if e.Altitude != nil {
			line += fmt.Sprintf(" alt=%.1fm", *e.Altitude)
		}
		if e.Speed != nil {
			line += fmt.Sprintf(" speed=%.1fm/s", *e.Speed)
		}
		if e.Heading != nil {
			line += fmt.Sprintf(" heading=%.1f°", *e.Heading)
		}
		return line + " t=" + formatMillis(e.Timestamp)
	case orientation.Reading:
		return fmt.Sprintf("[GYRO] x=%7.3f y=%7.3f z=%7.3f rad/s t=%s", e.X, e.Y, e.Z, formatMillis(e.Timestamp))
	case *sensors.Error:
		return fmt.Sprintf("[ERR ] %s %s: %s", name, e.Code, e.Message)
	}
	return fmt.Sprintf("[????] %s %v", name, v)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("15:04:05.000")
}

// RunConsoleMQTT prints every bridge event seen on MQTT until ctx ends.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer, log *slog.Logger) error {
	log = log.With(slog.String("component", "console"))

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", slog.String("broker", cfg.MQTTBroker))

	lines := make(chan string, 64)
	err = subscribeEvents(client, topicsFromConfig(cfg), log, func(name string, v any) {
		select {
		case lines <- formatEvent(name, v):
		default:
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case line := <-lines:
			fmt.Fprintln(out, line)
		}
	}
}
