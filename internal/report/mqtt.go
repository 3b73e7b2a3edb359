package report

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTSink publishes session events to <topic>/<outlet>/event. Events are
// queued on a buffered channel and published from a worker goroutine so a
// slow broker never stalls a session tick; overflow drops the event with a
// warning.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	queue  chan Event
}

func NewMQTTSink(broker, clientID, topic string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID).SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return &MQTTSink{
		client: client,
		topic:  topic,
		queue:  make(chan Event, 64),
	}, nil
}

// Start runs the publisher until the context is cancelled.
func (s *MQTTSink) Start(ctx context.Context) {
	go func() {
		log.Info().Str("topic", s.topic).Msg("MQTT event publisher started")
		for {
			select {
			case e := <-s.queue:
				s.publish(e)
			case <-ctx.Done():
				s.client.Disconnect(250)
				log.Info().Msg("MQTT event publisher stopped")
				return
			}
		}
	}()
}

func (s *MQTTSink) Record(e Event) {
	select {
	case s.queue <- e:
	default:
		log.Warn().Str("outlet", e.Outlet).Msg("MQTT event queue full, dropping event")
	}
}

func (s *MQTTSink) publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event for MQTT")
		return
	}
	topic := fmt.Sprintf("%s/%s/event", s.topic, e.Outlet)
	token := s.client.Publish(topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		log.Warn().Err(token.Error()).Str("topic", topic).Msg("Failed to publish event")
	}
}
