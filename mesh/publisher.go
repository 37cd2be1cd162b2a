package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes report summaries to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	published     int
	mu            sync.RWMutex
}

// NewPublisher creates a new report publisher. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, then config, then "meshdiff".
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, config *Config) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" && config != nil {
		prefix = config.MQTT.PublishPrefix
	}
	if prefix == "" {
		prefix = "meshdiff"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for reports (fire and forget)
		retain:        true, // Retain so late subscribers see the latest report
	}
}

// Prefix returns the topic prefix.
func (p *Publisher) Prefix() string { return p.publishPrefix }

// ReportTopic returns the topic a report is published to.
func (p *Publisher) ReportTopic(id string) string {
	return fmt.Sprintf("%s/reports/%s", p.publishPrefix, id)
}

// LatestTopic returns the topic that always carries the newest report.
func (p *Publisher) LatestTopic() string {
	return fmt.Sprintf("%s/latest", p.publishPrefix)
}

// JobsTopic returns the topic comparison jobs are read from.
func (p *Publisher) JobsTopic() string {
	return fmt.Sprintf("%s/jobs", p.publishPrefix)
}

// PublishReport publishes the report summary to its own topic and to the
// latest topic. Per-point arrays are never published.
func (p *Publisher) PublishReport(r *Report) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(r.Summary())
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	for _, topic := range []string{p.ReportTopic(r.ID), p.LatestTopic()} {
		if err := p.publish(topic, payload); err != nil {
			log.Printf("Error publishing report %s: %v", r.ID, err)
			return err
		}
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	log.Printf("Published report %s: grade=%s max=%.4f mean=%.4f",
		r.ID, r.Grade, r.Stats.Max, r.Stats.Mean)
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	p.mu.RLock()
	qos, retain := p.qos, p.retain
	p.mu.RUnlock()

	token := p.client.Publish(topic, qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Published returns how many reports were published successfully.
func (p *Publisher) Published() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retain = retain
}
