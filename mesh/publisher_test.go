package mesh

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_PrefixPrecedence(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	assert.Equal(t, "meshdiff", NewPublisher(nil, nil).Prefix())

	config := DefaultConfig()
	config.MQTT.PublishPrefix = "qa/line1"
	p := NewPublisher(nil, &config)
	assert.Equal(t, "qa/line1", p.Prefix())
	assert.Equal(t, "qa/line1/reports/abc", p.ReportTopic("abc"))
	assert.Equal(t, "qa/line1/latest", p.LatestTopic())
	assert.Equal(t, "qa/line1/jobs", p.JobsTopic())

	t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
	assert.Equal(t, "from-env", NewPublisher(nil, &config).Prefix())
}

func TestPublisher_NotConnected(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	assert.Error(t, NewPublisher(nil, nil).PublishReport(testReport("x", 0.1)))

	broker := newFakeBroker()
	assert.Error(t, NewPublisher(broker, nil).PublishReport(testReport("x", 0.1)))
	assert.Empty(t, broker.Sent())
}

func TestPublisher_PublishReport(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	broker := newFakeBroker()
	broker.SetConnected(true)

	p := NewPublisher(broker, nil)
	report := testReport("r-1", 0.05)
	require.NoError(t, p.PublishReport(report))

	sent := broker.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "meshdiff/reports/r-1", sent[0].Topic)
	assert.Equal(t, "meshdiff/latest", sent[1].Topic)
	for _, m := range sent {
		assert.Equal(t, byte(0), m.QoS)
		assert.True(t, m.Retain)
	}

	var summary ReportSummary
	require.NoError(t, json.Unmarshal(sent[0].Payload, &summary))
	assert.Equal(t, "r-1", summary.ID)
	assert.Equal(t, GradeExcellent, summary.Grade)
	assert.NotContains(t, string(sent[0].Payload), "deviations")
	assert.Equal(t, 1, p.Published())
}

func TestPublisher_PublishError(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	broker := newFakeBroker()
	broker.SetConnected(true)
	broker.SetPublishError(errors.New("broker full"))

	p := NewPublisher(broker, nil)
	err := p.PublishReport(testReport("r-2", 0.05))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker full")
	assert.Equal(t, 0, p.Published())
}

func TestPublisher_QoSAndRetain(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	broker := newFakeBroker()
	broker.SetConnected(true)

	p := NewPublisher(broker, nil)
	p.SetQoS(1)
	p.SetQoS(7) // ignored
	p.SetRetain(false)
	require.NoError(t, p.PublishReport(testReport("r-3", 0.05)))

	for _, m := range broker.Sent() {
		assert.Equal(t, byte(1), m.QoS)
		assert.False(t, m.Retain)
	}
}
