package mesh

import (
	"errors"
	"sync"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_DisabledWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)

	config := DefaultConfig()
	client, err = InitMQTT(&config, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestMQTTBroker_EnvOverridesConfig(t *testing.T) {
	config := DefaultConfig()
	config.MQTT.Broker = "tcp://config:1883"

	t.Setenv("MQTT_BROKER", "")
	assert.Equal(t, "tcp://config:1883", mqttBroker(&config))

	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	assert.Equal(t, "tcp://env:1883", mqttBroker(&config))
}

func TestMQTTClient_OnConnectSubscribesToJobs(t *testing.T) {
	broker := newFakeBroker()
	broker.On("Subscribe", "meshdiff/jobs", byte(1)).Return(nil)

	client := newMQTTClientWithMock(broker, "meshdiff/jobs", nil)
	client.onConnect(broker)

	assert.True(t, client.IsConnected())
	broker.AssertExpectations(t)
}

func TestMQTTClient_SubscribeFailureIsLogged(t *testing.T) {
	broker := newFakeBroker()
	broker.On("Subscribe", mock.Anything, mock.Anything).Return(errors.New("not authorized"))

	client := newMQTTClientWithMock(broker, "meshdiff/jobs", nil)
	client.onConnect(broker)

	// Connection stays up; the subscription is retried on the next connect.
	assert.True(t, client.IsConnected())
	broker.AssertNumberOfCalls(t, "Subscribe", 1)
}

func TestMQTTClient_DeliversJobs(t *testing.T) {
	broker := newFakeBroker()
	broker.SetConnected(true)
	broker.On("Subscribe", "meshdiff/jobs", byte(1)).Return(nil)

	var (
		mu   sync.Mutex
		jobs []*ComparisonJob
		errs []error
	)
	client := newMQTTClientWithMock(broker, "meshdiff/jobs", func(job *ComparisonJob, err error) {
		mu.Lock()
		defer mu.Unlock()
		jobs = append(jobs, job)
		errs = append(errs, err)
	})
	client.onConnect(broker)

	payload := `{"name":"bracket","reference":{"vertices":[0,0,0,1,0,0,0,1,0]},"query":{"vertices":[0,0,0.1]}}`
	broker.Publish("meshdiff/jobs", 1, false, payload)
	broker.Publish("meshdiff/jobs", 1, false, "{not json")
	broker.Publish("meshdiff/other", 1, false, payload)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, jobs, 2)

	require.NoError(t, errs[0])
	assert.Equal(t, "bracket", jobs[0].Name)
	assert.Len(t, jobs[0].Reference.Vertices, 9)

	assert.Nil(t, jobs[1])
	assert.Error(t, errs[1])
}

func TestMQTTClient_ConnectionLostAndDisconnect(t *testing.T) {
	broker := newFakeBroker()
	client := newMQTTClientWithMock(broker, "meshdiff/jobs", nil)

	client.setConnected(true)
	client.onConnectionLost(broker, errors.New("reset by peer"))
	assert.False(t, client.IsConnected())

	broker.SetConnected(true)
	client.setConnected(true)
	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, broker.IsConnected())
	assert.Same(t, broker, client.GetClient())
}

func TestMQTTClient_JobRoundTripThroughPublisher(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	broker := newFakeBroker()
	broker.SetConnected(true)
	broker.On("Subscribe", mock.Anything, byte(1)).Return(nil)

	publisher := NewPublisher(broker, nil)
	cube := mustPointSet(t, unitCube()...)

	var published []string
	client := newMQTTClientWithMock(broker, publisher.JobsTopic(), func(job *ComparisonJob, err error) {
		require.NoError(t, err)
		report, err := job.Run(t.Context(), nil)
		require.NoError(t, err)
		require.NoError(t, publisher.PublishReport(report))
		published = append(published, report.ID)
	})
	client.onConnect(broker)

	// Watch the latest topic the way a dashboard would.
	var latest []byte
	broker.AddRoute(publisher.LatestTopic(), func(_ mqtt.Client, msg mqtt.Message) {
		latest = msg.Payload()
	})

	job := NewVertexFile("cube", cube)
	payload := `{"name":"loop","reference":` + mustJSON(t, job) + `,"query":` + mustJSON(t, job) + `}`
	broker.Publish(publisher.JobsTopic(), 1, false, payload)

	require.Len(t, published, 1)
	assert.Contains(t, string(latest), published[0])
	assert.Equal(t, 1, publisher.Published())
}
