package mesh

import (
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// JobHandler is called for every message on the jobs topic. Exactly one of
// job and err is non-nil.
type JobHandler func(job *ComparisonJob, err error)

// MQTTClient manages the MQTT connection and the job subscription
type MQTTClient struct {
	client      mqtt.Client
	jobsTopic   string
	jobHandler  JobHandler
	isConnected bool
	mu          sync.RWMutex
}

// mqttBroker resolves the broker URL: MQTT_BROKER wins over the config.
func mqttBroker(config *Config) string {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}
	return broker
}

// InitMQTT connects to the broker and subscribes to {prefix}/jobs.
// If no broker is configured (MQTT_BROKER or mqtt.broker), MQTT is disabled
// and this returns nil, nil.
func InitMQTT(config *Config, handler JobHandler) (*MQTTClient, error) {
	broker := mqttBroker(config)
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{
		jobsTopic:  NewPublisher(nil, config).JobsTopic(),
		jobHandler: handler,
	}

	// Build MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	// Client ID
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config != nil {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "meshdiff"
	}
	opts.SetClientID(clientID)

	// Authentication
	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config != nil {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config != nil {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(true)  // Jobs run one at a time, in arrival order

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Printf("MQTT connected, subscribing to %s...", c.jobsTopic)
	c.setConnected(true)

	token := client.Subscribe(c.jobsTopic, 1, c.createJobMessageHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", c.jobsTopic, token.Error())
	} else {
		log.Printf("Successfully subscribed to %s", c.jobsTopic)
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createJobMessageHandler decodes job payloads and hands them on.
func (c *MQTTClient) createJobMessageHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received comparison job (topic: %s, size: %d bytes)", msg.Topic(), len(payload))

		job, err := ParseComparisonJob(payload)
		if err != nil {
			log.Printf("Error decoding comparison job: %v", err)
		}
		if c.jobHandler != nil {
			c.jobHandler(job, err)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, jobsTopic string, handler JobHandler) *MQTTClient {
	return &MQTTClient{
		client:     client,
		jobsTopic:  jobsTopic,
		jobHandler: handler,
	}
}
