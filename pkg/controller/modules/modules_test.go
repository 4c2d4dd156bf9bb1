package modules

import (
	"sync"
	"testing"
	"time"

	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/lcarbonaro/came-mqtt/pkg/came"
	"github.com/lcarbonaro/came-mqtt/pkg/config"
	"github.com/lcarbonaro/came-mqtt/pkg/homeassistant"
	"github.com/lcarbonaro/came-mqtt/pkg/mqtt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMqttClient records publications and subscriptions instead of talking
// to a broker.
type fakeMqttClient struct {
	mu            sync.Mutex
	published     map[string][]string
	subscriptions map[string]mqtt_base.MessageHandler
}

func newFakeMqttClient() *fakeMqttClient {
	return &fakeMqttClient{
		published:     map[string][]string{},
		subscriptions: map[string]mqtt_base.MessageHandler{},
	}
}

func (c *fakeMqttClient) Connect() error    { return nil }
func (c *fakeMqttClient) Disconnect() error { return nil }

func (c *fakeMqttClient) Publish(topic string, message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = append(c.published[topic], message.(string))
	return nil
}

func (c *fakeMqttClient) PublishAndRetain(topic string, message interface{}) error {
	return c.Publish(topic, message)
}

func (c *fakeMqttClient) Subscribe(topic string, messageHandler mqtt_base.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = messageHandler
	return nil
}

func (c *fakeMqttClient) GetFullTopic(topic string) string { return "came/" + topic }
func (c *fakeMqttClient) ServerStatusTopic() string        { return "came/server/status" }
func (c *fakeMqttClient) IsConnected() bool                { return true }
func (c *fakeMqttClient) RawClient() mqtt_base.Client      { return nil }

func (c *fakeMqttClient) messages(topic string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[topic]
}

func (c *fakeMqttClient) deliver(t *testing.T, topic string, payload string) {
	c.mu.Lock()
	handler, ok := c.subscriptions[topic]
	c.mu.Unlock()
	require.True(t, ok, "no subscription for topic %s", topic)
	handler(nil, fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

// fakeCameClient answers application requests from a canned table and
// records every command sent.
type fakeCameClient struct {
	mu        sync.Mutex
	commands  []came.Command
	responses map[string]came.Response
}

func (c *fakeCameClient) Connect() error    { return nil }
func (c *fakeCameClient) Disconnect() error { return nil }
func (c *fakeCameClient) Connected() bool   { return true }
func (c *fakeCameClient) KeepAlive() error  { return nil }

func (c *fakeCameClient) ApplicationRequest(cmd came.Command, expected string) (came.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
	name, _ := cmd["cmd_name"].(string)
	return c.responses[name], nil
}

func (c *fakeCameClient) GetFeatures() ([]string, error) { return nil, nil }
func (c *fakeCameClient) GetFloors() ([]came.Floor, error) {
	return nil, nil
}
func (c *fakeCameClient) GetRooms() ([]came.Room, error) { return nil, nil }
func (c *fakeCameClient) SoftwareVersion() string        { return "1.2.3" }
func (c *fakeCameClient) Serial() string                 { return "0012abcd" }
func (c *fakeCameClient) Keycode() string                { return "0000" }

func (c *fakeCameClient) sentCommands(name string) []came.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matches []came.Command
	for _, cmd := range c.commands {
		if cmd["cmd_name"] == name {
			matches = append(matches, cmd)
		}
	}
	return matches
}

// stubRegistry serves a fixed scenario manager; the device lookups are
// empty.
type stubRegistry struct {
	scenarios *came.ScenarioManager
	callbacks map[string]func()
}

func newStubRegistry(client came.Client) *stubRegistry {
	return &stubRegistry{
		scenarios: came.NewScenarioManager(client),
		callbacks: map[string]func(){},
	}
}

func (r *stubRegistry) Start() error                          { return nil }
func (r *stubRegistry) Stop() error                           { return nil }
func (r *stubRegistry) Devices() []*came.Device               { return nil }
func (r *stubRegistry) Lights() []*came.Light                 { return nil }
func (r *stubRegistry) Openings() []*came.Opening             { return nil }
func (r *stubRegistry) Thermostats() []*came.Thermostat       { return nil }
func (r *stubRegistry) Relays() []*came.Relay                 { return nil }
func (r *stubRegistry) DigitalInputs() []*came.DigitalIn      { return nil }
func (r *stubRegistry) AnalogSensors() []*came.AnalogSensor   { return nil }
func (r *stubRegistry) EnergyMeters() []*came.EnergyMeter     { return nil }
func (r *stubRegistry) DeviceByActID(int) (*came.Device, bool) {
	return nil, false
}
func (r *stubRegistry) DeviceByUniqueID(string) (*came.Device, bool) {
	return nil, false
}
func (r *stubRegistry) DeviceByName(string) (*came.Device, bool) {
	return nil, false
}
func (r *stubRegistry) DevicesByFloor(int) []*came.Device { return nil }
func (r *stubRegistry) DevicesByRoom(int) []*came.Device  { return nil }
func (r *stubRegistry) Floors() ([]came.Floor, error)     { return nil, nil }
func (r *stubRegistry) Rooms() ([]came.Room, error)       { return nil, nil }
func (r *stubRegistry) Scenarios() *came.ScenarioManager  { return r.scenarios }
func (r *stubRegistry) StatusUpdate(time.Duration) (bool, error) {
	return false, nil
}
func (r *stubRegistry) Subscribe(id string, callback func()) error {
	r.callbacks[id] = callback
	return nil
}
func (r *stubRegistry) Unsubscribe(id string) error {
	delete(r.callbacks, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Mqtt: config.ConfigMqtt{
			NormalizeDeviceName: true,
		},
		RefreshAtStart: false,
	}
}

func newSceneFixture(t *testing.T) (*SceneModule, *fakeMqttClient, *fakeCameClient, *stubRegistry) {
	cameClient := &fakeCameClient{
		responses: map[string]came.Response{
			"scenarios_list_req": {
				"cmd_name": "scenarios_list_resp",
				"array": []interface{}{
					map[string]interface{}{
						"id": 1, "name": "Movie night", "scenario_status": 0, "user-defined": 1,
					},
				},
			},
			"scenario_activation_req": {
				"cmd_name": "scenario_activation_resp",
			},
		},
	}
	registry := newStubRegistry(cameClient)
	require.NoError(t, registry.Scenarios().Refresh())

	mqttClient := newFakeMqttClient()
	module := NewSceneModule(mqttClient, registry, testConfig()).(*SceneModule)
	require.NoError(t, module.Start())
	return module, mqttClient, cameClient, registry
}

func TestSceneModuleActivatesOnCommand(t *testing.T) {
	_, mqttClient, cameClient, _ := newSceneFixture(t)

	mqttClient.deliver(t, "scenes/Movie_night/command", "ON")

	activations := cameClient.sentCommands("scenario_activation_req")
	require.Len(t, activations, 1)
	assert.Equal(t, 1, activations[0]["id"])
}

func TestSceneModulePublishesStatusOnce(t *testing.T) {
	module, mqttClient, _, registry := newSceneFixture(t)

	// First notification publishes the idle status, a second one with the
	// same status publishes nothing new.
	registry.callbacks[scenes]()
	registry.callbacks[scenes]()

	messages := mqttClient.messages("scenes/Movie_night/event")
	require.Len(t, messages, 1)
	assert.Equal(t, "idle", messages[0])

	require.NoError(t, module.Stop())
	assert.NotContains(t, registry.callbacks, scenes)
}

func TestSceneModuleExportsDiscoveryEntities(t *testing.T) {
	module, _, _, _ := newSceneFixture(t)

	configs, err := module.GetHomeAssistantEntities()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "Movie_night", configs[0].ObjectId)

	sceneConfig, ok := configs[0].Config.(*homeassistant.SceneConfig)
	require.True(t, ok)
	assert.Equal(t, "came/scenes/Movie_night/command", sceneConfig.CommandTopic)
	assert.Equal(t, "Movie night", sceneConfig.Name)
}

func TestNormalizeTopicName(t *testing.T) {
	assert.Equal(t, "luce_salotto", normalizeForTopicName("luce salotto"))
	assert.Equal(t, "Zona_Giorno", normalizeForTopicName("Zona/Giorno"))
	assert.Equal(t, "trm1", normalizeForTopicName("tèrm1"))
}

var _ mqtt.Client = (*fakeMqttClient)(nil)
var _ came.Client = (*fakeCameClient)(nil)
var _ came.Registry = (*stubRegistry)(nil)
