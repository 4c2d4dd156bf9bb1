package modules

import (
	"path"
	"sync"

	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/lcarbonaro/came-mqtt/pkg/came"
	"github.com/lcarbonaro/came-mqtt/pkg/config"
	"github.com/lcarbonaro/came-mqtt/pkg/homeassistant"
	"github.com/lcarbonaro/came-mqtt/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

const (
	scenes string = "scenes"
)

// Scene Module bridges the remote scenarios of the plant. A message on a
// scenario command topic activates it, and the tri-state scenario status is
// published on its event topic as it moves through idle, transition and
// active.
type SceneModule struct {
	mqttClient mqtt.Client
	registry   came.Registry

	normalizeTopicName bool

	publishedMu sync.Mutex
	published   map[int]came.ScenarioStatus
}

func (c *SceneModule) Start() error {
	if err := c.registry.Subscribe(scenes, func() {
		c.publishStatuses()
	}); err != nil {
		return err
	}

	for _, scenario := range c.registry.Scenarios().List() {
		scenarioID := scenario.ID
		topic := c.sceneCommandTopic(scenario.Name)
		log.Trace().
			Str("topic", topic).
			Str("sceneName", scenario.Name).
			Msg("Subscribing for topic.")
		if err := c.mqttClient.Subscribe(topic, func(mqtt_base.Client, mqtt_base.Message) {
			// Payload is ignored. As long as we receive the message to the
			// command topic, the scenario will be activated.
			if err := c.registry.Scenarios().Activate(scenarioID); err != nil {
				log.Error().Str("topic", topic).Err(err).Msg("Error activating scenario.")
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *SceneModule) Stop() error {
	return c.registry.Unsubscribe(scenes)
}

func (c *SceneModule) publishStatuses() {
	for _, scenario := range c.registry.Scenarios().List() {
		c.publishedMu.Lock()
		previous, seen := c.published[scenario.ID]
		if seen && previous == scenario.Status {
			c.publishedMu.Unlock()
			continue
		}
		c.published[scenario.ID] = scenario.Status
		c.publishedMu.Unlock()

		topic := c.sceneEventTopic(scenario.Name)
		if err := c.mqttClient.Publish(topic, scenario.Status.String()); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Error publishing scenario status.")
		}
	}
}

func (c *SceneModule) sceneEventTopic(sceneName string) string {
	if c.normalizeTopicName {
		sceneName = normalizeForTopicName(sceneName)
	}
	return path.Join(scenes, sceneName, mqtt.Event)
}

func (c *SceneModule) sceneCommandTopic(sceneName string) string {
	if c.normalizeTopicName {
		sceneName = normalizeForTopicName(sceneName)
	}
	return path.Join(scenes, sceneName, mqtt.Command)
}

func (c *SceneModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}

	for _, scenario := range c.registry.Scenarios().List() {
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Scene,
			DeviceId: "scenarios",
			ObjectId: normalizeForTopicName(scenario.Name),
			Config: &homeassistant.SceneConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers: []string{"came_scenarios"},
						Name:        "Scenarios",
					},
					Name:     scenario.Name,
					UniqueId: "came_scenario_" + normalizeForTopicName(scenario.Name),
				},
				CommandTopic:     c.mqttClient.GetFullTopic(c.sceneCommandTopic(scenario.Name)),
				PayloadOn:        payloadOn,
				Icon:             "mdi:palette",
				EnabledByDefault: true,
			},
		})
	}

	return configs, nil
}

func NewSceneModule(mqttClient mqtt.Client, registry came.Registry, config *config.Config) Module {
	return &SceneModule{
		mqttClient:         mqttClient,
		registry:           registry,
		normalizeTopicName: config.Mqtt.NormalizeDeviceName,
		published:          map[int]came.ScenarioStatus{},
	}
}

func init() {
	Register("scenes", NewSceneModule)
}
