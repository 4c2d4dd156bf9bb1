package modules

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/lcarbonaro/came-mqtt/pkg/came"
	"github.com/lcarbonaro/came-mqtt/pkg/config"
	"github.com/lcarbonaro/came-mqtt/pkg/homeassistant"
	"github.com/lcarbonaro/came-mqtt/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

const (
	devices string = "devices"

	payloadOn    string = "ON"
	payloadOff   string = "OFF"
	payloadOpen  string = "OPEN"
	payloadClose string = "CLOSE"
	payloadStop  string = "STOP"
)

// Device Module bridges the actuation devices of the CAME plant: lights,
// openings, relays and digital inputs. State topics are published whenever
// the gateway reports a change, and command topics drive the corresponding
// actuation request.
type DeviceModule struct {
	mqttClient mqtt.Client
	registry   came.Registry

	normalizeDeviceName bool
	refreshAtStart      bool

	publishedMu sync.Mutex
	published   map[string]string
}

func (c *DeviceModule) Start() error {
	if err := c.registry.Subscribe(devices, func() {
		c.publishAll()
	}); err != nil {
		return err
	}

	for _, light := range c.registry.Lights() {
		if err := c.subscribeLight(light); err != nil {
			return err
		}
	}
	for _, opening := range c.registry.Openings() {
		if err := c.subscribeOpening(opening); err != nil {
			return err
		}
	}
	for _, relay := range c.registry.Relays() {
		if err := c.subscribeRelay(relay); err != nil {
			return err
		}
	}

	if c.refreshAtStart {
		go c.publishAll()
	}
	return nil
}

func (c *DeviceModule) Stop() error {
	return c.registry.Unsubscribe(devices)
}

func (c *DeviceModule) subscribeLight(light *came.Light) error {
	name := light.Name()
	if err := c.mqttClient.Subscribe(
		c.deviceCommandTopic(name, "light"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onLightCommand(light, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("light", name).Msg("Error handling light command.")
			}
		}); err != nil {
		return err
	}
	if !light.SupportsBrightness() {
		return nil
	}
	return c.mqttClient.Subscribe(
		c.deviceCommandTopic(name, "brightness"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onBrightnessCommand(light, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("light", name).Msg("Error handling brightness command.")
			}
		})
}

func (c *DeviceModule) subscribeOpening(opening *came.Opening) error {
	name := opening.Name()
	return c.mqttClient.Subscribe(
		c.deviceCommandTopic(name, "opening"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onOpeningCommand(opening, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("opening", name).Msg("Error handling opening command.")
			}
		})
}

func (c *DeviceModule) subscribeRelay(relay *came.Relay) error {
	name := relay.Name()
	return c.mqttClient.Subscribe(
		c.deviceCommandTopic(name, "relay"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onRelayCommand(relay, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("relay", name).Msg("Error handling relay command.")
			}
		})
}

func (c *DeviceModule) onLightCommand(light *came.Light, payload string) error {
	log.Info().Str("light", light.Name()).Str("payload", payload).Msg("Received light command.")
	switch strings.ToUpper(payload) {
	case payloadOn:
		return light.TurnOn()
	case payloadOff:
		return light.TurnOff()
	default:
		return fmt.Errorf("unsupported light command: %s", payload)
	}
}

func (c *DeviceModule) onBrightnessCommand(light *came.Light, payload string) error {
	brightness, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return fmt.Errorf("error parsing brightness value: %w", err)
	}
	log.Info().Str("light", light.Name()).Int("brightness", brightness).Msg("Setting brightness.")
	if brightness > 0 {
		if err := light.SetBrightness(brightness); err != nil {
			return err
		}
		return light.TurnOn()
	}
	return light.TurnOff()
}

func (c *DeviceModule) onOpeningCommand(opening *came.Opening, payload string) error {
	log.Info().Str("opening", opening.Name()).Str("payload", payload).Msg("Received opening command.")
	switch strings.ToUpper(payload) {
	case payloadOpen:
		return opening.Open()
	case payloadClose:
		return opening.Close()
	case payloadStop:
		return opening.Stop()
	default:
		return fmt.Errorf("unsupported opening command: %s", payload)
	}
}

func (c *DeviceModule) onRelayCommand(relay *came.Relay, payload string) error {
	log.Info().Str("relay", relay.Name()).Str("payload", payload).Msg("Received relay command.")
	switch strings.ToUpper(payload) {
	case payloadOn:
		return relay.TurnOn()
	case payloadOff:
		return relay.TurnOff()
	default:
		return fmt.Errorf("unsupported relay command: %s", payload)
	}
}

// publishAll pushes the current state of every bridged device, skipping the
// topics whose payload did not change since the last publication.
func (c *DeviceModule) publishAll() {
	for _, light := range c.registry.Lights() {
		state := payloadOff
		if light.Status() != came.LightStatusOff {
			state = payloadOn
		}
		c.publishIfChanged(c.deviceStateTopic(light.Name(), "light"), state)
		if light.SupportsBrightness() {
			c.publishIfChanged(
				c.deviceStateTopic(light.Name(), "brightness"),
				strconv.Itoa(light.Brightness()))
		}
	}
	for _, opening := range c.registry.Openings() {
		var state string
		switch opening.Status() {
		case came.OpeningStatusOpen:
			state = "open"
		case came.OpeningStatusClose:
			state = "closed"
		default:
			state = "stopped"
		}
		c.publishIfChanged(c.deviceStateTopic(opening.Name(), "opening"), state)
	}
	for _, relay := range c.registry.Relays() {
		state := payloadOff
		if relay.Status() == came.RelayStatusOn {
			state = payloadOn
		}
		c.publishIfChanged(c.deviceStateTopic(relay.Name(), "relay"), state)
	}
	for _, input := range c.registry.DigitalInputs() {
		state := payloadOff
		if input.IsOn() {
			state = payloadOn
		}
		c.publishIfChanged(c.deviceStateTopic(input.Name(), "input"), state)
	}
	for _, sensor := range c.registry.AnalogSensors() {
		value, ok := sensor.Value()
		if !ok {
			continue
		}
		c.publishIfChanged(
			c.deviceStateTopic(sensor.Name(), sensor.Class()),
			fmt.Sprintf("%.1f", value))
	}
}

func (c *DeviceModule) publishIfChanged(topic string, payload string) {
	c.publishedMu.Lock()
	previous, seen := c.published[topic]
	if seen && previous == payload {
		c.publishedMu.Unlock()
		return
	}
	c.published[topic] = payload
	c.publishedMu.Unlock()

	if err := c.mqttClient.Publish(topic, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Error publishing device state.")
	}
}

func (c *DeviceModule) deviceStateTopic(deviceName string, channel string) string {
	if c.normalizeDeviceName {
		deviceName = normalizeForTopicName(deviceName)
	}
	return path.Join(devices, deviceName, channel, mqtt.State)
}

func (c *DeviceModule) deviceCommandTopic(deviceName string, channel string) string {
	if c.normalizeDeviceName {
		deviceName = normalizeForTopicName(deviceName)
	}
	return path.Join(devices, deviceName, channel, mqtt.Command)
}

func (c *DeviceModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}
	roomNames := c.roomNames()

	for _, light := range c.registry.Lights() {
		entityConfig := &homeassistant.LightConfig{
			BaseConfig: homeassistant.BaseConfig{
				Device: homeassistant.Device{
					Identifiers:   []string{light.UniqueID()},
					Name:          light.Name(),
					SuggestedArea: roomNames[light.RoomID()],
				},
				Name:     light.Name(),
				UniqueId: light.UniqueID() + "_light",
			},
			CommandTopic: c.mqttClient.GetFullTopic(c.deviceCommandTopic(light.Name(), "light")),
			StateTopic:   c.mqttClient.GetFullTopic(c.deviceStateTopic(light.Name(), "light")),
			PayloadOn:    payloadOn,
			PayloadOff:   payloadOff,
		}
		if light.SupportsBrightness() {
			entityConfig.OnCommandType = "brightness"
			entityConfig.BrightnessScale = 100
			entityConfig.BrightnessStateTopic = c.mqttClient.GetFullTopic(
				c.deviceStateTopic(light.Name(), "brightness"))
			entityConfig.BrightnessCommandTopic = c.mqttClient.GetFullTopic(
				c.deviceCommandTopic(light.Name(), "brightness"))
		}
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Light,
			DeviceId: light.UniqueID(),
			ObjectId: "light",
			Config:   entityConfig,
		})
	}

	for _, opening := range c.registry.Openings() {
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Cover,
			DeviceId: opening.UniqueID(),
			ObjectId: "opening",
			Config: &homeassistant.CoverConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers:   []string{opening.UniqueID()},
						Name:          opening.Name(),
						SuggestedArea: roomNames[opening.RoomID()],
					},
					Name:     opening.Name(),
					UniqueId: opening.UniqueID() + "_cover",
				},
				CommandTopic: c.mqttClient.GetFullTopic(c.deviceCommandTopic(opening.Name(), "opening")),
				StateTopic:   c.mqttClient.GetFullTopic(c.deviceStateTopic(opening.Name(), "opening")),
				PayloadOpen:  payloadOpen,
				PayloadClose: payloadClose,
				PayloadStop:  payloadStop,
				StateOpen:    "open",
				StateClosed:  "closed",
				DeviceClass:  "shutter",
			},
		})
	}

	for _, relay := range c.registry.Relays() {
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Switch,
			DeviceId: relay.UniqueID(),
			ObjectId: "relay",
			Config: &homeassistant.SwitchConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers:   []string{relay.UniqueID()},
						Name:          relay.Name(),
						SuggestedArea: roomNames[relay.RoomID()],
					},
					Name:     relay.Name(),
					UniqueId: relay.UniqueID() + "_switch",
				},
				CommandTopic: c.mqttClient.GetFullTopic(c.deviceCommandTopic(relay.Name(), "relay")),
				StateTopic:   c.mqttClient.GetFullTopic(c.deviceStateTopic(relay.Name(), "relay")),
				PayloadOn:    payloadOn,
				PayloadOff:   payloadOff,
			},
		})
	}

	for _, input := range c.registry.DigitalInputs() {
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.BinarySensor,
			DeviceId: input.UniqueID(),
			ObjectId: "input",
			Config: &homeassistant.BinarySensorConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers:   []string{input.UniqueID()},
						Name:          input.Name(),
						SuggestedArea: roomNames[input.RoomID()],
					},
					Name:     input.Name(),
					UniqueId: input.UniqueID() + "_input",
				},
				StateTopic: c.mqttClient.GetFullTopic(c.deviceStateTopic(input.Name(), "input")),
				PayloadOn:  payloadOn,
				PayloadOff: payloadOff,
			},
		})
	}

	for _, sensor := range c.registry.AnalogSensors() {
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Sensor,
			DeviceId: sensor.UniqueID(),
			ObjectId: sensor.Class(),
			Config: &homeassistant.SensorConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers:   []string{sensor.UniqueID()},
						Name:          sensor.Name(),
						SuggestedArea: roomNames[sensor.RoomID()],
					},
					Name:     sensor.Name(),
					UniqueId: sensor.UniqueID() + "_" + sensor.Class(),
				},
				StateTopic:        c.mqttClient.GetFullTopic(c.deviceStateTopic(sensor.Name(), sensor.Class())),
				UnitOfMeasurement: sensor.Unit(),
				DeviceClass:       sensor.Class(),
				StateClass:        "measurement",
			},
		})
	}

	return configs, nil
}

func (c *DeviceModule) roomNames() map[int]string {
	names := map[int]string{}
	rooms, err := c.registry.Rooms()
	if err != nil {
		log.Warn().Err(err).Msg("Unable to fetch room list, skipping area suggestions")
		return names
	}
	for _, room := range rooms {
		names[room.ID] = room.Name
	}
	return names
}

func normalizeForTopicName(item string) string {
	output := ""
	for i := 0; i < len(item); i++ {
		c := item[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			output += string(c)
		} else if c == ' ' || c == '/' {
			output += "_"
		}
	}
	return output
}

func NewDeviceModule(mqttClient mqtt.Client, registry came.Registry, config *config.Config) Module {
	return &DeviceModule{
		mqttClient:          mqttClient,
		registry:            registry,
		normalizeDeviceName: config.Mqtt.NormalizeDeviceName,
		refreshAtStart:      config.RefreshAtStart,
		published:           map[string]string{},
	}
}

func init() {
	Register("devices", NewDeviceModule)
}
