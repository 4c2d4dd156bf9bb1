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
	climate string = "climate"

	hvacOff  string = "off"
	hvacHeat string = "heat"
	hvacCool string = "cool"
	hvacAuto string = "auto"
)

var fanModeNames = map[int]string{
	came.FanSpeedOff:    "off",
	came.FanSpeedSlow:   "low",
	came.FanSpeedMedium: "medium",
	came.FanSpeedFast:   "high",
	came.FanSpeedAuto:   "auto",
}

// Climate Module bridges the thermoregulation zones. Zone temperatures and
// modes are published on change and the command topics map the host HVAC
// vocabulary onto the zone configuration requests.
type ClimateModule struct {
	mqttClient mqtt.Client
	registry   came.Registry

	normalizeDeviceName bool

	publishedMu sync.Mutex
	published   map[string]string
}

func (c *ClimateModule) Start() error {
	if err := c.registry.Subscribe(climate, func() {
		c.publishAll()
	}); err != nil {
		return err
	}

	for _, zone := range c.registry.Thermostats() {
		if err := c.subscribeZone(zone); err != nil {
			return err
		}
	}

	go c.publishAll()
	return nil
}

func (c *ClimateModule) Stop() error {
	return c.registry.Unsubscribe(climate)
}

func (c *ClimateModule) subscribeZone(zone *came.Thermostat) error {
	name := zone.Name()
	if err := c.mqttClient.Subscribe(
		c.zoneCommandTopic(name, "mode"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onModeCommand(zone, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("zone", name).Msg("Error handling mode command.")
			}
		}); err != nil {
		return err
	}
	if err := c.mqttClient.Subscribe(
		c.zoneCommandTopic(name, "temperature"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onTemperatureCommand(zone, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("zone", name).Msg("Error handling temperature command.")
			}
		}); err != nil {
		return err
	}
	return c.mqttClient.Subscribe(
		c.zoneCommandTopic(name, "fan"),
		func(client mqtt_base.Client, message mqtt_base.Message) {
			if err := c.onFanCommand(zone, string(message.Payload())); err != nil {
				log.Error().Err(err).Str("zone", name).Msg("Error handling fan command.")
			}
		})
}

// onModeCommand maps the host HVAC mode onto zone mode and season: heating
// and cooling are the manual mode under the matching season.
func (c *ClimateModule) onModeCommand(zone *came.Thermostat, payload string) error {
	log.Info().Str("zone", zone.Name()).Str("payload", payload).Msg("Received HVAC mode command.")
	switch strings.ToLower(payload) {
	case hvacOff:
		return zone.SetMode(came.ThermoModeOff)
	case hvacAuto:
		return zone.SetMode(came.ThermoModeAuto)
	case hvacHeat:
		return c.setManualSeason(zone, came.SeasonWinter)
	case hvacCool:
		return c.setManualSeason(zone, came.SeasonSummer)
	default:
		return fmt.Errorf("unsupported HVAC mode: %s", payload)
	}
}

func (c *ClimateModule) setManualSeason(zone *came.Thermostat, season string) error {
	mode := came.ThermoModeManual
	return zone.SetZoneConfig(came.ZoneUpdate{
		Mode:   &mode,
		Season: &season,
	})
}

func (c *ClimateModule) onTemperatureCommand(zone *came.Thermostat, payload string) error {
	celsius, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return fmt.Errorf("error parsing target temperature: %w", err)
	}
	log.Info().Str("zone", zone.Name()).Float64("celsius", celsius).Msg("Setting target temperature.")
	return zone.SetTargetTemperature(celsius)
}

func (c *ClimateModule) onFanCommand(zone *came.Thermostat, payload string) error {
	wanted := strings.ToLower(strings.TrimSpace(payload))
	for speed, label := range fanModeNames {
		if label == wanted {
			return zone.SetFanSpeed(speed)
		}
	}
	return fmt.Errorf("unsupported fan mode: %s", payload)
}

func (c *ClimateModule) publishAll() {
	for _, zone := range c.registry.Thermostats() {
		name := zone.Name()
		c.publishIfChanged(c.zoneStateTopic(name, "mode"), c.hvacMode(zone))
		if current, ok := zone.CurrentTemperature(); ok {
			c.publishIfChanged(
				c.zoneStateTopic(name, "current_temperature"),
				fmt.Sprintf("%.1f", current))
		}
		if target, ok := zone.TargetTemperature(); ok {
			c.publishIfChanged(
				c.zoneStateTopic(name, "temperature"),
				fmt.Sprintf("%.1f", target))
		}
		if fan, ok := fanModeNames[zone.FanSpeed()]; ok {
			c.publishIfChanged(c.zoneStateTopic(name, "fan"), fan)
		}
	}
}

// hvacMode derives the host HVAC mode from the zone mode and season.
func (c *ClimateModule) hvacMode(zone *came.Thermostat) string {
	switch zone.Mode() {
	case came.ThermoModeOff:
		return hvacOff
	case came.ThermoModeAuto:
		return hvacAuto
	default:
		if zone.Season() == came.SeasonSummer {
			return hvacCool
		}
		return hvacHeat
	}
}

func (c *ClimateModule) publishIfChanged(topic string, payload string) {
	c.publishedMu.Lock()
	previous, seen := c.published[topic]
	if seen && previous == payload {
		c.publishedMu.Unlock()
		return
	}
	c.published[topic] = payload
	c.publishedMu.Unlock()

	if err := c.mqttClient.Publish(topic, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Error publishing zone state.")
	}
}

func (c *ClimateModule) zoneStateTopic(zoneName string, channel string) string {
	if c.normalizeDeviceName {
		zoneName = normalizeForTopicName(zoneName)
	}
	return path.Join(climate, zoneName, channel, mqtt.State)
}

func (c *ClimateModule) zoneCommandTopic(zoneName string, channel string) string {
	if c.normalizeDeviceName {
		zoneName = normalizeForTopicName(zoneName)
	}
	return path.Join(climate, zoneName, channel, mqtt.Command)
}

func (c *ClimateModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}
	roomNames := map[int]string{}
	if rooms, err := c.registry.Rooms(); err == nil {
		for _, room := range rooms {
			roomNames[room.ID] = room.Name
		}
	}

	for _, zone := range c.registry.Thermostats() {
		name := zone.Name()
		configs = append(configs, homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Climate,
			DeviceId: zone.UniqueID(),
			ObjectId: "zone",
			Config: &homeassistant.ClimateConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers:   []string{zone.UniqueID()},
						Name:          name,
						SuggestedArea: roomNames[zone.RoomID()],
					},
					Name:     name,
					UniqueId: zone.UniqueID() + "_climate",
				},
				ModeStateTopic:          c.mqttClient.GetFullTopic(c.zoneStateTopic(name, "mode")),
				ModeCommandTopic:        c.mqttClient.GetFullTopic(c.zoneCommandTopic(name, "mode")),
				Modes:                   []string{hvacOff, hvacHeat, hvacCool, hvacAuto},
				CurrentTemperatureTopic: c.mqttClient.GetFullTopic(c.zoneStateTopic(name, "current_temperature")),
				TemperatureStateTopic:   c.mqttClient.GetFullTopic(c.zoneStateTopic(name, "temperature")),
				TemperatureCommandTopic: c.mqttClient.GetFullTopic(c.zoneCommandTopic(name, "temperature")),
				FanModeStateTopic:       c.mqttClient.GetFullTopic(c.zoneStateTopic(name, "fan")),
				FanModeCommandTopic:     c.mqttClient.GetFullTopic(c.zoneCommandTopic(name, "fan")),
				FanModes:                []string{"off", "low", "medium", "high", "auto"},
				MinTemp:                 5,
				MaxTemp:                 35,
				TempStep:                0.1,
				TemperatureUnit:         "C",
				Precision:               0.1,
			},
		})
	}

	return configs, nil
}

func NewClimateModule(mqttClient mqtt.Client, registry came.Registry, config *config.Config) Module {
	return &ClimateModule{
		mqttClient:          mqttClient,
		registry:            registry,
		normalizeDeviceName: config.Mqtt.NormalizeDeviceName,
		published:           map[string]string{},
	}
}

func init() {
	Register("climate", NewClimateModule)
}
