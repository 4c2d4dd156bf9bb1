package homeassistant

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/lcarbonaro/came-mqtt/pkg/config"
	"github.com/lcarbonaro/came-mqtt/pkg/mqtt"
	"github.com/lcarbonaro/came-mqtt/pkg/utils"
)

type Domain string

const (
	Sensor       Domain = "sensor"
	BinarySensor Domain = "binary_sensor"
	Light        Domain = "light"
	Cover        Domain = "cover"
	Switch       Domain = "switch"
	Climate      Domain = "climate"
	Scene        Domain = "scene"
)

type DiscoveryConfig struct {
	Domain   Domain
	DeviceId string
	ObjectId string
	Config   MqttConfig
}

type HomeAssistantDiscoveryInterface interface {
	// Returns the list of Home Assitant MQTT entities that each module would
	// be exporting for discovery.
	// This will be run after the method Start is called and therefore it can
	// assume that the logic there will be run.
	GetHomeAssistantEntities() ([]DiscoveryConfig, error)
}

// GatewayInfo carries the identity of the CAME gateway, shown on the device
// page of every exported entity.
type GatewayInfo struct {
	SoftwareVersion string
	Serial          string
}

type HomeAssistantDiscovery struct {
	mqttClient mqtt.Client
	config     *config.ConfigHomeAssistant
	gateway    GatewayInfo

	discoveryConfigs []DiscoveryConfig
}

func NewHomeAssistantDiscovery(mqttClient mqtt.Client, config *config.ConfigHomeAssistant) *HomeAssistantDiscovery {
	return &HomeAssistantDiscovery{
		mqttClient:       mqttClient,
		config:           config,
		discoveryConfigs: []DiscoveryConfig{},
	}
}

// SetGatewayInfo records the gateway identity once known, before the
// discovery messages are built.
func (hass *HomeAssistantDiscovery) SetGatewayInfo(info GatewayInfo) {
	hass.gateway = info
}

func (hass *HomeAssistantDiscovery) AddConfigs(configs []DiscoveryConfig) {
	systemAvailability := Availability{
		Topic:               hass.mqttClient.ServerStatusTopic(),
		PayloadAvailable:    mqtt.Online,
		PayloadNotAvailable: mqtt.Offline,
	}
	for _, config := range configs {
		entityName := config.Config.GetName()
		config.Config.
			SetName(
				utils.RemoveRegexp(
					entityName,
					hass.config.RemoveRegexpFromName)).
			SetRetain(hass.config.Retain).
			AddAvailability(systemAvailability).
			SetAvailabilityMode("all")
		// Update the config with some generic attributes for all
		// configurations.
		device := config.Config.GetDevice()
		device.Manufacturer = "CAME"
		device.Model = "ETI/Domo"
		// The gateway web UI is plain http.
		device.ConfigurationUrl = "http://" + hass.config.CameHost
		device.SwVersion = hass.gateway.SoftwareVersion
		if hass.gateway.Serial != "" {
			device.Identifiers = append(device.Identifiers, hass.gateway.Serial)
		}

		hass.discoveryConfigs = append(hass.discoveryConfigs, config)
	}
}

func (hass *HomeAssistantDiscovery) PublishDiscoveryMessages() error {
	if !hass.config.DiscoveryEnabled {
		return nil
	}

	for _, config := range hass.discoveryConfigs {
		topic := path.Join(
			hass.config.DiscoveryTopicPrefix,
			string(config.Domain),
			config.DeviceId,
			config.ObjectId,
			"config")
		json, err := json.Marshal(config.Config)
		if err != nil {
			return fmt.Errorf("error serializing dicovery config to JSON: %w", err)
		}
		t := hass.mqttClient.RawClient().Publish(topic, 0, true, json)
		<-t.Done()
		if t.Error() != nil {
			return fmt.Errorf("error publishing discovery message to MQTT: %w", t.Error())
		}
	}
	return nil
}
