package controller

import (
	"fmt"

	"github.com/lcarbonaro/came-mqtt/pkg/came"
	"github.com/lcarbonaro/came-mqtt/pkg/config"
	"github.com/lcarbonaro/came-mqtt/pkg/controller/modules"
	"github.com/lcarbonaro/came-mqtt/pkg/health"
	"github.com/lcarbonaro/came-mqtt/pkg/homeassistant"
	"github.com/lcarbonaro/came-mqtt/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	cameClient came.Client
	registry   came.Registry
	mqttClient mqtt.Client
	hass       *homeassistant.HomeAssistantDiscovery
	health     health.Health

	modules map[string]modules.Module
}

func NewController(config *config.Config) *Controller {
	// Create the CAME gateway client.
	cameOptions := came.NewClientOptions().
		SetHost(config.Came.Host).
		SetPort(config.Came.Port).
		SetUsername(config.Came.Username).
		SetPassword(config.Came.Password)
	cameClient := came.NewClient(cameOptions)
	registry := came.NewRegistry(cameClient)

	mqttOptions := mqtt.NewClientOptions().
		SetMqttUrl(config.Mqtt.MqttUrl).
		SetUsername(config.Mqtt.Username).
		SetPassword(config.Mqtt.Password).
		SetTopicPrefix(config.Mqtt.TopicPrefix).
		SetRetain(config.Mqtt.Retain)
	mqttClient := mqtt.NewClient(mqttOptions)

	controller := Controller{
		cameClient: cameClient,
		registry:   registry,
		mqttClient: mqttClient,
		hass:       homeassistant.NewHomeAssistantDiscovery(mqttClient, &config.HomeAssistant),
		modules:    map[string]modules.Module{},
	}
	if config.HealthCheck.Enabled {
		controller.health = health.NewHealth(config.HealthCheck, mqttClient, cameClient)
	}

	for name, builder := range modules.Modules {
		module := builder(mqttClient, registry, config)
		controller.modules[name] = module
	}

	return &controller
}

func (c *Controller) Start() error {
	log.Info().Msg("Starting controller.")
	if err := c.mqttClient.Connect(); err != nil {
		return fmt.Errorf("error connecting to MQTT client: %w", err)
	}
	if err := c.cameClient.Connect(); err != nil {
		return fmt.Errorf("error connecting to CAME gateway: %w", err)
	}
	if err := c.registry.Start(); err != nil {
		return fmt.Errorf("error starting the device registry: %w", err)
	}

	for name, module := range c.modules {
		log.Info().Str("module", name).Msg("Starting module.")
		if err := module.Start(); err != nil {
			return fmt.Errorf("error starting module '%s': %w", name, err)
		}
	}

	if err := c.publishDiscoveryConfigs(); err != nil {
		return fmt.Errorf("error publishing discovery configs: %w", err)
	}

	if c.health != nil {
		if err := c.health.Start(); err != nil {
			return fmt.Errorf("error starting health check server: %w", err)
		}
	}

	return nil
}

func (c *Controller) Stop() error {
	log.Info().Msg("Stopping controller.")

	for name, module := range c.modules {
		log.Info().Str("module", name).Msg("Stopping module.")
		if err := module.Stop(); err != nil {
			return fmt.Errorf("error stopping module '%s': %w", name, err)
		}
	}

	if err := c.registry.Stop(); err != nil {
		return fmt.Errorf("error stopping the device registry: %w", err)
	}
	if err := c.mqttClient.Disconnect(); err != nil {
		return fmt.Errorf("error disconnecting to MQTT client: %w", err)
	}
	if err := c.cameClient.Disconnect(); err != nil {
		return fmt.Errorf("error disconnecting from CAME gateway: %w", err)
	}
	if c.health != nil {
		if err := c.health.Stop(); err != nil {
			return fmt.Errorf("error stopping health check server: %w", err)
		}
	}

	return nil
}

// publishDiscoveryConfigs collects the Home Assistant entities exported by
// every module that supports discovery and publishes them.
func (c *Controller) publishDiscoveryConfigs() error {
	c.hass.SetGatewayInfo(homeassistant.GatewayInfo{
		SoftwareVersion: c.cameClient.SoftwareVersion(),
		Serial:          c.cameClient.Serial(),
	})

	for name, module := range c.modules {
		discovery, ok := module.(homeassistant.HomeAssistantDiscoveryInterface)
		if !ok {
			continue
		}
		configs, err := discovery.GetHomeAssistantEntities()
		if err != nil {
			return fmt.Errorf("error getting entities from module '%s': %w", name, err)
		}
		c.hass.AddConfigs(configs)
	}

	return c.hass.PublishDiscoveryMessages()
}
