package modules

import (
	"fmt"
	"path"
	"time"

	"github.com/lcarbonaro/came-mqtt/pkg/came"
	"github.com/lcarbonaro/came-mqtt/pkg/config"
	"github.com/lcarbonaro/came-mqtt/pkg/homeassistant"
	"github.com/lcarbonaro/came-mqtt/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

const (
	meterings        string = "meterings"
	powerConsumption string = "powerW"
)

// Meterings Module encapsulates all the logic regarding the energy meters.
// The logic is the following: every 10 seconds the meter values are being
// refreshed from the gateway and pushed to the corresponding topic in the
// MQTT server.
type MeteringsModule struct {
	mqttClient mqtt.Client
	registry   came.Registry

	normalizeDeviceName bool

	ticker     *time.Ticker
	tickerDone chan struct{}
}

func (c *MeteringsModule) Start() error {
	c.ticker = time.NewTicker(10 * time.Second)
	c.tickerDone = make(chan struct{})

	go func() {
		for {
			select {
			case <-c.tickerDone:
				return
			case <-c.ticker.C:
				c.updateMeteringValues()
			}
		}
	}()
	return nil
}

func (c *MeteringsModule) Stop() error {
	c.ticker.Stop()
	c.tickerDone <- struct{}{}
	c.ticker = nil
	return nil
}

func (c *MeteringsModule) updateMeteringValues() {
	log.Debug().Msg("Updating metering values.")

	for _, meter := range c.registry.EnergyMeters() {
		if err := meter.Refresh(); err != nil {
			log.Error().Err(err).Str("meter", meter.Name()).Msg("Error refreshing meter.")
			continue
		}

		power, ok := meter.InstantPower()
		if !ok {
			continue
		}
		valueStr := fmt.Sprintf("%.0f", power)
		if err := c.mqttClient.Publish(c.meteringTopic(meter.Name(), powerConsumption), valueStr); err != nil {
			log.Error().
				Err(err).
				Str("meter", meter.Name()).
				Msg("Error updating metering")
			continue
		}
	}
}

func (c *MeteringsModule) meteringTopic(itemName string, measurement string) string {
	if c.normalizeDeviceName {
		itemName = normalizeForTopicName(itemName)
	}
	return path.Join(meterings, itemName, measurement, mqtt.State)
}

func (c *MeteringsModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}

	for _, meter := range c.registry.EnergyMeters() {
		powerConfig := homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Sensor,
			DeviceId: meter.UniqueID(),
			ObjectId: "power",
			Config: &homeassistant.SensorConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device: homeassistant.Device{
						Identifiers: []string{meter.UniqueID()},
						Name:        meter.Name(),
					},
					Name:     "Power " + meter.Name(),
					UniqueId: meter.UniqueID() + "_power",
				},
				StateTopic: c.mqttClient.GetFullTopic(
					c.meteringTopic(meter.Name(), powerConsumption)),
				UnitOfMeasurement: meter.Unit(),
				DeviceClass:       "power",
				StateClass:        "measurement",
				Icon:              "mdi:flash",
			},
		}
		configs = append(configs, powerConfig)
	}
	return configs, nil
}

func NewMeteringsModule(mqttClient mqtt.Client, registry came.Registry, config *config.Config) Module {
	return &MeteringsModule{
		mqttClient:          mqttClient,
		registry:            registry,
		normalizeDeviceName: config.Mqtt.NormalizeDeviceName,
	}
}

func init() {
	Register("meterings", NewMeteringsModule)
}
