package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadConfig(t *testing.T) {
	os.Clearenv()
	os.Setenv("CAME_HOST", "192.168.1.3")
	os.Setenv("MQTT_URL", "tcp://localhost:1883")

	c, err := ReadConfig()
	if err != nil {
		t.Fatalf("Error found: %s", err.Error())
	}

	assert.Equal(t, "192.168.1.3", c.Came.Host, "CAME host is wrong.")
	assert.Equal(t, 80, c.Came.Port, "CAME port is wrong.")
	assert.Equal(t, "admin", c.Came.Username, "CAME username default is wrong.")
	assert.Equal(t, "came", c.Mqtt.TopicPrefix, "MQTT prefix is wrong.")
	assert.Equal(t, "homeassistant", c.HomeAssistant.DiscoveryTopicPrefix, "Discovery prefix is wrong.")
	os.Clearenv()
}

func TestReadConfigMissingRequiredFields(t *testing.T) {
	os.Clearenv()
	os.Setenv("CAME_HOST", "192.168.1.3")

	_, err := ReadConfig()
	assert.EqualError(t, err, "required field not found in config: mqtt_url")
	os.Clearenv()
}
