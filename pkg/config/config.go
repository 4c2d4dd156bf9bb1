package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type ConfigCame struct {
	Host     string
	Port     int
	Username string
	Password string
}
type ConfigMqtt struct {
	MqttUrl             string
	Username            string
	Password            string
	TopicPrefix         string
	NormalizeDeviceName bool
	Retain              bool
}
type ConfigHomeAssistant struct {
	DiscoveryEnabled     bool
	DiscoveryTopicPrefix string
	RemoveRegexpFromName string
	CameHost             string
	Retain               bool
}
type HealthCheckConfig struct {
	Enabled bool
	Port    int
}
type Config struct {
	Came           ConfigCame
	Mqtt           ConfigMqtt
	HomeAssistant  ConfigHomeAssistant
	HealthCheck    HealthCheckConfig
	RefreshAtStart bool
	LogLevel       string
}

const (
	undefined                               string = "__undefined__"
	configFile                              string = "config.yaml"
	envKeyCameHost                          string = "came_host"
	envKeyCamePort                          string = "came_port"
	envKeyCameUsername                      string = "came_username"
	envKeyCamePassword                      string = "came_password"
	envKeyMqttUrl                           string = "mqtt_url"
	envKeyMqttUsername                      string = "mqtt_username"
	envKeyMqttPassword                      string = "mqtt_password"
	envKeyMqttTopicPrefix                   string = "mqtt_topic_prefix"
	envKeyMqttNormalizeTopicName            string = "mqtt_normalize_device_name"
	envKeyMqttRetain                        string = "mqtt_retain"
	envKeyRefreshAtStart                    string = "refresh_at_start"
	envKeyLogLevel                          string = "log_level"
	envKeyHealthCheckEnabled                string = "health_check_enabled"
	envKeyHealthCheckPort                   string = "health_check_port"
	envKeyHomeAssistantDiscoveryEnabled     string = "home_assistant_discovery_enabled"
	envKeyHomeAssistantDiscoveryPrefix      string = "home_assistant_discovery_prefix"
	envKeyHomeAssistantRemoveRegexpFromName string = "home_assistant_remove_regexp_from_name"
)

var defaultConfig = map[string]interface{}{
	envKeyCameHost:                          undefined,
	envKeyCamePort:                          80,
	envKeyCameUsername:                      "admin",
	envKeyCamePassword:                      "admin",
	envKeyMqttUrl:                           undefined,
	envKeyMqttUsername:                      "",
	envKeyMqttPassword:                      "",
	envKeyMqttTopicPrefix:                   "came",
	envKeyMqttNormalizeTopicName:            true,
	envKeyMqttRetain:                        false,
	envKeyRefreshAtStart:                    true,
	envKeyLogLevel:                          "INFO",
	envKeyHealthCheckEnabled:                false,
	envKeyHealthCheckPort:                   8080,
	envKeyHomeAssistantDiscoveryEnabled:     false,
	envKeyHomeAssistantDiscoveryPrefix:      "homeassistant",
	envKeyHomeAssistantRemoveRegexpFromName: "",
}

// ReadConfig loads the configuration from config.yaml and the environment,
// environment variables taking precedence.
func ReadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	// Set the current directory where the binary is being run.
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	for key, value := range defaultConfig {
		if value != undefined {
			viper.SetDefault(key, value)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional as long as the required fields come
		// from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ReadInConfig error: %w", err)
		}
	}

	for fieldName, defaultValue := range defaultConfig {
		if defaultValue == undefined && !viper.IsSet(fieldName) {
			return nil, fmt.Errorf("required field not found in config: %s", fieldName)
		}
	}

	config := &Config{
		Came: ConfigCame{
			Host:     viper.GetString(envKeyCameHost),
			Port:     viper.GetInt(envKeyCamePort),
			Username: viper.GetString(envKeyCameUsername),
			Password: viper.GetString(envKeyCamePassword),
		},
		Mqtt: ConfigMqtt{
			MqttUrl:             viper.GetString(envKeyMqttUrl),
			Username:            viper.GetString(envKeyMqttUsername),
			Password:            viper.GetString(envKeyMqttPassword),
			TopicPrefix:         viper.GetString(envKeyMqttTopicPrefix),
			NormalizeDeviceName: viper.GetBool(envKeyMqttNormalizeTopicName),
			Retain:              viper.GetBool(envKeyMqttRetain),
		},
		HomeAssistant: ConfigHomeAssistant{
			DiscoveryEnabled:     viper.GetBool(envKeyHomeAssistantDiscoveryEnabled),
			DiscoveryTopicPrefix: viper.GetString(envKeyHomeAssistantDiscoveryPrefix),
			RemoveRegexpFromName: viper.GetString(envKeyHomeAssistantRemoveRegexpFromName),
			CameHost:             viper.GetString(envKeyCameHost),
			Retain:               viper.GetBool(envKeyMqttRetain),
		},
		HealthCheck: HealthCheckConfig{
			Enabled: viper.GetBool(envKeyHealthCheckEnabled),
			Port:    viper.GetInt(envKeyHealthCheckPort),
		},
		RefreshAtStart: viper.GetBool(envKeyRefreshAtStart),
		LogLevel:       viper.GetString(envKeyLogLevel),
	}

	return config, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("%+v\n", c.Came)
}
