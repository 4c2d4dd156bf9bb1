package came

import (
	"github.com/rs/zerolog/log"
)

// Thermostat modes.
const (
	ThermoModeOff    = 0
	ThermoModeManual = 1
	ThermoModeAuto   = 2
	ThermoModeJolly  = 3
)

// Thermostat seasons.
const (
	SeasonOff    = "plant_off"
	SeasonWinter = "winter"
	SeasonSummer = "summer"
)

// Thermostat fan speeds.
const (
	FanSpeedOff    = 0
	FanSpeedSlow   = 1
	FanSpeedMedium = 2
	FanSpeedFast   = 3
	FanSpeedAuto   = 4
)

// Thermostat drives a thermoregulation zone. Temperatures travel on the
// wire in tenths of a degree Celsius.
type Thermostat struct {
	*Device
}

func newThermostat(client Client, info DeviceState) *Thermostat {
	device := newDevice(client, TypeThermostat, info)
	device.updateCmdBase = "thermo"
	return &Thermostat{Device: device}
}

func (t *Thermostat) Mode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return intValue(t.info, "mode")
}

func (t *Thermostat) Season() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stringValue(t.info, "season")
}

// CurrentTemperature returns the measured temperature in °C.
func (t *Thermostat) CurrentTemperature() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	temp, ok := floatValue(t.info, "temp")
	if !ok {
		temp, ok = floatValue(t.info, "temp_dec")
	}
	if !ok {
		return 0, false
	}
	return temp / 10, true
}

// TargetTemperature returns the setpoint in °C.
func (t *Thermostat) TargetTemperature() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	temp, ok := floatValue(t.info, "set_point")
	if !ok {
		return 0, false
	}
	return temp / 10, true
}

func (t *Thermostat) FanSpeed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return intValue(t.info, "fan_speed")
}

// TargetHumidity returns the dehumidifier setpoint when the zone has one.
func (t *Thermostat) TargetHumidity() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dehumidifier, ok := t.info["dehumidifier"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	if _, present := dehumidifier["setpoint"]; !present {
		return 0, false
	}
	return intValue(dehumidifier, "setpoint"), true
}

// ZoneUpdate carries the fields of a zone reconfiguration; nil fields keep
// the current value.
type ZoneUpdate struct {
	Mode              *int
	TargetTemperature *float64
	Season            *string
	FanSpeed          *int
}

// SetZoneConfig pushes a zone reconfiguration to the gateway. At least one
// field must be set.
func (t *Thermostat) SetZoneConfig(update ZoneUpdate) error {
	actID, err := t.requireActID()
	if err != nil {
		return err
	}

	mode := t.Mode()
	if update.Mode != nil {
		mode = *update.Mode
	}

	var setPoint int
	if update.TargetTemperature != nil {
		setPoint = int(*update.TargetTemperature * 10)
	} else {
		t.mu.Lock()
		setPoint = intValue(t.info, "set_point")
		t.mu.Unlock()
	}

	cmd := Command{
		"cmd_name":       cmdThermoZone,
		"act_id":         actID,
		"mode":           mode,
		"set_point":      setPoint,
		"extended_infos": 0,
	}
	if update.Season != nil {
		cmd["extended_infos"] = 1
		cmd["season"] = *update.Season
	}
	if update.FanSpeed != nil {
		cmd["extended_infos"] = 1
		cmd["fan_speed"] = *update.FanSpeed
	}

	log.Debug().
		Str("thermostat", t.Name()).
		Int("mode", mode).
		Int("setPoint", setPoint).
		Msg("Setting new thermostat zone config.")
	_, err = t.client.ApplicationRequest(cmd, genericReplyName)
	return err
}

// SetTargetTemperature sets the setpoint in °C.
func (t *Thermostat) SetTargetTemperature(celsius float64) error {
	return t.SetZoneConfig(ZoneUpdate{TargetTemperature: &celsius})
}

func (t *Thermostat) SetMode(mode int) error {
	return t.SetZoneConfig(ZoneUpdate{Mode: &mode})
}

func (t *Thermostat) SetSeason(season string) error {
	return t.SetZoneConfig(ZoneUpdate{Season: &season})
}

func (t *Thermostat) SetFanSpeed(speed int) error {
	return t.SetZoneConfig(ZoneUpdate{FanSpeed: &speed})
}
