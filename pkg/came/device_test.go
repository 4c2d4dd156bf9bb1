package came

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceUniqueID(t *testing.T) {
	device := newDevice(nil, TypeLight, DeviceState{
		"act_id": 123,
		"name":   "Lampadario Salotto!",
	})
	assert.Equal(t, "lampadario_salotto_123", device.UniqueID())
}

func TestDeviceUniqueIDCapsNamePart(t *testing.T) {
	device := newDevice(nil, TypeLight, DeviceState{
		"act_id": 7,
		"name":   "A very long device name beyond any limit",
	})
	assert.Equal(t, "a_very_long_device_n_7", device.UniqueID())
}

func TestDeviceUpdateStateReportsChanges(t *testing.T) {
	device := newDevice(nil, TypeLight, DeviceState{
		"act_id": 12,
		"name":   "Kitchen",
		"status": 0,
	})

	changed := device.UpdateState(DeviceState{
		"cmd_name": "light_switch_ind",
		"act_id":   12,
		"name":     "Kitchen",
		"status":   1,
	})
	assert.True(t, changed)
	assert.Equal(t, 1, device.Status())

	// Same payload again: bag replaced, but nothing changed.
	changed = device.UpdateState(DeviceState{
		"cmd_name": "light_switch_ind",
		"act_id":   12,
		"name":     "Kitchen",
		"status":   1,
	})
	assert.False(t, changed)
}

func TestDeviceUpdateStateIgnoresOtherRoutingIDs(t *testing.T) {
	device := newDevice(nil, TypeLight, DeviceState{
		"act_id": 12,
		"status": 0,
	})

	changed := device.UpdateState(DeviceState{"act_id": 13, "status": 1})
	assert.False(t, changed)
	assert.Equal(t, 0, device.Status())
}

func TestDeviceUpdateStateToleratesJSONNumbers(t *testing.T) {
	// Numbers decoded from the wire arrive as float64.
	var fragment DeviceState
	require.NoError(t, json.Unmarshal([]byte(`{"act_id":12,"status":1}`), &fragment))

	device := newDevice(nil, TypeLight, DeviceState{"act_id": 12, "status": 0})
	assert.True(t, device.UpdateState(fragment))
	assert.Equal(t, 1, device.Status())
	assert.Equal(t, 12, device.ActID())
}

func TestOpeningUsesOwnRoutingKey(t *testing.T) {
	opening := newOpening(nil, DeviceState{
		"open_act_id": 55,
		"name":        "Shutter",
	})
	assert.Equal(t, 55, opening.ActID())
	assert.Equal(t, "shutter_55", opening.UniqueID())

	// Fragments carry act_id even for openings.
	changed := opening.UpdateState(DeviceState{"act_id": 55, "status": OpeningStatusOpen})
	assert.True(t, changed)
	assert.Equal(t, OpeningStatusOpen, opening.Status())
}

func TestLightCapabilities(t *testing.T) {
	onOff := newLight(nil, DeviceState{"act_id": 1, "type": LightKindOnOff})
	assert.False(t, onOff.SupportsBrightness())
	assert.False(t, onOff.SupportsColor())
	assert.Equal(t, 100, onOff.Brightness())

	dimmer := newLight(nil, DeviceState{"act_id": 2, "type": LightKindDimmer, "perc": 60})
	assert.True(t, dimmer.SupportsBrightness())
	assert.False(t, dimmer.SupportsColor())
	assert.Equal(t, 60, dimmer.Brightness())

	rgb := newLight(nil, DeviceState{
		"act_id": 3,
		"type":   LightKindRGB,
		"rgb":    []interface{}{float64(10), float64(20), float64(30)},
	})
	assert.True(t, rgb.SupportsColor())
	assert.Equal(t, [3]int{10, 20, 30}, rgb.RGB())
}

func TestLightSwitchCommands(t *testing.T) {
	gateway := newFakeGateway(t)
	light := newLight(gateway.newClient(), DeviceState{
		"act_id": 12,
		"name":   "Kitchen",
		"type":   LightKindDimmer,
	})

	require.NoError(t, light.TurnOn())
	require.NoError(t, light.TurnOff())
	require.NoError(t, light.SetBrightness(150)) // clamped to 100
	assert.Equal(t, 3, gateway.commandCount(cmdLightSwitch))
}

func TestSetBrightnessOnPlainLightIsNoop(t *testing.T) {
	gateway := newFakeGateway(t)
	light := newLight(gateway.newClient(), DeviceState{
		"act_id": 12,
		"type":   LightKindOnOff,
	})

	require.NoError(t, light.SetBrightness(50))
	assert.Equal(t, 0, gateway.commandCount(cmdLightSwitch))
}

func TestThermostatTemperaturesAreTenths(t *testing.T) {
	zone := newThermostat(nil, DeviceState{
		"act_id":    21,
		"temp":      215,
		"set_point": 210,
		"mode":      ThermoModeAuto,
		"season":    SeasonWinter,
	})

	current, ok := zone.CurrentTemperature()
	require.True(t, ok)
	assert.InDelta(t, 21.5, current, 0.001)

	target, ok := zone.TargetTemperature()
	require.True(t, ok)
	assert.InDelta(t, 21.0, target, 0.001)

	assert.Equal(t, ThermoModeAuto, zone.Mode())
	assert.Equal(t, SeasonWinter, zone.Season())
}

func TestThermostatZoneConfigCommand(t *testing.T) {
	gateway := newFakeGateway(t)
	zone := newThermostat(gateway.newClient(), DeviceState{
		"act_id": 21,
		"mode":   ThermoModeManual,
	})

	require.NoError(t, zone.SetTargetTemperature(21.5))
	require.NoError(t, zone.SetSeason(SeasonSummer))
	assert.Equal(t, 2, gateway.commandCount(cmdThermoZone))
}

func TestRelayAndDigitalIn(t *testing.T) {
	gateway := newFakeGateway(t)
	relay := newRelay(gateway.newClient(), DeviceState{"act_id": 30, "name": "Pump"})

	require.NoError(t, relay.TurnOn())
	require.NoError(t, relay.TurnOff())
	assert.Equal(t, 2, gateway.commandCount(cmdRelayActivation))

	input := newDigitalIn(nil, DeviceState{"act_id": 31, "status": 1})
	assert.True(t, input.IsOn())
}

func TestEnergyMeterReadings(t *testing.T) {
	meter := newEnergyMeter(nil, DeviceState{
		"act_id":         41,
		"name":           "Mains",
		"instant_power":  1234.5,
		"produced":       0,
		"last_24h_avg":   900,
		"last_month_avg": 850,
	})

	power, ok := meter.InstantPower()
	require.True(t, ok)
	assert.InDelta(t, 1234.5, power, 0.001)
	assert.False(t, meter.Produced())
	assert.Equal(t, "W", meter.Unit())
}
