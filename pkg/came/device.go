package came

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/lcarbonaro/came-mqtt/pkg/utils"
	"github.com/rs/zerolog/log"
)

// DeviceType is the vendor type tag for a device record.
type DeviceType int

const (
	TypeEnergySensor DeviceType = -2
	TypeAnalogSensor DeviceType = -1
	TypeLight        DeviceType = 0
	TypeOpening      DeviceType = 1
	TypeThermostat   DeviceType = 2
	TypeScenario     DeviceType = 4
	TypeRelay        DeviceType = 11
	TypeDigitalIn    DeviceType = 14
)

func (t DeviceType) String() string {
	switch t {
	case TypeEnergySensor:
		return "energy_sensor"
	case TypeAnalogSensor:
		return "analog_sensor"
	case TypeLight:
		return "light"
	case TypeOpening:
		return "opening"
	case TypeThermostat:
		return "thermostat"
	case TypeScenario:
		return "scenario"
	case TypeRelay:
		return "relay"
	case TypeDigitalIn:
		return "digital_input"
	}
	return "unknown"
}

// DeviceState is the free-form attribute bag the gateway reports for a
// device: status, percentage, rgb, setpoints and whatever else the record
// carries.
type DeviceState map[string]interface{}

// Device is a discovered gateway device. Devices are created once per
// discovery cycle and mutated in place by incoming state fragments; they are
// only dropped by a full device list reload.
type Device struct {
	client Client
	typeID DeviceType
	class  string

	// actIDKey is the bag key holding the action id routing key. Openings
	// use open_act_id instead of act_id.
	actIDKey string

	// updateCmdBase and updateField drive the per-device forced refresh,
	// e.g. "light" issues light_list_req and reads back "array".
	updateCmdBase string
	updateField   string

	mu   sync.Mutex
	info DeviceState
}

func newDevice(client Client, typeID DeviceType, info DeviceState) *Device {
	return &Device{
		client:        client,
		typeID:        typeID,
		class:         typeID.String(),
		actIDKey:      "act_id",
		updateCmdBase: "",
		updateField:   "array",
		info:          info,
	}
}

// Type returns the vendor type tag.
func (d *Device) Type() DeviceType {
	return d.typeID
}

// Class returns the device class used for host platform attribution, the
// type name unless a sensor kind overrides it.
func (d *Device) Class() string {
	return d.class
}

func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, _ := d.info["name"].(string)
	return name
}

// ActID returns the numeric action id used as routing key for commands, or
// zero when the device is unmanaged in this installation.
func (d *Device) ActID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return intValue(d.info, d.actIDKey)
}

func (d *Device) FloorID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return intValue(d.info, "floor_ind")
}

func (d *Device) RoomID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return intValue(d.info, "room_ind")
}

// Status returns the last known raw status value.
func (d *Device) Status() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return intValue(d.info, "status")
}

// UniqueID derives a stable identifier from the sanitized display name and
// the action id, e.g. "salotto_123". Renaming the device on the gateway
// changes the identifier; that is a known limitation of the protocol.
func (d *Device) UniqueID() string {
	namePart := utils.SanitizeName(d.Name())
	if len(namePart) > 20 {
		namePart = namePart[:20]
	}
	return namePart + "_" + strconv.Itoa(d.ActID())
}

// State returns a copy of the attribute bag.
func (d *Device) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := make(DeviceState, len(d.info))
	for key, value := range d.info {
		state[key] = value
	}
	return state
}

// UpdateState merges an incoming state fragment into the device. The
// fragment only applies when its routing id matches; on match the whole
// attribute bag is replaced and the return value reports whether any field
// actually changed, which callers use purely to decide whether to notify
// observers.
func (d *Device) UpdateState(state DeviceState) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if intValue(state, "act_id") != intValue(d.info, d.actIDKey) {
		return false
	}

	delete(state, "cmd_name")

	changed := false
	for key, value := range state {
		if !reflect.DeepEqual(d.info[key], value) {
			changed = true
			break
		}
	}
	if changed {
		log.Debug().
			Str("device", d.typeID.String()).
			Str("name", stringValue(state, "name")).
			Int("actId", intValue(state, "act_id")).
			Msg("Device state changed.")
	}

	d.info = state
	return changed
}

// requireActID returns the action id or ErrUnmanagedDevice when the device
// lacks one. Actuation methods call this before building any request.
func (d *Device) requireActID() (int, error) {
	actID := d.ActID()
	if actID == 0 {
		return 0, ErrUnmanagedDevice
	}
	return actID, nil
}

// Refresh forces a reload of this single device's state from the gateway.
func (d *Device) Refresh() error {
	actID, err := d.requireActID()
	if err != nil {
		return err
	}

	response, err := d.client.ApplicationRequest(Command{
		"cmd_name":        d.updateCmdBase + "_list_req",
		"topologic_scope": "act",
		"value":           actID,
	}, d.updateCmdBase+"_list_resp")
	if err != nil {
		return err
	}

	for _, record := range response.Records(d.updateField) {
		if intValue(record, "act_id") == actID {
			d.UpdateState(record)
			return nil
		}
	}

	log.Warn().
		Str("device", d.Name()).
		Int("actId", actID).
		Msg("Forced update did not find the device in the response.")
	return nil
}

// Attribute bag helpers. The gateway reports numbers as JSON floats, so
// reads tolerate every numeric shape.

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return 0
}

func intValue(state map[string]interface{}, key string) int {
	return toInt(state[key])
}

func floatValue(state map[string]interface{}, key string) (float64, bool) {
	switch v := state[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func stringValue(state map[string]interface{}, key string) string {
	s, _ := state[key].(string)
	return s
}
