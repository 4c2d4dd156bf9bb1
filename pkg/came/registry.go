package came

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// stopGracePeriod bounds how long Stop waits for the poll loop before
	// proceeding with the teardown regardless.
	stopGracePeriod = 5 * time.Second
)

// Registry owns the list of discovered devices and applies incremental
// state patches coming from the gateway's long-poll channel. It runs a
// background poll loop that notifies subscribers once per cycle in which
// anything changed.
type Registry interface {
	Start() error
	Stop() error

	// Devices returns every discovered device.
	Devices() []*Device
	Lights() []*Light
	Openings() []*Opening
	Thermostats() []*Thermostat
	Relays() []*Relay
	DigitalInputs() []*DigitalIn
	AnalogSensors() []*AnalogSensor
	EnergyMeters() []*EnergyMeter

	DeviceByActID(actID int) (*Device, bool)
	DeviceByUniqueID(id string) (*Device, bool)
	DeviceByName(name string) (*Device, bool)
	DevicesByFloor(floorID int) []*Device
	DevicesByRoom(roomID int) []*Device

	// Floors and Rooms expose the plant topology for attribution.
	Floors() ([]Floor, error)
	Rooms() ([]Room, error)

	// Scenarios exposes the scenario manager fed by the same poll channel.
	Scenarios() *ScenarioManager

	// StatusUpdate performs one long-poll cycle and reports whether any
	// device or scenario state changed.
	StatusUpdate(timeout time.Duration) (bool, error)

	// Subscribe registers a callback invoked after every poll cycle that
	// changed something.
	Subscribe(id string, callback func()) error
	Unsubscribe(id string) error
}

type registry struct {
	client       Client
	scenarios    *ScenarioManager
	pollInterval time.Duration

	mu            sync.Mutex
	loaded        bool
	devices       []*Device
	lights        []*Light
	openings      []*Opening
	thermostats   []*Thermostat
	relays        []*Relay
	digitalInputs []*DigitalIn
	analogSensors []*AnalogSensor
	energyMeters  []*EnergyMeter

	callbacksMu sync.Mutex
	callbacks   map[string]func()

	pollDone    chan struct{}
	pollStopped chan struct{}
}

// NewRegistry creates a device registry on top of the given client. Start
// must be called before the registry serves lookups.
func NewRegistry(client Client) Registry {
	return &registry{
		client:       client,
		scenarios:    NewScenarioManager(client),
		pollInterval: time.Second,
		callbacks:    map[string]func(){},
	}
}

func (r *registry) Start() error {
	if _, err := r.reload(); err != nil {
		return err
	}

	r.pollDone = make(chan struct{})
	r.pollStopped = make(chan struct{})
	go r.pollLoop()
	return nil
}

func (r *registry) Stop() error {
	if r.pollDone == nil {
		return nil
	}
	close(r.pollDone)
	select {
	case <-r.pollStopped:
	case <-time.After(stopGracePeriod):
		log.Warn().Msg("Poll loop did not stop within the grace period.")
	}
	r.pollDone = nil
	return nil
}

// pollLoop long-polls the gateway for state changes until Stop is called.
// Transient errors are logged and retried after the poll interval.
func (r *registry) pollLoop() {
	defer close(r.pollStopped)
	log.Info().Msg("Starting status update loop.")
	for {
		select {
		case <-r.pollDone:
			log.Debug().Msg("Status update loop stopped.")
			return
		default:
		}

		changed, err := r.StatusUpdate(0)
		if err != nil {
			if errors.Is(err, ErrConnection) {
				log.Debug().Err(err).Msg("Gateway offline, will reconnect.")
			} else {
				log.Error().Err(err).Msg("Error polling status updates.")
			}
		} else if changed {
			r.notify()
		}

		select {
		case <-r.pollDone:
			log.Debug().Msg("Status update loop stopped.")
			return
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *registry) notify() {
	r.callbacksMu.Lock()
	callbacks := make([]func(), 0, len(r.callbacks))
	for _, callback := range r.callbacks {
		callbacks = append(callbacks, callback)
	}
	r.callbacksMu.Unlock()

	for _, callback := range callbacks {
		callback()
	}
}

func (r *registry) Subscribe(id string, callback func()) error {
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[id]; exists {
		return errors.New("update callback with id " + id + " already exists")
	}
	r.callbacks[id] = callback
	return nil
}

func (r *registry) Unsubscribe(id string) error {
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[id]; !exists {
		return errors.New("update callback with id " + id + " does not exist")
	}
	delete(r.callbacks, id)
	return nil
}

// reload clears the cache and enumerates every declared feature, issuing
// the category specific list request and materializing one device object
// per returned record.
func (r *registry) reload() (int, error) {
	features, err := r.client.GetFeatures()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = nil
	r.lights = nil
	r.openings = nil
	r.thermostats = nil
	r.relays = nil
	r.digitalInputs = nil
	r.analogSensors = nil
	r.energyMeters = nil

	for _, feature := range features {
		if err := r.loadFeature(feature); err != nil {
			return 0, err
		}
	}

	r.loaded = true
	log.Info().
		Int("count", len(r.devices)).
		Strs("features", features).
		Msg("Device list loaded from CAME gateway.")
	return len(r.devices), nil
}

// Feature to list request command name. Most features use the plural form
// while the per-device refresh uses the singular one; that asymmetry is the
// gateway's, not ours.
var featureListCommands = map[string]string{
	FeatureLights:    "light_list_req",
	FeatureOpenings:  "openings_list_req",
	FeatureRelays:    "relays_list_req",
	FeatureThermo:    "thermo_list_req",
	FeatureEnergy:    "meters_list_req",
	FeatureDigitalIn: "digitalin_list_req",
}

func (r *registry) loadFeature(feature string) error {
	if feature == FeatureScenarios {
		// Scenarios are a pseudo-device backed by the scenario manager.
		r.devices = append(r.devices, newDevice(r.client, TypeScenario, DeviceState{
			"act_id": -1,
			"name":   "Scenarios",
		}))
		return r.scenarios.Refresh()
	}

	listCmd, ok := featureListCommands[feature]
	if !ok {
		log.Warn().Str("feature", feature).Msg("Unsupported feature declared by gateway.")
		return nil
	}

	response, err := r.client.ApplicationRequest(Command{
		"cmd_name":        listCmd,
		"topologic_scope": "plant",
	}, strings.TrimSuffix(listCmd, "_req")+"_resp")
	if err != nil {
		return err
	}

	for _, record := range response.Records("array") {
		switch feature {
		case FeatureLights:
			light := newLight(r.client, record)
			r.lights = append(r.lights, light)
			r.devices = append(r.devices, light.Device)
		case FeatureOpenings:
			opening := newOpening(r.client, record)
			r.openings = append(r.openings, opening)
			r.devices = append(r.devices, opening.Device)
		case FeatureRelays:
			relay := newRelay(r.client, record)
			r.relays = append(r.relays, relay)
			r.devices = append(r.devices, relay.Device)
		case FeatureThermo:
			thermostat := newThermostat(r.client, record)
			r.thermostats = append(r.thermostats, thermostat)
			r.devices = append(r.devices, thermostat.Device)
		case FeatureEnergy:
			meter := newEnergyMeter(r.client, record)
			r.energyMeters = append(r.energyMeters, meter)
			r.devices = append(r.devices, meter.Device)
		case FeatureDigitalIn:
			input := newDigitalIn(r.client, record)
			r.digitalInputs = append(r.digitalInputs, input)
			r.devices = append(r.devices, input.Device)
		}
	}

	if feature == FeatureThermo {
		// Thermoregulation responses embed standalone probes that surface
		// as synthetic analog sensors.
		for _, probe := range []string{"temperature", "humidity", "pressure"} {
			for _, record := range response.Records(probe) {
				sensor := newAnalogSensor(r.client, record, "thermo", probe, probe)
				r.analogSensors = append(r.analogSensors, sensor)
				r.devices = append(r.devices, sensor.Device)
			}
		}
	}

	return nil
}

func (r *registry) StatusUpdate(timeout time.Duration) (bool, error) {
	r.mu.Lock()
	loaded := r.loaded
	r.mu.Unlock()
	if !loaded {
		if _, err := r.reload(); err != nil {
			return false, err
		}
		return true, nil
	}

	cmd := Command{"cmd_name": cmdStatusUpdate}
	if timeout > 0 {
		cmd["timeout"] = int(timeout.Seconds())
	}
	response, err := r.client.ApplicationRequest(cmd, rspStatusUpdate)
	if err != nil {
		return false, err
	}

	updated := false
	for _, fragment := range response.Fragments() {
		cmdName := stringValue(fragment, "cmd_name")

		if strings.HasPrefix(cmdName, "scenario_") {
			updated = r.scenarios.handleUpdate(fragment) || updated
			continue
		}

		if cmdName == indPlantUpdate {
			// Topology changed: discard the whole cache and reload.
			log.Info().Msg("Plant update detected, reloading device list.")
			r.mu.Lock()
			r.loaded = false
			r.mu.Unlock()
			if _, err := r.reload(); err != nil {
				return false, err
			}
			return true, nil
		}

		actID := intValue(fragment, "act_id")
		if actID == 0 {
			continue
		}
		device, found := r.DeviceByActID(actID)
		if !found {
			log.Debug().Int("actId", actID).Msg("Status fragment for unknown device.")
			continue
		}
		updated = device.UpdateState(fragment) || updated
	}

	return updated, nil
}

func (r *registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	devices := make([]*Device, len(r.devices))
	copy(devices, r.devices)
	return devices
}

func (r *registry) Lights() []*Light {
	r.mu.Lock()
	defer r.mu.Unlock()
	lights := make([]*Light, len(r.lights))
	copy(lights, r.lights)
	return lights
}

func (r *registry) Openings() []*Opening {
	r.mu.Lock()
	defer r.mu.Unlock()
	openings := make([]*Opening, len(r.openings))
	copy(openings, r.openings)
	return openings
}

func (r *registry) Thermostats() []*Thermostat {
	r.mu.Lock()
	defer r.mu.Unlock()
	thermostats := make([]*Thermostat, len(r.thermostats))
	copy(thermostats, r.thermostats)
	return thermostats
}

func (r *registry) Relays() []*Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	relays := make([]*Relay, len(r.relays))
	copy(relays, r.relays)
	return relays
}

func (r *registry) DigitalInputs() []*DigitalIn {
	r.mu.Lock()
	defer r.mu.Unlock()
	inputs := make([]*DigitalIn, len(r.digitalInputs))
	copy(inputs, r.digitalInputs)
	return inputs
}

func (r *registry) AnalogSensors() []*AnalogSensor {
	r.mu.Lock()
	defer r.mu.Unlock()
	sensors := make([]*AnalogSensor, len(r.analogSensors))
	copy(sensors, r.analogSensors)
	return sensors
}

func (r *registry) EnergyMeters() []*EnergyMeter {
	r.mu.Lock()
	defer r.mu.Unlock()
	meters := make([]*EnergyMeter, len(r.energyMeters))
	copy(meters, r.energyMeters)
	return meters
}

func (r *registry) DeviceByActID(actID int) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, device := range r.devices {
		if device.ActID() == actID {
			return device, true
		}
	}
	return nil, false
}

func (r *registry) DeviceByUniqueID(id string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, device := range r.devices {
		if device.UniqueID() == id {
			return device, true
		}
	}
	return nil, false
}

func (r *registry) DeviceByName(name string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, device := range r.devices {
		if device.Name() == name {
			return device, true
		}
	}
	return nil, false
}

func (r *registry) DevicesByFloor(floorID int) []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var devices []*Device
	for _, device := range r.devices {
		if device.FloorID() == floorID {
			devices = append(devices, device)
		}
	}
	return devices
}

func (r *registry) DevicesByRoom(roomID int) []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var devices []*Device
	for _, device := range r.devices {
		if device.RoomID() == roomID {
			devices = append(devices, device)
		}
	}
	return devices
}

func (r *registry) Floors() ([]Floor, error) {
	return r.client.GetFloors()
}

func (r *registry) Rooms() ([]Room, error) {
	return r.client.GetRooms()
}

func (r *registry) Scenarios() *ScenarioManager {
	return r.scenarios
}
