package came

// DigitalIn is a digital input (technical alarm contact), read only.
type DigitalIn struct {
	*Device
}

func newDigitalIn(client Client, info DeviceState) *DigitalIn {
	device := newDevice(client, TypeDigitalIn, info)
	device.updateCmdBase = "digitalin"
	return &DigitalIn{Device: device}
}

// IsOn reports whether the input contact is active.
func (d *DigitalIn) IsOn() bool {
	return d.Status() == 1
}

// AnalogSensor is a read-only measurement embedded in another record, e.g.
// the temperature, humidity or pressure probe of a thermoregulation zone.
type AnalogSensor struct {
	*Device
}

func newAnalogSensor(client Client, info DeviceState, cmdBase, field, class string) *AnalogSensor {
	device := newDevice(client, TypeAnalogSensor, info)
	device.updateCmdBase = cmdBase
	device.updateField = field
	if class != "" {
		device.class = class
	}
	return &AnalogSensor{Device: device}
}

// Value returns the current measured value.
func (s *AnalogSensor) Value() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return floatValue(s.info, "value")
}

// Unit returns the unit of measurement reported by the gateway.
func (s *AnalogSensor) Unit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stringValue(s.info, "unit")
}

// EnergyMeter is an energy measurement device reporting instantaneous power
// plus production and rolling average statistics.
type EnergyMeter struct {
	*Device
}

func newEnergyMeter(client Client, info DeviceState) *EnergyMeter {
	device := newDevice(client, TypeEnergySensor, info)
	device.updateCmdBase = "meters"
	return &EnergyMeter{Device: device}
}

// InstantPower returns the instantaneous power in Watts.
func (m *EnergyMeter) InstantPower() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return floatValue(m.info, "instant_power")
}

// Produced reports whether the meter measures production rather than
// consumption.
func (m *EnergyMeter) Produced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return intValue(m.info, "produced") != 0
}

// Last24hAverage returns the rolling daily average power.
func (m *EnergyMeter) Last24hAverage() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return floatValue(m.info, "last_24h_avg")
}

// LastMonthAverage returns the rolling monthly average power.
func (m *EnergyMeter) LastMonthAverage() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return floatValue(m.info, "last_month_avg")
}

// Unit returns the power unit, defaulting to Watts.
func (m *EnergyMeter) Unit() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit := stringValue(m.info, "unit")
	if unit == "" {
		return "W"
	}
	return unit
}
