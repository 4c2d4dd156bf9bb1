package came

import (
	"github.com/rs/zerolog/log"
)

// Light kinds as reported in the record's "type" field.
const (
	LightKindOnOff  = "STEP_STEP"
	LightKindDimmer = "DIMMER"
	LightKindRGB    = "RGB"
)

// Light statuses for the wanted_status field of light_switch_req.
const (
	LightStatusOff  = 0
	LightStatusOn   = 1
	LightStatusAuto = 4
)

// Light drives a gateway light device.
type Light struct {
	*Device
}

func newLight(client Client, info DeviceState) *Light {
	device := newDevice(client, TypeLight, info)
	device.updateCmdBase = "light"
	return &Light{Device: device}
}

// Kind returns the light kind (STEP_STEP, DIMMER or RGB).
func (l *Light) Kind() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return stringValue(l.info, "type")
}

// SupportsBrightness reports whether the light is dimmable.
func (l *Light) SupportsBrightness() bool {
	kind := l.Kind()
	return kind == LightKindDimmer || kind == LightKindRGB
}

// SupportsColor reports whether the light accepts RGB values.
func (l *Light) SupportsColor() bool {
	return l.Kind() == LightKindRGB
}

// Brightness returns the light brightness in percent (0-100).
func (l *Light) Brightness() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.info["perc"]; !ok {
		return 100
	}
	return intValue(l.info, "perc")
}

// RGB returns the last reported color, defaulting to a grey scaled from the
// brightness when the gateway omits the rgb field.
func (l *Light) RGB() [3]int {
	perc := l.Brightness() * 255 / 100

	l.mu.Lock()
	defer l.mu.Unlock()
	raw, ok := l.info["rgb"].([]interface{})
	if !ok || len(raw) < 3 {
		return [3]int{perc, perc, perc}
	}
	return [3]int{toInt(raw[0]), toInt(raw[1]), toInt(raw[2])}
}

func (l *Light) TurnOn() error {
	return l.switchState(LightStatusOn, nil, nil)
}

func (l *Light) TurnOff() error {
	return l.switchState(LightStatusOff, nil, nil)
}

// TurnAuto puts the light into the gateway's automatic mode.
func (l *Light) TurnAuto() error {
	return l.switchState(LightStatusAuto, nil, nil)
}

// SetBrightness sets the brightness in percent, clamped to 0-100.
func (l *Light) SetBrightness(brightness int) error {
	if !l.SupportsBrightness() {
		log.Debug().Str("light", l.Name()).Msg("Light does not support brightness.")
		return nil
	}
	brightness = clamp(brightness, 0, 100)
	return l.switchState(l.Status(), &brightness, nil)
}

// SetRGB sets the color of an RGB light, each channel clamped to 0-255.
func (l *Light) SetRGB(r, g, b int) error {
	if !l.SupportsColor() {
		log.Debug().Str("light", l.Name()).Msg("Light does not support color.")
		return nil
	}
	rgb := []int{clamp(r, 0, 255), clamp(g, 0, 255), clamp(b, 0, 255)}
	return l.switchState(l.Status(), nil, rgb)
}

func (l *Light) switchState(status int, brightness *int, rgb []int) error {
	actID, err := l.requireActID()
	if err != nil {
		return err
	}

	cmd := Command{
		"cmd_name":      cmdLightSwitch,
		"act_id":        actID,
		"wanted_status": status,
	}
	if brightness != nil {
		cmd["perc"] = *brightness
	}
	if rgb != nil {
		cmd["rgb"] = rgb
	}

	log.Debug().
		Str("light", l.Name()).
		Int("wantedStatus", status).
		Msg("Setting new light state.")
	_, err = l.client.ApplicationRequest(cmd, genericReplyName)
	return err
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
