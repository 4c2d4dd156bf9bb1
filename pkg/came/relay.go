package came

import (
	"github.com/rs/zerolog/log"
)

// Relay statuses for the wanted_status field of relay_activation_req.
const (
	RelayStatusOff = 0
	RelayStatusOn  = 1
)

// Relay drives a generic relay output.
type Relay struct {
	*Device
}

func newRelay(client Client, info DeviceState) *Relay {
	device := newDevice(client, TypeRelay, info)
	device.updateCmdBase = "relay"
	return &Relay{Device: device}
}

func (r *Relay) TurnOn() error {
	return r.switchState(RelayStatusOn)
}

func (r *Relay) TurnOff() error {
	return r.switchState(RelayStatusOff)
}

func (r *Relay) switchState(status int) error {
	actID, err := r.requireActID()
	if err != nil {
		return err
	}

	log.Debug().
		Str("relay", r.Name()).
		Int("wantedStatus", status).
		Msg("Setting new relay state.")
	_, err = r.client.ApplicationRequest(Command{
		"cmd_name":      cmdRelayActivation,
		"act_id":        actID,
		"wanted_status": status,
	}, genericReplyName)
	return err
}
