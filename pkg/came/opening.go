package came

import (
	"github.com/rs/zerolog/log"
)

// Opening statuses for the wanted_status field of opening_move_req.
const (
	OpeningStatusStop  = 0
	OpeningStatusOpen  = 1
	OpeningStatusClose = 2
)

// Opening drives a cover, shutter or gate. Opening records use open_act_id
// as their routing key instead of act_id.
type Opening struct {
	*Device
}

func newOpening(client Client, info DeviceState) *Opening {
	device := newDevice(client, TypeOpening, info)
	device.actIDKey = "open_act_id"
	device.updateCmdBase = "opening"
	return &Opening{Device: device}
}

func (o *Opening) Open() error {
	return o.move(OpeningStatusOpen)
}

func (o *Opening) Close() error {
	return o.move(OpeningStatusClose)
}

func (o *Opening) Stop() error {
	return o.move(OpeningStatusStop)
}

func (o *Opening) move(status int) error {
	actID, err := o.requireActID()
	if err != nil {
		return err
	}

	log.Debug().
		Str("opening", o.Name()).
		Int("wantedStatus", status).
		Msg("Moving opening.")
	_, err = o.client.ApplicationRequest(Command{
		"cmd_name":      cmdOpeningMove,
		"act_id":        actID,
		"wanted_status": status,
	}, genericReplyName)
	return err
}
