package came

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Session layer command tags.
const (
	cmdRegistration  = "sl_registration_req"
	ackRegistration  = "sl_registration_ack"
	cmdKeepAlive     = "sl_keep_alive_req"
	ackKeepAlive     = "sl_keep_alive_ack"
	cmdData          = "sl_data_req"
	cmdLogout        = "sl_logout_req"
	genericReplyName = "generic_reply"
)

// Application layer command names. Every request name has a documented
// response tag that the client validates.
const (
	cmdFeatureList  = "feature_list_req"
	respFeatureList = "feature_list_resp"
	cmdFloorList    = "floor_list_req"
	respFloorList   = "floor_list_resp"
	cmdRoomList     = "room_list_req"
	respRoomList    = "room_list_resp"
	cmdStatusUpdate = "status_update_req"
	rspStatusUpdate = "status_update_resp"

	cmdLightSwitch     = "light_switch_req"
	cmdOpeningMove     = "opening_move_req"
	cmdRelayActivation = "relay_activation_req"
	cmdThermoZone      = "thermo_zone_config_req"

	cmdScenarioList       = "scenarios_list_req"
	respScenarioList      = "scenarios_list_resp"
	cmdScenarioActivation = "scenario_activation_req"
	rspScenarioActivation = "scenario_activation_resp"
	cmdScenarioCreate     = "scenario_registration_start"
	ackScenarioCreate     = "scenario_registration_start_ack"
	cmdScenarioDelete     = "scenario_delete_req"
	respScenarioDelete    = "scenario_delete_resp"

	indPlantUpdate    = "plant_update_ind"
	indScenarioStatus = "scenario_status_ind"
	indScenarioUser   = "scenario_user_ind"
)

// Features the gateway can declare in feature_list_resp.
const (
	FeatureLights    = "lights"
	FeatureOpenings  = "openings"
	FeatureRelays    = "relays"
	FeatureThermo    = "thermoregulation"
	FeatureEnergy    = "energy"
	FeatureDigitalIn = "digitalin"
	FeatureScenarios = "scenarios"
)

// Command is an application layer message, keyed by cmd_name. The protocol
// is an open attribute bag so commands stay maps rather than fixed structs.
type Command map[string]interface{}

// Response is a decoded gateway JSON response.
type Response map[string]interface{}

// Tag returns the application level response tag.
func (r Response) Tag() string {
	name, _ := r["cmd_name"].(string)
	return name
}

// Fragments returns the state update fragments of a status_update_resp.
func (r Response) Fragments() []DeviceState {
	raw, ok := r["result"].([]interface{})
	if !ok {
		return nil
	}
	fragments := make([]DeviceState, 0, len(raw))
	for _, item := range raw {
		if fragment, ok := item.(map[string]interface{}); ok {
			fragments = append(fragments, DeviceState(fragment))
		}
	}
	return fragments
}

// Records returns the list of device records under the given response field,
// tolerating the gateway returning a single object instead of a list.
func (r Response) Records(field string) []DeviceState {
	switch value := r[field].(type) {
	case []interface{}:
		records := make([]DeviceState, 0, len(value))
		for _, item := range value {
			if record, ok := item.(map[string]interface{}); ok {
				records = append(records, DeviceState(record))
			}
		}
		return records
	case map[string]interface{}:
		return []DeviceState{DeviceState(value)}
	default:
		return nil
	}
}

type featureListResponse struct {
	Swver   string   `mapstructure:"swver"`
	Serial  string   `mapstructure:"serial"`
	Keycode string   `mapstructure:"keycode"`
	List    []string `mapstructure:"list"`
}

type floorListResponse struct {
	FloorList []Floor `mapstructure:"floor_list"`
}

type roomListResponse struct {
	RoomList []Room `mapstructure:"room_list"`
}

type scenarioListResponse struct {
	Array []Scenario `mapstructure:"array"`
}

// wrapResponse decodes a generic gateway response into the given struct.
func wrapResponse[T any](response Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}

	res := new(T)
	config := &mapstructure.DecoderConfig{
		Result:           res,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, fmt.Errorf("error building decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(response)); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return res, nil
}
