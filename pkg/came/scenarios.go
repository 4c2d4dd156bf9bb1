package came

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ScenarioManager maintains the remote scenario list and exposes the
// scenario lifecycle operations. The list is refreshed in full when the
// gateway pushes a "scenario list changed" notification and patched in place
// on single-scenario status changes.
type ScenarioManager struct {
	client Client

	mu        sync.Mutex
	scenarios []Scenario
}

func NewScenarioManager(client Client) *ScenarioManager {
	return &ScenarioManager{client: client}
}

// List returns the cached scenarios.
func (m *ScenarioManager) List() []Scenario {
	m.mu.Lock()
	defer m.mu.Unlock()
	scenarios := make([]Scenario, len(m.scenarios))
	copy(scenarios, m.scenarios)
	return scenarios
}

// Get returns a cached scenario by id.
func (m *ScenarioManager) Get(id int) (Scenario, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, scenario := range m.scenarios {
		if scenario.ID == id {
			return scenario, true
		}
	}
	return Scenario{}, false
}

// Refresh reloads the scenario list from the gateway.
func (m *ScenarioManager) Refresh() error {
	response, err := wrapResponse[scenarioListResponse](
		m.client.ApplicationRequest(Command{"cmd_name": cmdScenarioList}, respScenarioList))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.scenarios = response.Array
	m.mu.Unlock()

	log.Debug().Int("count", len(response.Array)).Msg("Scenario list refreshed.")
	return nil
}

// Activate runs a scenario. The gateway is known to reply with the tag
// "generic_reply" instead of the documented one; that quirk is tolerated as
// success with a warning rather than treated as a failure.
func (m *ScenarioManager) Activate(id int) error {
	_, err := m.client.ApplicationRequest(Command{
		"cmd_name": cmdScenarioActivation,
		"id":       id,
	}, rspScenarioActivation)
	if err != nil {
		var protocolErr *ProtocolError
		if errors.As(err, &protocolErr) && protocolErr.Actual == genericReplyName {
			log.Warn().
				Int("scenarioId", id).
				Msg("Scenario activation answered with a generic reply, assuming success.")
			return nil
		}
		return err
	}
	return nil
}

// Create starts the recording of a new user scenario with the given name.
func (m *ScenarioManager) Create(name string) error {
	log.Debug().Str("name", name).Msg("Starting scenario recording.")
	_, err := m.client.ApplicationRequest(Command{
		"cmd_name": cmdScenarioCreate,
		"name":     name,
	}, ackScenarioCreate)
	return err
}

// Delete removes a user scenario.
func (m *ScenarioManager) Delete(id int) error {
	log.Info().Int("scenarioId", id).Msg("Deleting scenario.")
	_, err := m.client.ApplicationRequest(Command{
		"cmd_name": cmdScenarioDelete,
		"id":       id,
	}, respScenarioDelete)
	return err
}

// handleUpdate routes a scenario-prefixed status fragment: a status change
// is patched in place, a list change triggers a full refresh. It reports
// whether the cached list changed.
func (m *ScenarioManager) handleUpdate(fragment DeviceState) bool {
	switch stringValue(fragment, "cmd_name") {
	case indScenarioStatus:
		return m.patchStatus(fragment)
	case indScenarioUser:
		action := stringValue(fragment, "action")
		if action == "add" || action == "create" || action == "delete" {
			log.Info().Str("action", action).Msg("Scenario list changed, refreshing.")
			if err := m.Refresh(); err != nil {
				log.Error().Err(err).Msg("Error refreshing scenario list.")
				return false
			}
			return true
		}
	}
	return false
}

func (m *ScenarioManager) patchStatus(fragment DeviceState) bool {
	id := intValue(fragment, "id")
	status := ScenarioStatus(intValue(fragment, "scenario_status"))

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.scenarios {
		if m.scenarios[i].ID != id {
			continue
		}
		if m.scenarios[i].Status == status {
			return false
		}
		log.Debug().
			Int("scenarioId", id).
			Str("status", status.String()).
			Msg("Scenario status changed.")
		m.scenarios[i].Status = status
		return true
	}
	log.Debug().Int("scenarioId", id).Msg("Status update for unknown scenario.")
	return false
}
