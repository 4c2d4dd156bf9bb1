package came

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScenarioFixture(t *testing.T) (*ScenarioManager, *fakeGateway) {
	gateway := newFakeGateway(t)
	gateway.scenarios = []map[string]interface{}{
		{"id": 1, "name": "All off", "scenario_status": 0, "user-defined": 1},
		{"id": 2, "name": "Movie night", "scenario_status": 0, "user-defined": 1},
	}

	manager := NewScenarioManager(gateway.newClient())
	require.NoError(t, manager.Refresh())
	return manager, gateway
}

func TestScenarioRefreshAndGet(t *testing.T) {
	manager, _ := newScenarioFixture(t)

	scenarios := manager.List()
	require.Len(t, scenarios, 2)
	assert.Equal(t, "All off", scenarios[0].Name)
	assert.True(t, scenarios[0].UserDefined)
	assert.Equal(t, ScenarioIdle, scenarios[0].Status)

	scenario, found := manager.Get(2)
	require.True(t, found)
	assert.Equal(t, "Movie night", scenario.Name)

	_, found = manager.Get(99)
	assert.False(t, found)
}

func TestActivateToleratesGenericReply(t *testing.T) {
	manager, gateway := newScenarioFixture(t)

	// The default fixture answers activations with "generic_reply", the
	// quirk seen on real gateways.
	require.NoError(t, manager.Activate(1))
	assert.Equal(t, 1, gateway.commandCount(cmdScenarioActivation))
}

func TestActivateExpectedTag(t *testing.T) {
	manager, gateway := newScenarioFixture(t)
	gateway.mu.Lock()
	gateway.activationTag = rspScenarioActivation
	gateway.mu.Unlock()

	assert.NoError(t, manager.Activate(1))
}

func TestActivateRejectsOtherTags(t *testing.T) {
	manager, gateway := newScenarioFixture(t)
	gateway.mu.Lock()
	gateway.activationTag = "cmd_usr_resp"
	gateway.mu.Unlock()

	err := manager.Activate(1)
	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, "cmd_usr_resp", protocolErr.Actual)
}

func TestCreateAndDelete(t *testing.T) {
	manager, gateway := newScenarioFixture(t)

	require.NoError(t, manager.Create("Evening"))
	require.NoError(t, manager.Delete(2))
	assert.Equal(t, 1, gateway.commandCount(cmdScenarioCreate))
	assert.Equal(t, 1, gateway.commandCount(cmdScenarioDelete))
}

func TestHandleUpdatePatchesStatusInPlace(t *testing.T) {
	manager, gateway := newScenarioFixture(t)
	listCalls := gateway.commandCount(cmdScenarioList)

	changed := manager.handleUpdate(DeviceState{
		"cmd_name":        indScenarioStatus,
		"id":              1,
		"scenario_status": int(ScenarioTransitioning),
	})
	assert.True(t, changed)

	scenario, _ := manager.Get(1)
	assert.Equal(t, ScenarioTransitioning, scenario.Status)

	// Same status again is not a change, and no list reload happened.
	changed = manager.handleUpdate(DeviceState{
		"cmd_name":        indScenarioStatus,
		"id":              1,
		"scenario_status": int(ScenarioTransitioning),
	})
	assert.False(t, changed)
	assert.Equal(t, listCalls, gateway.commandCount(cmdScenarioList))
}

func TestHandleUpdateUnknownScenarioIsNoop(t *testing.T) {
	manager, _ := newScenarioFixture(t)

	changed := manager.handleUpdate(DeviceState{
		"cmd_name":        indScenarioStatus,
		"id":              99,
		"scenario_status": int(ScenarioActive),
	})
	assert.False(t, changed)
}

func TestHandleUpdateUserChangeRefreshesList(t *testing.T) {
	manager, gateway := newScenarioFixture(t)

	gateway.mu.Lock()
	gateway.scenarios = append(gateway.scenarios, map[string]interface{}{
		"id": 3, "name": "Vacation", "scenario_status": 0, "user-defined": 1,
	})
	gateway.mu.Unlock()

	changed := manager.handleUpdate(DeviceState{
		"cmd_name": indScenarioUser,
		"action":   "add",
	})
	assert.True(t, changed)
	assert.Len(t, manager.List(), 3)

	// Unrecognized actions are ignored.
	changed = manager.handleUpdate(DeviceState{
		"cmd_name": indScenarioUser,
		"action":   "rename",
	})
	assert.False(t, changed)
}
