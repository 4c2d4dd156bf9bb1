package came

// Floor is a topology lookup record, loaded once and cached. It is used for
// attribution only, never for behavior.
type Floor struct {
	ID   int    `mapstructure:"floor_ind"`
	Name string `mapstructure:"name"`
}

// Room is a topology lookup record with a reference to its floor.
type Room struct {
	ID      int    `mapstructure:"room_ind"`
	Name    string `mapstructure:"name"`
	FloorID int    `mapstructure:"floor_ind"`
}

// ScenarioStatus is the tri-state lifecycle reported by the gateway.
type ScenarioStatus int

const (
	ScenarioIdle          ScenarioStatus = 0
	ScenarioTransitioning ScenarioStatus = 1
	ScenarioActive        ScenarioStatus = 2
)

func (s ScenarioStatus) String() string {
	switch s {
	case ScenarioIdle:
		return "idle"
	case ScenarioTransitioning:
		return "transition"
	case ScenarioActive:
		return "active"
	}
	return "unknown"
}

// Scenario is a remote scenario record.
type Scenario struct {
	ID          int            `mapstructure:"id"`
	Name        string         `mapstructure:"name"`
	Status      ScenarioStatus `mapstructure:"scenario_status"`
	UserDefined bool           `mapstructure:"user-defined"`
}
