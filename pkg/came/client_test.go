package came

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway emulates the ETI/Domo HTTP endpoint: a single POST path whose
// body is one url-encoded field holding a JSON command.
type fakeGateway struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	registrations int
	keepAlives    int
	applCommands  []string

	loginAckReason      int
	loginDelay          time.Duration
	keepAliveTimeoutSec int
	failKeepAlive       bool
	registrationTag     string

	features      []string
	deviceLists   map[string]map[string]interface{}
	statusResults [][]map[string]interface{}
	scenarios     []map[string]interface{}
	activationTag string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:                   t,
		keepAliveTimeoutSec: 900,
		registrationTag:     ackRegistration,
		deviceLists:         map[string]map[string]interface{}{},
		activationTag:       genericReplyName,
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	require.NoError(g.t, r.ParseForm())
	var cmd map[string]interface{}
	require.NoError(g.t, json.Unmarshal([]byte(r.FormValue("command")), &cmd))

	g.mu.Lock()
	defer g.mu.Unlock()

	switch cmd["sl_cmd"] {
	case cmdRegistration:
		g.registrations++
		if g.loginDelay > 0 {
			time.Sleep(g.loginDelay)
		}
		if g.loginAckReason != 0 {
			reply(w, map[string]interface{}{
				"sl_cmd":             ackRegistration,
				"sl_data_ack_reason": g.loginAckReason,
			})
			return
		}
		reply(w, map[string]interface{}{
			"sl_cmd":                    g.registrationTag,
			"sl_data_ack_reason":        0,
			"sl_client_id":              "client-1",
			"sl_keep_alive_timeout_sec": g.keepAliveTimeoutSec,
		})
	case cmdKeepAlive:
		g.keepAlives++
		if g.failKeepAlive {
			reply(w, map[string]interface{}{
				"sl_cmd":             ackKeepAlive,
				"sl_data_ack_reason": 8,
			})
			return
		}
		reply(w, map[string]interface{}{
			"sl_cmd":             ackKeepAlive,
			"sl_data_ack_reason": 0,
		})
	case cmdData:
		inner, _ := cmd["sl_appl_msg"].(map[string]interface{})
		g.handleApplication(w, inner)
	default:
		reply(w, map[string]interface{}{"sl_data_ack_reason": 6})
	}
}

func (g *fakeGateway) handleApplication(w http.ResponseWriter, cmd map[string]interface{}) {
	name, _ := cmd["cmd_name"].(string)
	g.applCommands = append(g.applCommands, name)

	switch name {
	case cmdFeatureList:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           respFeatureList,
			"swver":              "1.2.3",
			"serial":             "0012abcd",
			"keycode":            "0000",
			"list":               g.features,
		})
	case cmdFloorList:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           respFloorList,
			"floor_list": []map[string]interface{}{
				{"floor_ind": 1, "name": "Ground floor"},
			},
		})
	case cmdRoomList:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           respRoomList,
			"room_list": []map[string]interface{}{
				{"room_ind": 4, "name": "Kitchen", "floor_ind": 1},
			},
		})
	case cmdStatusUpdate:
		var result []map[string]interface{}
		if len(g.statusResults) > 0 {
			result = g.statusResults[0]
			g.statusResults = g.statusResults[1:]
		}
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           rspStatusUpdate,
			"result":             result,
		})
	case cmdScenarioList:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           respScenarioList,
			"array":              g.scenarios,
		})
	case cmdScenarioActivation:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           g.activationTag,
		})
	case cmdScenarioCreate:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           ackScenarioCreate,
		})
	case cmdScenarioDelete:
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           respScenarioDelete,
		})
	default:
		if response, ok := g.deviceLists[name]; ok {
			body := map[string]interface{}{
				"sl_data_ack_reason": 0,
				"cmd_name":           name[:len(name)-len("_req")] + "_resp",
			}
			for key, value := range response {
				body[key] = value
			}
			reply(w, body)
			return
		}
		// Actuation commands are acknowledged with a generic reply.
		reply(w, map[string]interface{}{
			"sl_data_ack_reason": 0,
			"cmd_name":           genericReplyName,
		})
	}
}

func (g *fakeGateway) commandCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, command := range g.applCommands {
		if command == name {
			count++
		}
	}
	return count
}

func reply(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func (g *fakeGateway) newClient() *client {
	return g.newClientWithOptions(NewClientOptions())
}

func (g *fakeGateway) newClientWithOptions(options *ClientOptions) *client {
	u, err := url.Parse(g.srv.URL)
	require.NoError(g.t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(g.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(g.t, err)

	options.SetHost(host).SetPort(port)
	return NewClient(options).(*client)
}

func TestLoginStoresSession(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90

	c := gateway.newClient()
	require.NoError(t, c.login())

	assert.True(t, c.Connected())
	assert.Equal(t, 1, gateway.registrations)

	// A second login with a valid session does not hit the gateway.
	require.NoError(t, c.login())
	assert.Equal(t, 1, gateway.registrations)
}

func TestConcurrentLoginsSendOneRequest(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90
	gateway.loginDelay = 50 * time.Millisecond

	c := gateway.newClient()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.login()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, gateway.registrations, "only one login request may be sent")
	assert.True(t, c.Connected())
}

func TestLoginTooManySessions(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.loginAckReason = 3

	c := gateway.newClient()
	err := c.login()

	var ackErr *AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, 3, ackErr.Reason)
	assert.Contains(t, ackErr.Message, "too many sessions")
	assert.False(t, c.Connected(), "no token may be cached after a failed login")
}

func TestAckErrorTable(t *testing.T) {
	gateway := newFakeGateway(t)
	c := gateway.newClient()

	gateway.loginAckReason = 1
	var ackErr *AckError
	require.ErrorAs(t, c.login(), &ackErr)
	assert.Equal(t, "invalid user", ackErr.Message)

	gateway.loginAckReason = 42
	require.ErrorAs(t, c.login(), &ackErr)
	assert.Equal(t, "unknown error (#42)", ackErr.Message)
}

func TestResponseTagMismatch(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.registrationTag = "sl_users_list_resp"

	c := gateway.newClient()
	err := c.login()

	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, ackRegistration, protocolErr.Expected)
	assert.Equal(t, "sl_users_list_resp", protocolErr.Actual)
}

func TestSessionExpiresAfterKeepAliveWindow(t *testing.T) {
	gateway := newFakeGateway(t)
	// One second of validity after the 30 second safety margin.
	gateway.keepAliveTimeoutSec = 31

	c := gateway.newClient()
	require.NoError(t, c.login())
	assert.True(t, c.Connected())

	time.Sleep(1100 * time.Millisecond)
	assert.False(t, c.Connected())
}

func TestSessionMarginConsumesWholeTimeout(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 30

	c := gateway.newClient()
	require.NoError(t, c.login())
	assert.False(t, c.Connected(), "30s declared timeout minus the 30s margin leaves no validity")
}

func TestKeepAliveRenewsSession(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 31

	c := gateway.newClient()
	require.NoError(t, c.login())

	time.Sleep(600 * time.Millisecond)
	require.NoError(t, c.KeepAlive())
	assert.Equal(t, 1, gateway.keepAlives)

	// Without the renewal the session would have expired by now.
	time.Sleep(600 * time.Millisecond)
	assert.True(t, c.Connected())
}

func TestKeepAliveFailureInvalidatesSession(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90

	c := gateway.newClient()
	require.NoError(t, c.login())

	gateway.mu.Lock()
	gateway.failKeepAlive = true
	gateway.mu.Unlock()

	// The failure is swallowed, the session is dropped.
	assert.NoError(t, c.KeepAlive())
	assert.False(t, c.Connected())
}

func TestKeepAliveWithoutSessionIsNoop(t *testing.T) {
	gateway := newFakeGateway(t)
	c := gateway.newClient()

	require.NoError(t, c.KeepAlive())
	assert.Equal(t, 0, gateway.keepAlives)
}

func TestApplicationRequestLogsInFirst(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90
	gateway.features = []string{FeatureLights}

	c := gateway.newClient()
	features, err := c.GetFeatures()
	require.NoError(t, err)

	assert.Equal(t, []string{FeatureLights}, features)
	assert.Equal(t, 1, gateway.registrations)
	assert.Equal(t, "1.2.3", c.SoftwareVersion())
	assert.Equal(t, "0012abcd", c.Serial())
}

func TestApplicationRequestTagMismatch(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90

	c := gateway.newClient()
	_, err := c.ApplicationRequest(Command{"cmd_name": "light_switch_req"}, "light_switch_resp")

	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, genericReplyName, protocolErr.Actual)
}

func TestConnectionErrorMapsAndInvalidatesSession(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90

	c := gateway.newClient()
	require.NoError(t, c.login())
	require.True(t, c.Connected())

	// Point the client at a dead endpoint and watch the session drop.
	gateway.srv.Close()
	_, err := c.ApplicationRequest(Command{"cmd_name": cmdFeatureList}, respFeatureList)

	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, c.Connected())
}

func TestRequestTimeoutIsDistinguishable(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()

	u, err := url.Parse(slow.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	options := NewClientOptions().
		SetHost(host).
		SetPort(port).
		SetRequestTimeout(50 * time.Millisecond)
	c := NewClient(options).(*client)

	err = c.login()
	assert.ErrorIs(t, err, ErrConnectionTimeout)
	assert.ErrorIs(t, err, ErrConnection, "a timeout is also a connection error")
}

func TestGetFloorsAndRoomsAreCached(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90

	c := gateway.newClient()

	floors, err := c.GetFloors()
	require.NoError(t, err)
	require.Len(t, floors, 1)
	assert.Equal(t, Floor{ID: 1, Name: "Ground floor"}, floors[0])

	rooms, err := c.GetRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, Room{ID: 4, Name: "Kitchen", FloorID: 1}, rooms[0])

	_, err = c.GetFloors()
	require.NoError(t, err)
	_, err = c.GetRooms()
	require.NoError(t, err)
	assert.Equal(t, 1, gateway.commandCount(cmdFloorList))
	assert.Equal(t, 1, gateway.commandCount(cmdRoomList))
}

func TestConnectStartsKeepAliveLoop(t *testing.T) {
	gateway := newFakeGateway(t)
	gateway.keepAliveTimeoutSec = 90

	options := NewClientOptions().SetKeepAliveInterval(50 * time.Millisecond)
	c := gateway.newClientWithOptions(options)

	require.NoError(t, c.Connect())
	time.Sleep(180 * time.Millisecond)
	require.NoError(t, c.Disconnect())

	gateway.mu.Lock()
	keepAlives := gateway.keepAlives
	gateway.mu.Unlock()
	assert.GreaterOrEqual(t, keepAlives, 2)
	assert.False(t, c.Connected())
}

func TestErrorsUnknownAckReasonMessage(t *testing.T) {
	err := newAckError(99)
	assert.Equal(t, 99, err.Reason)
	assert.Equal(t, "unknown error (#99)", err.Message)

	var target *AckError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
}
