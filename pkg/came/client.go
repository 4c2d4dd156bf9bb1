package came

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Client maintains exactly one authenticated session with the CAME ETI/Domo
// gateway and serializes all request traffic through it. The interface is
// primarily here to allow mocking in tests.
//
// Clients are safe for concurrent use by multiple goroutines: the gateway
// firmware misbehaves under concurrent application calls, so at most one
// application request is ever in flight.
type Client interface {
	// Connect performs the initial login and starts the background
	// keep-alive loop.
	Connect() error
	// Disconnect stops the keep-alive loop, drops the session and closes
	// any idle connection.
	Disconnect() error
	// Connected reports whether a session token is held and not yet past
	// its expiration.
	Connected() bool

	// ApplicationRequest wraps a command into the session envelope, logging
	// in first if needed, and validates the response tag when expected is
	// not empty.
	ApplicationRequest(cmd Command, expected string) (Response, error)
	// KeepAlive renews the session expiration. Failures are swallowed and
	// invalidate the session so the next request re-authenticates.
	KeepAlive() error

	// GetFeatures returns the categories declared by the gateway, cached
	// for the lifetime of the session.
	GetFeatures() ([]string, error)
	GetFloors() ([]Floor, error)
	GetRooms() ([]Room, error)

	// Gateway identity, available after the first GetFeatures call.
	SoftwareVersion() string
	Serial() string
	Keycode() string
}

type client struct {
	httpClient *http.Client
	options    ClientOptions

	// sessionMu guards the session fields below.
	sessionMu        sync.Mutex
	clientID         string
	keepAliveTimeout time.Duration
	expiration       time.Time
	loginInProgress  bool

	// loginMu makes login an exclusive section so only one network login
	// is ever attempted at a time.
	loginMu sync.Mutex

	// requestGate is the single-slot admission gate for application layer
	// requests.
	requestGate chan struct{}

	// cacheMu guards the lazily loaded feature and topology caches.
	cacheMu  sync.Mutex
	features []string
	floors   []Floor
	rooms    []Room
	swver    string
	serial   string
	keycode  string

	keepAliveDone chan struct{}
}

// NewClient will create a CAME gateway client with all the options specified
// in the provided ClientOptions. The client must have the Connect() method
// called on it before it may be used.
func NewClient(options *ClientOptions) Client {
	return &client{
		httpClient: &http.Client{
			Timeout: options.RequestTimeout,
		},
		options:          *options,
		keepAliveTimeout: 900 * time.Second,
		requestGate:      make(chan struct{}, 1),
	}
}

func (c *client) Connect() error {
	if err := c.login(); err != nil {
		return err
	}

	c.keepAliveDone = make(chan struct{})
	go c.keepAliveLoop(c.keepAliveDone)

	return nil
}

func (c *client) Disconnect() error {
	if c.keepAliveDone != nil {
		close(c.keepAliveDone)
		c.keepAliveDone = nil
	}
	c.invalidateSession()
	c.httpClient.CloseIdleConnections()
	log.Info().Msg("Disconnected from CAME gateway.")
	return nil
}

func (c *client) Connected() bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionValidLocked()
}

func (c *client) sessionValidLocked() bool {
	return c.clientID != "" && time.Now().Before(c.expiration)
}

func (c *client) currentClientID() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.clientID
}

func (c *client) invalidateSession() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.clientID = ""
}

func (c *client) renewSession() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.expiration = time.Now().Add(c.keepAliveTimeout - c.options.SessionMargin)
}

// login is idempotent: it returns immediately when the cached session is
// still valid, and re-checks after acquiring the exclusive section since a
// concurrent caller may have renewed it in the meantime.
func (c *client) login() error {
	c.sessionMu.Lock()
	valid := c.sessionValidLocked()
	c.sessionMu.Unlock()
	if valid {
		return nil
	}

	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	c.sessionMu.Lock()
	if c.sessionValidLocked() {
		c.sessionMu.Unlock()
		log.Debug().Msg("Session renewed by a concurrent login, skipping.")
		return nil
	}
	if c.loginInProgress {
		c.sessionMu.Unlock()
		// Wait briefly for the other login to resolve.
		time.Sleep(c.options.LoginWait)
		c.sessionMu.Lock()
		valid := c.sessionValidLocked()
		c.sessionMu.Unlock()
		if valid {
			return nil
		}
		return ErrLoginInProgress
	}
	c.loginInProgress = true
	c.sessionMu.Unlock()

	defer func() {
		c.sessionMu.Lock()
		c.loginInProgress = false
		c.sessionMu.Unlock()
	}()

	log.Debug().Str("host", c.options.Host).Msg("Logging in to CAME gateway.")
	response, err := c.request(map[string]interface{}{
		"sl_cmd":   cmdRegistration,
		"sl_login": c.options.Username,
		"sl_pwd":   c.options.Password,
	}, ackRegistration)
	if err != nil {
		return fmt.Errorf("error on login request: %w", err)
	}

	clientID, _ := response["sl_client_id"].(string)
	if clientID == "" {
		return &ProtocolError{Message: "no sl_client_id in registration ack"}
	}

	keepAliveSeconds := intValue(map[string]interface{}(response), "sl_keep_alive_timeout_sec")
	if keepAliveSeconds <= 0 {
		keepAliveSeconds = 900
	}

	c.sessionMu.Lock()
	c.clientID = clientID
	c.keepAliveTimeout = time.Duration(keepAliveSeconds) * time.Second
	c.expiration = time.Now().Add(c.keepAliveTimeout - c.options.SessionMargin)
	c.sessionMu.Unlock()

	// A new session may come from a rebooted gateway, so the cached feature
	// list is no longer trusted.
	c.cacheMu.Lock()
	c.features = nil
	c.cacheMu.Unlock()

	log.Info().
		Str("host", c.options.Host).
		Int("keepAliveTimeoutSec", keepAliveSeconds).
		Msg("Logged in to CAME gateway.")
	return nil
}

// request issues a single session layer command: a POST whose body is one
// url-encoded field holding the JSON-encoded command.
func (c *client) request(cmd interface{}, expectedTag string) (Response, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("error encoding command: %w", err)
	}

	form := url.Values{}
	form.Set("command", string(payload))

	callUrl := "http://" + c.options.Host + ":" + strconv.Itoa(c.options.Port) + "/domo/"
	request, err := http.NewRequest(http.MethodPost, callUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error building the request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: httpStatus=%d: %s", ErrConnection, resp.StatusCode, responseBody)
	}

	log.Trace().
		Str("url", callUrl).
		Str("body", string(responseBody)).
		Msg("Response received")

	var jsonResponse map[string]interface{}
	if err := json.Unmarshal(responseBody, &jsonResponse); err != nil {
		return nil, &ProtocolError{Message: "error parsing response: " + err.Error()}
	}

	ackRaw, ok := jsonResponse["sl_data_ack_reason"]
	if !ok {
		return nil, &ProtocolError{Message: "no sl_data_ack_reason field in response"}
	}
	reason := toInt(ackRaw)
	if reason != 0 {
		return nil, newAckError(reason)
	}

	if expectedTag != "" {
		tag, _ := jsonResponse["sl_cmd"].(string)
		if tag != expectedTag {
			return nil, &ProtocolError{Expected: expectedTag, Actual: tag}
		}
	}

	return Response(jsonResponse), nil
}

func (c *client) ApplicationRequest(cmd Command, expected string) (Response, error) {
	// The gateway firmware cannot tolerate concurrent application calls
	// without intermittent session errors, so admission is single slot.
	c.requestGate <- struct{}{}
	defer func() { <-c.requestGate }()

	if err := c.login(); err != nil {
		return nil, err
	}

	response, err := c.request(map[string]interface{}{
		"sl_cmd":       cmdData,
		"sl_client_id": c.currentClientID(),
		"sl_appl_msg":  map[string]interface{}(cmd),
	}, "")
	if err != nil {
		if errors.Is(err, ErrConnection) {
			log.Debug().Msg("CAME gateway went offline, resetting session.")
			c.invalidateSession()
		}
		return nil, err
	}

	if expected != "" && response.Tag() != expected {
		return nil, &ProtocolError{Expected: expected, Actual: response.Tag()}
	}

	return response, nil
}

func (c *client) KeepAlive() error {
	clientID := c.currentClientID()
	if clientID == "" {
		return nil
	}

	log.Debug().Msg("Sending keep-alive to CAME gateway.")
	_, err := c.request(map[string]interface{}{
		"sl_cmd":       cmdKeepAlive,
		"sl_client_id": clientID,
	}, ackKeepAlive)
	if err != nil {
		// Do not surface the failure: dropping the session forces the next
		// real request to re-login.
		log.Warn().Err(err).Msg("Keep-alive failed, session invalidated.")
		c.invalidateSession()
		return nil
	}

	c.renewSession()
	return nil
}

func (c *client) keepAliveLoop(done chan struct{}) {
	ticker := time.NewTicker(c.options.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			log.Debug().Msg("Keep-alive loop stopped.")
			return
		case <-ticker.C:
			c.KeepAlive() //nolint:errcheck // never returns an error
		}
	}
}

func (c *client) GetFeatures() ([]string, error) {
	c.cacheMu.Lock()
	cached := c.features
	c.cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	response, err := wrapResponse[featureListResponse](
		c.ApplicationRequest(Command{"cmd_name": cmdFeatureList}, respFeatureList))
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.features = response.List
	c.swver = response.Swver
	c.serial = response.Serial
	c.keycode = response.Keycode
	c.cacheMu.Unlock()

	log.Debug().
		Str("swver", response.Swver).
		Str("serial", response.Serial).
		Strs("features", response.List).
		Msg("CAME gateway features loaded.")
	return response.List, nil
}

func (c *client) GetFloors() ([]Floor, error) {
	c.cacheMu.Lock()
	cached := c.floors
	c.cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	response, err := wrapResponse[floorListResponse](
		c.ApplicationRequest(Command{
			"cmd_name":        cmdFloorList,
			"topologic_scope": "plant",
		}, respFloorList))
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.floors = response.FloorList
	c.cacheMu.Unlock()
	return response.FloorList, nil
}

func (c *client) GetRooms() ([]Room, error) {
	c.cacheMu.Lock()
	cached := c.rooms
	c.cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	response, err := wrapResponse[roomListResponse](
		c.ApplicationRequest(Command{
			"cmd_name":        cmdRoomList,
			"topologic_scope": "plant",
		}, respRoomList))
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.rooms = response.RoomList
	c.cacheMu.Unlock()
	return response.RoomList, nil
}

func (c *client) SoftwareVersion() string {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.swver
}

func (c *client) Serial() string {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.serial
}

func (c *client) Keycode() string {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.keycode
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
