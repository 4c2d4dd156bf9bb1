package came

import (
	"time"
)

// ClientOptions contains configurable options for a CAME gateway Client.
type ClientOptions struct {
	Host              string
	Port              int
	Username          string
	Password          string
	RequestTimeout    time.Duration
	KeepAliveInterval time.Duration
	SessionMargin     time.Duration
	LoginWait         time.Duration
}

// NewClientOptions will create a new ClientOptions type with some default
// values.
//
//	Port: 80
//	RequestTimeout: 10 seconds
//	KeepAliveInterval: 10 minutes
//	SessionMargin: 30 seconds
func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		Host:              "",
		Port:              80,
		Username:          "admin",
		Password:          "admin",
		RequestTimeout:    10 * time.Second,
		KeepAliveInterval: 10 * time.Minute,
		SessionMargin:     30 * time.Second,
		LoginWait:         500 * time.Millisecond,
	}
}

// SetHost will set the address of the CAME gateway to connect to.
func (o *ClientOptions) SetHost(host string) *ClientOptions {
	o.Host = host
	return o
}

// SetPort will set the port of the CAME gateway to connect to.
func (o *ClientOptions) SetPort(port int) *ClientOptions {
	o.Port = port
	return o
}

// SetUsername will set the username used on login.
func (o *ClientOptions) SetUsername(u string) *ClientOptions {
	o.Username = u
	return o
}

// SetPassword will set the password used on login.
func (o *ClientOptions) SetPassword(p string) *ClientOptions {
	o.Password = p
	return o
}

// SetRequestTimeout bounds every single HTTP request to the gateway.
func (o *ClientOptions) SetRequestTimeout(timeout time.Duration) *ClientOptions {
	o.RequestTimeout = timeout
	return o
}

// SetKeepAliveInterval sets the period of the background session renewal.
func (o *ClientOptions) SetKeepAliveInterval(interval time.Duration) *ClientOptions {
	o.KeepAliveInterval = interval
	return o
}

// SetSessionMargin sets the safety margin subtracted from the keep-alive
// timeout declared by the gateway when computing the session expiration.
func (o *ClientOptions) SetSessionMargin(margin time.Duration) *ClientOptions {
	o.SessionMargin = margin
	return o
}
