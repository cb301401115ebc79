package tenant

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ErrConfigNotFound reports a client id with no active configuration.
var ErrConfigNotFound = errors.New("tenant: configuration not found")

// ConnectionError reports a malformed configuration or a refused
// database connection.
type ConnectionError struct {
	ClientID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tenant %s: connection: %v", e.ClientID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DBConfig holds the resolved connection parameters for one tenant.
// Password is never logged or rendered; see String and MarshalLogObject.
type DBConfig struct {
	ClientID string `json:"clientId"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"-"`
	Charset  string `json:"charset,omitempty"`
}

// Validate checks the fields required to open a connection. Port and
// Charset are optional.
func (c *DBConfig) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return &ConnectionError{
			ClientID: c.ClientID,
			Err:      fmt.Errorf("missing required config fields: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

// DSN renders a postgres key=value connection string.
func (c *DBConfig) DSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Host, port, c.Database, c.Username, c.Password)
	if c.Charset != "" {
		fmt.Fprintf(&b, " client_encoding=%s", c.Charset)
	}
	return b.String()
}

// String renders the config with the password redacted.
func (c *DBConfig) String() string {
	return fmt.Sprintf("tenant(%s) %s@%s:%d/%s", c.ClientID, c.Username, c.Host, c.Port, c.Database)
}

// MarshalLogObject implements zapcore.ObjectMarshaler, keeping the
// password out of structured logs.
func (c *DBConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("client_id", c.ClientID)
	enc.AddString("host", c.Host)
	enc.AddInt("port", c.Port)
	enc.AddString("database", c.Database)
	enc.AddString("username", c.Username)
	return nil
}
