package base

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DestinationConfig defines a remote destination for records of matching appenders
type DestinationConfig struct {
	AppenderName       string        // Name or wildcard pattern of appenders to use this destination
	Index              string        // Index name for Splunk, tag for fluentd, or index field for beats
	RemoteURL          string        // URL of remote, whose scheme selects the kind of destination
	Login              string        // Login for Splunk management API; empty to use HTTP Event Collector
	Password           string        // Password, HEC token or fluentd shared key
	Compress           bool          // Compress request bodies if supported
	InsecureSkipVerify bool          // Skip TLS verification of remote certificates
	Timeout            time.Duration // Timeout of one request, 0 for default
}

// CanRegister checks whether all the mandatory fields are present
func (config DestinationConfig) CanRegister() bool {
	for _, field := range []string{config.Index, config.RemoteURL, config.Password} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// Key returns a unique key to identify the remote and credentials
func (config DestinationConfig) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", config.RemoteURL, config.Index, config.Login, config.Password)
}

// String returns a description of this destination without credentials
func (config DestinationConfig) String() string {
	remote := config.RemoteURL
	if u, err := url.Parse(config.RemoteURL); err == nil {
		u.User = nil
		remote = u.String()
	}
	return fmt.Sprintf("appender=%s index=%s remote=%s", config.AppenderName, config.Index, remote)
}
