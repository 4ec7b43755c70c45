// Package session holds the connection parameters of an authenticated
// management server session. Logging in is done elsewhere: this package only
// carries the resulting base URL, cookie and TLS policy.
package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ridge/smcmon/tws"
	"gopkg.in/yaml.v3"
)

// Session is an established management server session.
//
// A Session is read-only once established and can be shared by any number of
// concurrent queries.
type Session struct {
	// URL is the base URL of the management server, e.g. https://smc:8082
	URL string `yaml:"url"`

	// APIVersion is the API version path element, e.g. 6.4
	APIVersion string `yaml:"api_version"`

	// ID is the value of the JSESSIONID cookie
	ID string `yaml:"session_id"`

	// VerifySSL enables server certificate verification
	VerifySSL bool `yaml:"verify_ssl"`

	// CAFile is an optional PEM bundle to verify the server certificate with
	CAFile string `yaml:"ca_file"`
}

// Established reports whether the session can be used to open sockets
func (s *Session) Established() bool {
	return s != nil && s.URL != "" && s.ID != ""
}

// IsSSL reports whether the server is accessed over TLS
func (s *Session) IsSSL() bool {
	u, err := url.Parse(s.URL)
	return err == nil && u.Scheme == "https"
}

// Host returns the host:port of the management server
func (s *Session) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// WebSocketURL returns the base URL of the websocket endpoints: the server
// host with a ws or wss scheme followed by the API version
func (s *Session) WebSocketURL() string {
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	base := tws.WithWSScheme(u.Scheme + "://" + u.Host)
	if s.APIVersion == "" {
		return base
	}
	return base + "/" + s.APIVersion
}

// Cookie returns the session cookie in header form
func (s *Session) Cookie() string {
	return "JSESSIONID=" + s.ID
}

// Header returns the headers presented on websocket upgrade
func (s *Session) Header() http.Header {
	return http.Header{"Cookie": []string{s.Cookie()}}
}

// TLSConfig returns the TLS policy for connections to the server, nil when
// the server is not accessed over TLS
func (s *Session) TLSConfig() (*tls.Config, error) {
	if !s.IsSSL() {
		return nil, nil
	}
	config := &tls.Config{
		InsecureSkipVerify: !s.VerifySSL,
	}
	if s.CAFile != "" {
		pem, err := os.ReadFile(s.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", s.CAFile)
		}
		config.RootCAs = pool
	}
	return config, nil
}

// ErrInvalid is returned for session files missing mandatory settings
var ErrInvalid = errors.New("invalid session")

// Load reads a session from a YAML file
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return Parse(data)
}

// Parse parses a session from YAML. Environment variables in ${VAR} form are
// expanded first, so the session id can be kept out of the file.
func Parse(data []byte) (*Session, error) {
	s := Session{VerifySSL: true}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: url must be http(s)://host[:port], got %q", ErrInvalid, s.URL)
	}
	return &s, nil
}
