package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
)

// Default configuration values
const (
	DefaultServer = "http://localhost:8000"
)

var ErrInvalidRoomRef = errors.New("not a room code or room link")

// Config holds application configuration
type Config struct {
	// Server is the http(s) base URL of the session server.
	Server *url.URL

	// Name is sent as the plain identity when no token is configured.
	Name string

	// Token is an identity provider JWT, preferred over Name.
	Token string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server string
	Name   string
	Token  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstSet(opts.Server, os.Getenv("DEBATEIT_SERVER"), DefaultServer)
	name := firstSet(opts.Name, os.Getenv("DEBATEIT_NAME"))
	token := firstSet(opts.Token, os.Getenv("DEBATEIT_TOKEN"))

	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL: missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/")

	return &Config{Server: u, Name: name, Token: token}, nil
}

// MatchmakingURL returns the websocket URL of the matchmaking channel.
func (c *Config) MatchmakingURL() string {
	return c.wsURL("/ws/matchmaking/")
}

// RoomURL returns the websocket URL of the room channel for code.
func (c *Config) RoomURL(code string) string {
	return c.wsURL("/ws/room/" + code + "/")
}

// APIURL returns the http URL of an API path such as "/api/rooms".
func (c *Config) APIURL(p string) string {
	u := *c.Server
	u.Path = c.Server.Path + p
	return u.String()
}

// RoomLink returns a shareable link that `join` accepts.
func (c *Config) RoomLink(code string) string {
	u := *c.Server
	u.Path = c.Server.Path + "/room/" + code
	return u.String()
}

func (c *Config) wsURL(p string) string {
	u := *c.Server
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.Server.Path + p

	q := url.Values{}
	switch {
	case c.Token != "":
		q.Set("token", c.Token)
	case c.Name != "":
		q.Set("identity", c.Name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseRoomRef accepts either a bare room code or any link whose last path
// segment is one, and returns the upper-cased code.
func ParseRoomRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "/") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRoomRef, err)
		}
		ref = path.Base(strings.TrimRight(u.Path, "/"))
	}

	code := strings.ToUpper(ref)
	if !validCode(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomRef, ref)
	}
	return code, nil
}

func validCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
