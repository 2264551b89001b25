// Package config holds the executor's immutable client configuration.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

// DefaultPort is the first port probed when no port is configured.
const DefaultPort = 9999

// Config is the executor configuration. Build it with New; the returned value
// is never mutated afterwards and may be shared freely.
type Config struct {
	// AdminAddresses is the comma-separated list of coordinator base URLs.
	AdminAddresses string
	// AccessToken is sent on outbound calls and required on inbound calls when set.
	AccessToken string
	// AppName is the executor group name announced to the coordinator.
	AppName string
	// IP is the advertised address. Empty means auto-detect.
	IP string
	// Port is the listen and advertised port. Zero means the first free port
	// starting at DefaultPort.
	Port int
	// BasePath prefixes every inbound route.
	BasePath string
	// LogPath is the directory holding execution logs.
	LogPath string
	// LogRetentionDays bounds how long execution logs are kept. Zero keeps them.
	LogRetentionDays int
	// InsecureSkipVerify disables TLS certificate checks on outbound calls.
	InsecureSkipVerify bool

	addrs []string
}

// New validates cfg, resolves the advertised ip and port, and returns an
// immutable copy.
func New(cfg Config) (*Config, error) {
	c := cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.addrs, _ = ParseAddresses(c.AdminAddresses)

	if c.IP == "" {
		c.IP = LocalIP()
	}
	if c.Port == 0 {
		c.Port = AvailablePort(DefaultPort)
		if c.Port == 0 {
			return nil, &core.ConfigError{Field: "port", Reason: "no free port found"}
		}
	}
	c.BasePath = normalizeBasePath(c.BasePath)
	if c.LogRetentionDays < 0 {
		c.LogRetentionDays = 0
	}
	return &c, nil
}

// Validate checks the fields New cannot resolve on its own.
func (c Config) Validate() error {
	if _, err := ParseAddresses(c.AdminAddresses); err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return &core.ConfigError{Field: "port", Reason: "out of range"}
	}
	return nil
}

// ParseAddresses splits a comma-separated address list, dropping empty items.
func ParseAddresses(s string) ([]string, error) {
	var addrs []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addrs = append(addrs, strings.TrimRight(part, "/"))
	}
	if len(addrs) == 0 {
		return nil, &core.ConfigError{Field: "admin_addresses", Reason: "is empty"}
	}
	return addrs, nil
}

// Addresses returns the parsed coordinator addresses in configured order.
func (c *Config) Addresses() []string {
	out := make([]string, len(c.addrs))
	copy(out, c.addrs)
	return out
}

// ListenAddr is the address the inbound server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Port))
}

// AdvertiseAddr is the ip:port the coordinator reaches this executor on.
func (c *Config) AdvertiseAddr() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}

// RegistryValue is the callback URL announced in registration records.
func (c *Config) RegistryValue() string {
	return fmt.Sprintf("http://%s%s/", c.AdvertiseAddr(), c.BasePath)
}

func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
