package config

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

func TestNew_EmptyAddressListFails(t *testing.T) {
	for _, addrs := range []string{"", " ", ",,", " , "} {
		_, err := New(Config{AdminAddresses: addrs, IP: "127.0.0.1", Port: 9999})
		require.Error(t, err, "addresses %q", addrs)
		assert.ErrorIs(t, err, core.ErrConfig)

		var ce *core.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "admin_addresses", ce.Field)
	}
}

func TestNew_ParsesAddresses(t *testing.T) {
	cfg, err := New(Config{
		AdminAddresses: "http://a:8080/xxl-job-admin/, ,b:8080",
		IP:             "10.0.0.5",
		Port:           9991,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a:8080/xxl-job-admin", "b:8080"}, cfg.Addresses())
}

func TestNew_AddressesReturnsCopy(t *testing.T) {
	cfg, err := New(Config{AdminAddresses: "a,b", IP: "127.0.0.1", Port: 9991})
	require.NoError(t, err)

	addrs := cfg.Addresses()
	addrs[0] = "mutated"

	assert.Equal(t, "a", cfg.Addresses()[0])
}

func TestNew_DoesNotMutateInput(t *testing.T) {
	in := Config{AdminAddresses: "a", Port: 9991}
	cfg, err := New(in)
	require.NoError(t, err)

	assert.Empty(t, in.IP)
	assert.NotEmpty(t, cfg.IP)
}

func TestNew_RejectsBadPort(t *testing.T) {
	_, err := New(Config{AdminAddresses: "a", IP: "127.0.0.1", Port: 70000})
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{AdminAddresses: "a"}.Validate())
	assert.ErrorIs(t, Config{AdminAddresses: ""}.Validate(), core.ErrConfig)
	assert.ErrorIs(t, Config{AdminAddresses: "a", Port: -1}.Validate(), core.ErrConfig)
}

func TestNew_ResolvesPort(t *testing.T) {
	cfg, err := New(Config{AdminAddresses: "a", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfg.Port, DefaultPort)
}

func TestConfig_Addresses(t *testing.T) {
	cfg, err := New(Config{AdminAddresses: "a", IP: "10.1.2.3", Port: 9991, BasePath: "/executor/"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9991", cfg.ListenAddr())
	assert.Equal(t, "10.1.2.3:9991", cfg.AdvertiseAddr())
	assert.Equal(t, "/executor", cfg.BasePath)
	assert.Equal(t, "http://10.1.2.3:9991/executor/", cfg.RegistryValue())
}

func TestConfig_RegistryValueWithoutBasePath(t *testing.T) {
	cfg, err := New(Config{AdminAddresses: "a", IP: "10.1.2.3", Port: 9991})
	require.NoError(t, err)
	assert.Equal(t, "http://10.1.2.3:9991/", cfg.RegistryValue())
}

func TestNew_NegativeRetentionClamped(t *testing.T) {
	cfg, err := New(Config{AdminAddresses: "a", IP: "127.0.0.1", Port: 9991, LogRetentionDays: -3})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.LogRetentionDays)
}

func TestLocalIP_NotEmpty(t *testing.T) {
	ip := LocalIP()
	assert.NotNil(t, net.ParseIP(ip), "LocalIP returned %q", ip)
}

func TestPortAvailable(t *testing.T) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	assert.False(t, PortAvailable(port), "port %s is bound", strconv.Itoa(port))
	assert.NotEqual(t, port, AvailablePort(port))
}
