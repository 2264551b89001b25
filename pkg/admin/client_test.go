package admin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/xxljob-executor/pkg/config"
	"github.com/jdziat/xxljob-executor/pkg/core"
)

func TestRegistryParam_RoundTrip(t *testing.T) {
	in := RegistryParam{
		RegistryGroup: "EXECUTOR",
		RegistryKey:   "executor-sample",
		RegistryValue: "http://10.0.0.9:9999/",
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"registryGroup":"EXECUTOR","registryKey":"executor-sample","registryValue":"http://10.0.0.9:9999/"}`, string(data))

	var out RegistryParam
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestNewClient_RequiresAddresses(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = NewClient(&config.Config{})
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestClient_RegistryFailsOverToSecondAddress(t *testing.T) {
	good := newFakeCoordinator(t, core.SuccessCode)
	cfg := testConfig(t, unreachableAddr(t)+","+good.URL, "")

	client, err := NewClient(cfg)
	require.NoError(t, err)

	require.NoError(t, client.Registry(context.Background()))

	calls := good.calls(PathRegistry)
	require.Len(t, calls, 1)

	var param RegistryParam
	require.NoError(t, json.Unmarshal(calls[0].Body, &param))
	assert.Equal(t, RegistryGroup, param.RegistryGroup)
	assert.Equal(t, "executor-sample", param.RegistryKey)
	assert.Contains(t, param.RegistryValue, "10.0.0.9:9999")
}

func TestClient_FirstAddressRejectingIsTriedOnce(t *testing.T) {
	bad := newFakeCoordinator(t, core.FailCode)
	good := newFakeCoordinator(t, core.SuccessCode)
	client, err := NewClient(testConfig(t, bad.URL+","+good.URL, ""))
	require.NoError(t, err)

	require.NoError(t, client.Registry(context.Background()))

	assert.Len(t, bad.calls(PathRegistry), 1)
	assert.Len(t, good.calls(PathRegistry), 1)
}

func TestClient_StopsAtFirstSuccess(t *testing.T) {
	first := newFakeCoordinator(t, core.SuccessCode)
	second := newFakeCoordinator(t, core.SuccessCode)
	client, err := NewClient(testConfig(t, first.URL+","+second.URL, ""))
	require.NoError(t, err)

	require.NoError(t, client.RegistryRemove(context.Background()))

	assert.Len(t, first.calls(PathRegistryRemove), 1)
	assert.Empty(t, second.calls(PathRegistryRemove))
}

func TestClient_AllAddressesFail(t *testing.T) {
	bad := newFakeCoordinator(t, core.FailCode)
	client, err := NewClient(testConfig(t, unreachableAddr(t)+","+bad.URL, ""))
	require.NoError(t, err)

	err = client.Registry(context.Background())
	require.Error(t, err)

	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "registry", te.Op)
	assert.Len(t, te.Errors, 2)
	assert.True(t, IsTransportError(err))
}

func TestClient_SetsHeaders(t *testing.T) {
	fc := newFakeCoordinator(t, core.SuccessCode)
	client, err := NewClient(testConfig(t, fc.URL, "default_token"))
	require.NoError(t, err)

	require.NoError(t, client.Registry(context.Background()))

	calls := fc.calls(PathRegistry)
	require.Len(t, calls, 1)
	assert.Equal(t, "default_token", calls[0].Token)
	assert.Equal(t, UserAgent, calls[0].Agent)
}

func TestClient_OmitsTokenWhenUnset(t *testing.T) {
	fc := newFakeCoordinator(t, core.SuccessCode)
	client, err := NewClient(testConfig(t, fc.URL, ""))
	require.NoError(t, err)

	require.NoError(t, client.Registry(context.Background()))
	assert.Empty(t, fc.calls(PathRegistry)[0].Token)
}

func TestClient_CallbackBody(t *testing.T) {
	fc := newFakeCoordinator(t, core.SuccessCode)
	client, err := NewClient(testConfig(t, fc.URL, ""))
	require.NoError(t, err)

	records := []core.CallbackRecord{
		{LogID: 1, LogDateTime: 1700000000000, HandleCode: core.SuccessCode},
		{LogID: 2, LogDateTime: 1700000000001, HandleCode: core.FailCode, HandleMsg: "bad\x00 input"},
	}
	require.NoError(t, client.Callback(context.Background(), records))

	calls := fc.calls(PathCallback)
	require.Len(t, calls, 1)
	assert.JSONEq(t, `[
		{"logId":1,"logDateTim":1700000000000,"handleCode":200},
		{"logId":2,"logDateTim":1700000000001,"handleCode":500,"handleMsg":"bad input"}
	]`, string(calls[0].Body))
	assert.Equal(t, "bad\x00 input", records[1].HandleMsg, "caller's slice is not modified")
}

func TestClient_EmptyCallbackIsNoop(t *testing.T) {
	fc := newFakeCoordinator(t, core.SuccessCode)
	client, err := NewClient(testConfig(t, fc.URL, ""))
	require.NoError(t, err)

	require.NoError(t, client.Callback(context.Background(), nil))
	assert.Empty(t, fc.calls(PathCallback))
}

type recordingObserver struct {
	ops  []string
	errs []error
}

func (o *recordingObserver) ObserveAdminCall(op string, err error) {
	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}

func TestClient_Observer(t *testing.T) {
	fc := newFakeCoordinator(t, core.SuccessCode)
	obs := &recordingObserver{}
	client, err := NewClient(testConfig(t, fc.URL, ""), WithObserver(obs))
	require.NoError(t, err)

	require.NoError(t, client.Registry(context.Background()))
	fc.setCode(core.FailCode)
	require.Error(t, client.Registry(context.Background()))

	assert.Equal(t, []string{"registry", "registry"}, obs.ops)
	assert.NoError(t, obs.errs[0])
	assert.Error(t, obs.errs[1])
}

func TestURLFor(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/api/registry", URLFor("127.0.0.1:8080", PathRegistry))
	assert.Equal(t, "https://admin/xxl-job-admin/api/callback", URLFor("https://admin/xxl-job-admin/", PathCallback))
}
