package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wiicon_remote/internal/config"
	"github.com/relabs-tech/wiicon_remote/internal/orientation"
	"github.com/relabs-tech/wiicon_remote/internal/telemetry"
)

func newTestWeb(t *testing.T, p *Pipeline) *WebServer {
	t.Helper()
	writable, err := ParseAddrRanges("0x40-0x43")
	require.NoError(t, err)
	return NewWebServer(p, WebOptions{CalibSamples: 10, CalibDelay: time.Millisecond, WritableRegs: writable})
}

func TestOrientationEndpoint(t *testing.T) {
	p := newTestPipeline(t, levelDevice(), telemetry.NewRecordingGate(true))
	h := newTestWeb(t, p).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orientation", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err := p.Step()
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orientation", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var pose orientation.Pose
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pose))
	assert.Equal(t, orientation.Pose{}, pose)
}

func TestStateEndpoint(t *testing.T) {
	p := newTestPipeline(t, levelDevice(), telemetry.NewRecordingGate(false))
	h := newTestWeb(t, p).Handler()
	_, err := p.Step()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Device string  `json:"device"`
		Beta   float64 `json:"beta"`
		Stats  Stats   `json:"stats"`
		Raw    struct {
			Accel [3]int16 `json:"accel"`
		} `json:"raw"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fake", body.Device)
	assert.Equal(t, 0.1, body.Beta)
	assert.Equal(t, uint64(1), body.Stats.Dropped)
	assert.Equal(t, [3]int16{0, 0, 16384}, body.Raw.Accel)
}

func TestControlEndpoints(t *testing.T) {
	dev := levelDevice()
	dev.gyro[2] = 82
	p := newTestPipeline(t, dev, telemetry.NewRecordingGate(true))
	h := newTestWeb(t, p).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calibrate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/calibrate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 5, p.Bias()[2], 1e-9)

	_, err := p.Step()
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestPoseSocket(t *testing.T) {
	p := newTestPipeline(t, levelDevice(), telemetry.NewRecordingGate(true))
	web := newTestWeb(t, p)
	srv := httptest.NewServer(web.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/pose")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "set_beta", Beta: 0.3}))
	var resp WSResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "beta", resp.Type)
	assert.Equal(t, 0.3, p.FilterParams().Beta)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "spin"}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "error", resp.Type)

	// the subscription is registered before the first read completes
	st, err := p.Step()
	require.NoError(t, err)
	web.Observe(st)

	resp = WSResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "state", resp.Type)
	require.NotNil(t, resp.State)
	assert.Equal(t, orientation.Identity, resp.State.Quaternion)
}

func TestRegisterSocket(t *testing.T) {
	dev := newRegDevice()
	p := newTestPipeline(t, dev, telemetry.NewRecordingGate(true))
	srv := httptest.NewServer(newTestWeb(t, p).Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/registers")

	var resp RegisterResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "register_map", resp.Type)
	assert.Len(t, resp.RegisterMap, 3)

	exchange := func(cmd RegisterCmd) RegisterResponse {
		require.NoError(t, conn.WriteJSON(cmd))
		var r RegisterResponse
		require.NoError(t, conn.ReadJSON(&r))
		return r
	}

	r := exchange(RegisterCmd{Action: "read", Address: "0x00"})
	assert.Equal(t, "0xD1", r.Value)

	r = exchange(RegisterCmd{Action: "write", Address: "0x7E", Value: "0xB6"})
	assert.Equal(t, "error", r.Type)
	_, touched := dev.regs[0x7E]
	assert.False(t, touched)

	r = exchange(RegisterCmd{Action: "write", Address: "0x41", Value: "0x05"})
	assert.Equal(t, "register_data", r.Type)
	assert.Equal(t, byte(0x05), dev.regs[0x41])

	r = exchange(RegisterCmd{Action: "read_all"})
	assert.Equal(t, map[string]string{"0x00": "0xD1", "0x40": "0x28"}, r.Registers)

	r = exchange(RegisterCmd{Action: "export_config"})
	require.NotNil(t, r.Config)
	assert.Equal(t, "fake", r.Config.Device)
	assert.True(t, strings.HasPrefix(r.Filename, "fake_"))

	r = exchange(RegisterCmd{Action: "read", Address: "zz"})
	assert.Equal(t, "error", r.Type)
}

func TestParseAddrRanges(t *testing.T) {
	got, err := ParseAddrRanges(" 0x40-0x43, 0x69 ,")
	require.NoError(t, err)
	assert.Equal(t, []AddrRange{{0x40, 0x43}, {0x69, 0x69}}, got)

	assert.True(t, isRegisterWritable(0x42, got))
	assert.True(t, isRegisterWritable(0x69, got))
	assert.False(t, isRegisterWritable(0x44, got))

	none, err := ParseAddrRanges("")
	require.NoError(t, err)
	assert.False(t, isRegisterWritable(0x40, none))

	for _, bad := range []string{"0x43-0x40", "0x100", "abc", "0x40-"} {
		_, err := ParseAddrRanges(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultWritableRangesSkipRangeRegisters(t *testing.T) {
	writable, err := ParseAddrRanges(config.Default().RegisterWriteRanges)
	require.NoError(t, err)

	assert.True(t, isRegisterWritable(0x40, writable))
	assert.False(t, isRegisterWritable(0x41, writable), "ACC_RANGE")
	assert.True(t, isRegisterWritable(0x42, writable))
	assert.False(t, isRegisterWritable(0x43, writable), "GYR_RANGE")
	assert.True(t, isRegisterWritable(0x7A, writable))
	assert.False(t, isRegisterWritable(0x7E, writable), "CMD")
}
