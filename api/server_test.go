package api

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/atsc-oss/clock"
	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

type stubJunction struct {
	status entity.JunctionStatus
}

func (j *stubJunction) ID() int32                                 { return j.status.ID }
func (j *stubJunction) Name() string                              { return j.status.Name }
func (j *stubJunction) Status() entity.JunctionStatus             { return j.status }
func (j *stubJunction) InjectEmergency(sig entity.EmergencySignal) {}

type stubManager struct {
	junctions []entity.IJunction
}

func (m *stubManager) Init(specs []*entity.JunctionSpec) error { return nil }
func (m *stubManager) Get(id int32) entity.IJunction {
	j, err := m.GetOrError(id)
	if err != nil {
		panic(err)
	}
	return j
}
func (m *stubManager) GetOrError(id int32) (entity.IJunction, error) {
	for _, j := range m.junctions {
		if j.ID() == id {
			return j, nil
		}
	}
	return nil, fmt.Errorf("no id %d in junction data", id)
}
func (m *stubManager) All() []entity.IJunction   { return m.junctions }
func (m *stubManager) Prepare()                  {}
func (m *stubManager) Update(in *entity.CycleInput) {}

type stubContext struct {
	clock   *clock.Clock
	manager entity.IJunctionManager
}

func (c *stubContext) Clock() *clock.Clock                      { return c.clock }
func (c *stubContext) JunctionManager() entity.IJunctionManager { return c.manager }
func (c *stubContext) RuntimeConfig() *config.RuntimeConfig     { return nil }
func (c *stubContext) Collector() entity.ICollector             { return nil }
func (c *stubContext) Detector() entity.IEmergencyDetector      { return nil }
func (c *stubContext) Actuator() entity.IActuator               { return nil }
func (c *stubContext) Recorder() entity.IRecorder               { return nil }

func newTestServer() *httptest.Server {
	ctx := &stubContext{
		clock: clock.New(config.ControlStep{Start: 0, Total: 100, Interval: 5}),
		manager: &stubManager{junctions: []entity.IJunction{
			&stubJunction{status: entity.JunctionStatus{ID: 1, Name: "j1", PhaseID: "NS", Mode: "NORMAL", Overlay: "IDLE"}},
			&stubJunction{status: entity.JunctionStatus{ID: 2, Name: "j2", PhaseID: "EW", Mode: "PREEMPTED", Overlay: "ACTIVE"}},
		}},
	}
	s := NewServer(ctx, ":0")
	return httptest.NewServer(s.srv.Handler)
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	code, body := get(t, ts.URL+"/status")
	require.Equal(t, http.StatusOK, code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, int32(0), st.Step)
	assert.Equal(t, 2, st.Junctions)
	assert.Equal(t, "00:00:00", st.Clock)
}

func TestHandleJunctions(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	code, body := get(t, ts.URL+"/junctions")
	require.Equal(t, http.StatusOK, code)
	var statuses []entity.JunctionStatus
	require.NoError(t, json.Unmarshal(body, &statuses))
	require.Len(t, statuses, 2)

	// ?id=过滤，未知ID被忽略
	code, body = get(t, ts.URL+"/junctions?id=2,99")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "ACTIVE", statuses[0].Overlay)

	code, _ = get(t, ts.URL+"/junctions?id=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleJunction(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	code, body := get(t, ts.URL+"/junctions/1")
	require.Equal(t, http.StatusOK, code)
	var st entity.JunctionStatus
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "j1", st.Name)

	code, _ = get(t, ts.URL+"/junctions/99")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, ts.URL+"/junctions/abc")
	assert.Equal(t, http.StatusBadRequest, code)
}
