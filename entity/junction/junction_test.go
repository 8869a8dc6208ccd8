package junction

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/atsc-oss/clock"
	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

type fakeActuator struct {
	mtx      sync.Mutex
	commands []entity.PhaseCommand
}

func (a *fakeActuator) CommandPhase(cmd entity.PhaseCommand) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.commands = append(a.commands, cmd)
	return nil
}

func (a *fakeActuator) byJunction(id int32) []entity.PhaseCommand {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	var out []entity.PhaseCommand
	for _, c := range a.commands {
		if c.JunctionID == id {
			out = append(out, c)
		}
	}
	return out
}

type fakeRecorder struct {
	mtx         sync.Mutex
	cycles      []entity.CycleRecord
	emergencies []entity.EmergencyRecord
}

func (r *fakeRecorder) RecordCycle(rec entity.CycleRecord) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.cycles = append(r.cycles, rec)
}

func (r *fakeRecorder) RecordEmergency(rec entity.EmergencyRecord) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.emergencies = append(r.emergencies, rec)
}

func (r *fakeRecorder) Flush() error { return nil }
func (r *fakeRecorder) Close() error { return nil }

type fakeContext struct {
	clock    *clock.Clock
	manager  entity.IJunctionManager
	rc       *config.RuntimeConfig
	actuator *fakeActuator
	recorder *fakeRecorder
}

func (c *fakeContext) Clock() *clock.Clock                      { return c.clock }
func (c *fakeContext) JunctionManager() entity.IJunctionManager { return c.manager }
func (c *fakeContext) RuntimeConfig() *config.RuntimeConfig     { return c.rc }
func (c *fakeContext) Collector() entity.ICollector             { return nil }
func (c *fakeContext) Detector() entity.IEmergencyDetector      { return nil }
func (c *fakeContext) Actuator() entity.IActuator               { return c.actuator }
func (c *fakeContext) Recorder() entity.IRecorder               { return c.recorder }

func testConfig() config.Config {
	return config.Config{
		Control: config.Control{
			Step:           config.ControlStep{Start: 0, Total: 100, Interval: 5},
			MinGreen:       10,
			MaxGreen:       40,
			MaxPreemptTime: 60,
			MaxHoldCycles:  2,
		},
	}
}

func newTestContext() *fakeContext {
	cfg := testConfig()
	return &fakeContext{
		clock:    clock.New(cfg.Control.Step),
		rc:       config.NewRuntimeConfig(cfg),
		actuator: &fakeActuator{},
		recorder: &fakeRecorder{},
	}
}

// corridorSpecs 两个相邻十字路口，J1东进口的走廊延伸到J2南进口
func corridorSpecs() []*entity.JunctionSpec {
	cross := func(id int32, name string) *entity.JunctionSpec {
		return &entity.JunctionSpec{
			ID:         id,
			Name:       name,
			Approaches: []entity.ApproachID{"north", "south", "east", "west"},
			Phases: []entity.SignalPhase{
				{ID: "NS", Green: []entity.ApproachID{"north", "south"}},
				{ID: "EW", Green: []entity.ApproachID{"east", "west"}},
			},
			Conflicts: []entity.ConflictPair{
				{A: "north", B: "east"}, {A: "north", B: "west"},
				{A: "south", B: "east"}, {A: "south", B: "west"},
			},
		}
	}
	j1 := cross(1, "j1")
	j1.Corridors = []entity.CorridorLink{{From: "east", ToJunction: 2, ToApproach: "south"}}
	j2 := cross(2, "j2")
	return []*entity.JunctionSpec{j1, j2}
}

func cycleAt(step int32, interval float64) *entity.CycleInput {
	return &entity.CycleInput{
		Step:      step,
		Time:      float64(step) * interval,
		Snapshots: map[int32]*entity.TrafficSnapshot{},
	}
}

func TestManagerInitValidation(t *testing.T) {
	ctx := newTestContext()

	t.Run("empty", func(t *testing.T) {
		err := NewManager(ctx).Init(nil)
		assert.ErrorContains(t, err, "no junctions")
	})
	t.Run("duplicate id", func(t *testing.T) {
		specs := corridorSpecs()
		specs[1].ID = specs[0].ID
		err := NewManager(ctx).Init(specs)
		assert.ErrorContains(t, err, "duplicate junction id")
	})
	t.Run("corridor to unknown junction", func(t *testing.T) {
		specs := corridorSpecs()
		specs[0].Corridors[0].ToJunction = 99
		err := NewManager(ctx).Init(specs)
		assert.ErrorContains(t, err, "unknown junction 99")
	})
	t.Run("corridor to unknown approach", func(t *testing.T) {
		specs := corridorSpecs()
		specs[0].Corridors[0].ToApproach = "ramp"
		err := NewManager(ctx).Init(specs)
		assert.ErrorContains(t, err, `unknown approach "ramp"`)
	})
}

func TestManagerLookup(t *testing.T) {
	ctx := newTestContext()
	m := NewManager(ctx)
	require.NoError(t, m.Init(corridorSpecs()))

	assert.Equal(t, int32(1), m.Get(1).ID())
	assert.Len(t, m.All(), 2)
	_, err := m.GetOrError(99)
	assert.Error(t, err)
}

func TestOneCommandPerJunctionPerCycle(t *testing.T) {
	ctx := newTestContext()
	m := NewManager(ctx)
	ctx.manager = m
	require.NoError(t, m.Init(corridorSpecs()))

	for step := int32(0); step < 5; step++ {
		m.Prepare()
		m.Update(cycleAt(step, 5))
	}
	for _, id := range []int32{1, 2} {
		cmds := ctx.actuator.byJunction(id)
		require.Len(t, cmds, 5)
		for i, c := range cmds {
			assert.Equal(t, int32(i), c.Step)
		}
	}
	assert.Len(t, ctx.recorder.cycles, 10)
}

func TestCorridorForwarding(t *testing.T) {
	ctx := newTestContext()
	m := NewManager(ctx)
	ctx.manager = m
	require.NoError(t, m.Init(corridorSpecs()))

	// 第0周期：J1检测到东向紧急车辆，当周期即被抢占
	in := cycleAt(0, 5)
	in.Emergencies = []entity.EmergencySignal{
		{JunctionID: 1, Kind: entity.EmergencyDetected, Approach: "east"},
	}
	m.Update(in)
	m.Prepare()
	assert.Equal(t, "ACTIVE", m.Get(1).Status().Overlay)
	assert.Equal(t, "IDLE", m.Get(2).Status().Overlay)

	// 第1周期：转发的信号生效，下游J2抢占其南进口走廊相位
	m.Update(cycleAt(1, 5))
	m.Prepare()
	assert.Equal(t, "ACTIVE", m.Get(2).Status().Overlay)
	assert.Equal(t, "NS", m.Get(2).Status().PhaseID)

	cmds := ctx.actuator.byJunction(2)
	require.Len(t, cmds, 2)
	assert.Equal(t, entity.CommandCommit, cmds[1].Kind)
	assert.Equal(t, "NS", cmds[1].PhaseID)
}

func TestCorridorClearanceForwarded(t *testing.T) {
	ctx := newTestContext()
	m := NewManager(ctx)
	ctx.manager = m
	require.NoError(t, m.Init(corridorSpecs()))

	in := cycleAt(0, 5)
	in.Emergencies = []entity.EmergencySignal{
		{JunctionID: 1, Kind: entity.EmergencyDetected, Approach: "east"},
	}
	m.Update(in) // J1激活，转发Detected
	m.Update(cycleAt(1, 5)) // J2激活

	in = cycleAt(2, 5)
	in.Emergencies = []entity.EmergencySignal{
		{JunctionID: 1, Kind: entity.EmergencyCleared, Approach: "east"},
	}
	m.Update(in)            // J1本周期仍输出走廊相位
	m.Update(cycleAt(3, 5)) // J1释放，转发Cleared
	m.Update(cycleAt(4, 5)) // J2收到清除，本周期仍走廊相位
	m.Update(cycleAt(5, 5)) // J2释放
	m.Prepare()

	assert.Equal(t, "RELEASING", m.Get(2).Status().Overlay)
	require.Len(t, ctx.recorder.emergencies, 2)
	for _, rec := range ctx.recorder.emergencies {
		assert.False(t, rec.TimedOut)
	}
}

func TestStatusPublishedByPrepare(t *testing.T) {
	ctx := newTestContext()
	m := NewManager(ctx)
	ctx.manager = m
	require.NoError(t, m.Init(corridorSpecs()))

	st := m.Get(1).Status()
	assert.Equal(t, "NS", st.PhaseID)
	assert.Equal(t, "NORMAL", st.Mode)
	assert.Len(t, st.Approaches, 4)

	// 数据缺失进入降级后状态随prepare刷新
	for step := int32(0); step < 4; step++ {
		m.Update(cycleAt(step, 5))
	}
	m.Prepare()
	assert.True(t, m.Get(1).Status().Degraded)
}
