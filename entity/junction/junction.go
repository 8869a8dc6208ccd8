package junction

import (
	"sync"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/entity/junction/scheduler"
)

// Junction 受控路口
// 说明：持有相位表、自适应调度器与抢占叠加层，每个控制周期对外
// 输出且仅输出一条相位指令；update只在控制循环的单个goroutine
// 中被调用（不同路口之间并行），status由prepare发布、供HTTP
// 状态接口并发只读
type Junction struct {
	ctx entity.ITaskContext

	id        int32
	name      string
	corridors []entity.CorridorLink

	table   *scheduler.PhaseTable
	sched   *scheduler.Adaptive
	overlay *scheduler.Overlay

	// 走廊转发产生的下游信号，由管理器在并行更新结束后统一分发
	forwards []entity.EmergencySignal

	injectMtx sync.Mutex
	injected  []entity.EmergencySignal // 上游转发来的信号，下一周期生效

	statusMtx sync.RWMutex
	status    entity.JunctionStatus
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据路口静态描述创建Junction对象，构建调度器与抢占叠加层
// 参数：ctx-任务上下文，spec-路口静态描述，table-已通过启动校验的相位表
// 返回：初始化完成的Junction实例
func newJunction(ctx entity.ITaskContext, spec *entity.JunctionSpec, table *scheduler.PhaseTable) *Junction {
	control := ctx.RuntimeConfig().C
	sched := scheduler.NewAdaptive(spec.ID, spec, table, control)
	j := &Junction{
		ctx:       ctx,
		id:        spec.ID,
		name:      spec.Name,
		corridors: spec.Corridors,
		table:     table,
		sched:     sched,
		overlay:   scheduler.NewOverlay(spec.ID, table, sched, control),
	}
	j.status = j.buildStatus()
	return j
}

// ID 路口ID
func (j *Junction) ID() int32 {
	return j.id
}

// Name 路口名
func (j *Junction) Name() string {
	return j.name
}

// Status 上一prepare阶段发布的状态快照
func (j *Junction) Status() entity.JunctionStatus {
	j.statusMtx.RLock()
	defer j.statusMtx.RUnlock()
	return j.status
}

// InjectEmergency 注入一条紧急信号，下一周期生效
// 说明：走廊跨路口转发时由管理器调用，与update不在同一阶段执行
func (j *Junction) InjectEmergency(sig entity.EmergencySignal) {
	j.injectMtx.Lock()
	defer j.injectMtx.Unlock()
	j.injected = append(j.injected, sig)
}

// prepare 准备阶段，发布状态快照
// 功能：把调度器与叠加层的运行时状态复制为只读快照
func (j *Junction) prepare() {
	s := j.buildStatus()
	j.statusMtx.Lock()
	j.status = s
	j.statusMtx.Unlock()
}

func (j *Junction) buildStatus() entity.JunctionStatus {
	return entity.JunctionStatus{
		ID:           j.id,
		Name:         j.name,
		PhaseID:      j.sched.CurrentPhaseID(),
		PhaseElapsed: j.sched.Elapsed(),
		Mode:         j.sched.Mode().String(),
		Overlay:      j.overlay.State().String(),
		Degraded:     j.sched.Degraded(),
		Approaches:   j.sched.StatusApproaches(),
	}
}

// update 更新阶段，执行一个控制周期的调度决策
// 功能：合并外部与转发来的紧急信号，先走抢占叠加层再走自适应
// 调度器，输出相位指令并记录本周期决策
// 参数：in-闩锁后的周期输入
// 算法说明：
// 1. 叠加层优先：返回接管决策时本周期不调用调度器Update，
//    调度器内部状态保持冻结
// 2. 指令下发失败只记录错误，控制循环继续（执行器幂等，下一
//    周期重发同一相位可自愈）
// 3. 叠加层激活/释放时按走廊配置生成下游信号，交由管理器分发
func (j *Junction) update(in *entity.CycleInput) {
	dt := j.ctx.Clock().DT
	signals := append(in.EmergenciesFor(j.id), j.drainInjected()...)

	decision, preempted := j.overlay.Step(signals, in.Time, dt)
	if !preempted {
		decision = j.sched.Update(in.SnapshotFor(j.id), in.Time, dt)
	}

	cmd := entity.PhaseCommand{
		JunctionID: j.id,
		PhaseID:    decision.PhaseID,
		Kind:       decision.Kind,
		Step:       in.Step,
		Time:       in.Time,
	}
	if err := j.ctx.Actuator().CommandPhase(cmd); err != nil {
		log.Errorf("junction %d: actuator rejected %s command for phase %s: %v",
			j.id, cmd.Kind, cmd.PhaseID, err)
	}

	j.ctx.Recorder().RecordCycle(entity.CycleRecord{
		Step:       in.Step,
		Time:       in.Time,
		JunctionID: j.id,
		PhaseID:    decision.PhaseID,
		Command:    decision.Kind.String(),
		Mode:       j.sched.Mode().String(),
		Overlay:    j.overlay.State().String(),
		Degraded:   j.sched.Degraded(),
		TotalWait:  j.sched.TotalWaitingAge(),
	})
	for _, rec := range j.overlay.DrainRecords() {
		j.ctx.Recorder().RecordEmergency(rec)
	}

	j.collectForwards()
}

// collectForwards 按走廊配置生成本周期的下游转发信号
func (j *Junction) collectForwards() {
	j.forwards = j.forwards[:0]
	if j.overlay.ActivatedThisCycle() {
		j.appendForwards(j.overlay.ActiveApproach(), entity.EmergencyDetected)
	}
	if a := j.overlay.ReleasedApproach(); a != "" {
		j.appendForwards(a, entity.EmergencyCleared)
	}
}

func (j *Junction) appendForwards(from entity.ApproachID, kind entity.EmergencyKind) {
	for _, c := range j.corridors {
		if c.From != from {
			continue
		}
		j.forwards = append(j.forwards, entity.EmergencySignal{
			JunctionID: c.ToJunction,
			Kind:       kind,
			Approach:   c.ToApproach,
		})
	}
}

// takeForwards 取走本周期的下游转发信号，由管理器串行调用
func (j *Junction) takeForwards() []entity.EmergencySignal {
	if len(j.forwards) == 0 {
		return nil
	}
	out := make([]entity.EmergencySignal, len(j.forwards))
	copy(out, j.forwards)
	j.forwards = j.forwards[:0]
	return out
}

// drainInjected 取走上游转发来的紧急信号
func (j *Junction) drainInjected() []entity.EmergencySignal {
	j.injectMtx.Lock()
	defer j.injectMtx.Unlock()
	out := j.injected
	j.injected = nil
	return out
}
