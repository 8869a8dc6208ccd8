// 紧急抢占叠加层（Preemption Overlay）
// 独立于自适应调度器的状态机：激活时冻结调度器、持续输出走廊相位，
// 释放时重同步调度器；同一时刻至多一个活动事件，其余先到先服务排队
package scheduler

import (
	"github.com/google/uuid"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/container"
)

// OverlayState 叠加层状态
type OverlayState int32

const (
	OverlayIdle      OverlayState = iota // 无抢占，调度器正常运行
	OverlayActive                        // 走廊相位生效，调度器冻结
	OverlayReleasing                     // 释放过渡，重同步调度器
)

func (s OverlayState) String() string {
	switch s {
	case OverlayIdle:
		return "IDLE"
	case OverlayActive:
		return "ACTIVE"
	case OverlayReleasing:
		return "RELEASING"
	default:
		return "unknown"
	}
}

// Overlay 紧急抢占叠加层
// 说明：每周期先于调度器执行，返回接管决策时本周期不再调用
// 调度器Update；对调度器状态只通过Suspend/Resume交接
type Overlay struct {
	junctionID     int32
	table          *PhaseTable
	sched          *Adaptive
	maxPreemptTime float64 // 单个事件抢占时长上限（秒）

	state   OverlayState
	active  *entity.EmergencyEvent
	elapsed float64 // 当前事件已抢占时长（秒）
	cleared bool    // 活动事件已收到清除信号，下一周期进入释放
	phase   int     // 走廊相位下标（ACTIVE期间有效）

	queue *container.Queue[*entity.EmergencyEvent] // 等待中的事件，先到先服务

	activated bool                     // 本周期是否有事件被激活（供走廊转发）
	released  entity.ApproachID        // 本周期释放的事件来向，空串表示无（供走廊转发）
	records   []entity.EmergencyRecord // 已完结事件，待输出模块取走
}

// NewOverlay 创建抢占叠加层
func NewOverlay(junctionID int32, table *PhaseTable, sched *Adaptive, control config.Control) *Overlay {
	return &Overlay{
		junctionID:     junctionID,
		table:          table,
		sched:          sched,
		maxPreemptTime: control.MaxPreemptTime,
		state:          OverlayIdle,
		queue:          container.NewQueue[*entity.EmergencyEvent](),
	}
}

// Step 执行一个控制周期的抢占处理
// 功能：吸收本周期的紧急信号并推进叠加层状态机
// 参数：signals-本路口的紧急信号，t-当前时间，dt-周期时长
// 返回：接管决策与是否接管；未接管时由调度器产出本周期决策
// 算法说明：
// 1. 信号吸收：Detected为活动/排队事件创建记录（同进口道重复信号
//    忽略），Cleared标记对应事件已清除
// 2. IDLE：有待处理事件立即激活——冻结调度器并当周期输出走廊相位，
//    最小绿灯承诺不阻止紧急接管
// 3. ACTIVE：每周期重发走廊相位提交（执行器幂等，自愈漂移）；
//    本周期收到清除信号时仍输出走廊相位，下一周期释放；
//    抢占时长超过maxPreemptTime时告警并强制释放
// 4. RELEASING：恢复调度器（当前相位不变、持续时长清零）并重申
//    该相位，持续一个周期后回到IDLE；队列非空时下一周期激活下一事件
func (o *Overlay) Step(signals []entity.EmergencySignal, t float64, dt float64) (Decision, bool) {
	o.activated = false
	o.released = ""
	// 清除信号在下一周期才触发释放，本周期仍输出走廊相位
	clearedBefore := o.cleared
	o.absorb(signals, t)

	switch o.state {
	case OverlayIdle:
		ev, ok := o.queue.Pop()
		if !ok {
			return Decision{}, false
		}
		if d, ok := o.activate(ev, t); ok {
			return d, true
		}
		return Decision{}, false

	case OverlayActive:
		o.elapsed += dt
		if clearedBefore {
			// 清除信号在上一周期被吸收，本周期进入释放
			return o.release(t, false), true
		}
		if o.elapsed >= o.maxPreemptTime {
			log.Warnf("junction %d: emergency %s preemption exceeded %.0fs without clearance, forcing release",
				o.junctionID, o.active.ID, o.maxPreemptTime)
			return o.release(t, true), true
		}
		return Decision{PhaseIndex: o.phase, PhaseID: o.table.Phase(o.phase).ID, Kind: entity.CommandCommit}, true

	case OverlayReleasing:
		// 释放过渡结束，回到IDLE；排队事件在下一周期激活，
		// 保证恢复指令先被执行器落实
		o.state = OverlayIdle
		return Decision{}, false
	}
	return Decision{}, false
}

// absorb 吸收本周期的紧急信号
func (o *Overlay) absorb(signals []entity.EmergencySignal, t float64) {
	for _, sig := range signals {
		switch sig.Kind {
		case entity.EmergencyDetected:
			if o.tracked(sig.Approach) {
				// 同一来向的重复检测不创建新事件
				continue
			}
			ev := &entity.EmergencyEvent{
				ID:           uuid.New(),
				JunctionID:   o.junctionID,
				Approach:     sig.Approach,
				DetectedTime: t,
			}
			o.queue.Push(ev)
			if o.state != OverlayIdle {
				log.Infof("junction %d: emergency %s on approach %s queued behind active preemption",
					o.junctionID, ev.ID, ev.Approach)
			}
		case entity.EmergencyCleared:
			o.markCleared(sig.Approach, t)
		}
	}
}

// tracked 指定来向是否已有未完结事件
func (o *Overlay) tracked(a entity.ApproachID) bool {
	if o.active != nil && o.active.Approach == a && o.active.ResolvedTime == nil {
		return true
	}
	_, ok := o.queue.Find(func(ev *entity.EmergencyEvent) bool { return ev.Approach == a })
	return ok
}

// markCleared 标记指定来向的事件已清除
// 说明：活动事件置cleared待下周期释放；排队事件直接完结归档，
// 紧急车辆在轮到之前已通过时无需再抢占
func (o *Overlay) markCleared(a entity.ApproachID, t float64) {
	if o.active != nil && o.active.Approach == a && o.active.ResolvedTime == nil {
		tt := t
		o.active.ResolvedTime = &tt
		o.cleared = true
		return
	}
	if ev, ok := o.queue.RemoveFirst(func(ev *entity.EmergencyEvent) bool { return ev.Approach == a }); ok {
		tt := t
		ev.ResolvedTime = &tt
		o.archive(ev, false)
		return
	}
	log.Debugf("junction %d: clearance for approach %s with no tracked emergency, ignored", o.junctionID, a)
}

// activate 激活事件：冻结调度器并输出走廊相位
// 返回：接管决策与是否激活成功，失败时事件归档、本周期交还调度器
func (o *Overlay) activate(ev *entity.EmergencyEvent, t float64) (Decision, bool) {
	phase, err := o.table.CorridorPhase(ev.Approach)
	if err != nil {
		// 启动校验保证每个进口道都有放行相位，此处只是兜底
		log.Errorf("junction %d: emergency %s: %v, event discarded", o.junctionID, ev.ID, err)
		o.archive(ev, false)
		return Decision{}, false
	}
	o.state = OverlayActive
	o.active = ev
	o.elapsed = 0
	o.cleared = false
	o.phase = phase
	o.activated = true
	o.sched.Suspend()
	log.Infof("junction %d: emergency %s on approach %s preempting with phase %s",
		o.junctionID, ev.ID, ev.Approach, o.table.Phase(phase).ID)
	return Decision{PhaseIndex: phase, PhaseID: o.table.Phase(phase).ID, Kind: entity.CommandCommit}, true
}

// release 释放抢占：重同步调度器并重申其当前相位
func (o *Overlay) release(t float64, timedOut bool) Decision {
	ev := o.active
	if ev.ResolvedTime == nil {
		tt := t
		ev.ResolvedTime = &tt
	}
	o.archive(ev, timedOut)
	o.active = nil
	o.cleared = false
	o.released = ev.Approach
	o.state = OverlayReleasing
	o.sched.Resume()
	cur := o.sched.CurrentPhaseIndex()
	log.Infof("junction %d: emergency %s released after %.0fs, resuming phase %s",
		o.junctionID, ev.ID, o.elapsed, o.table.Phase(cur).ID)
	return Decision{PhaseIndex: cur, PhaseID: o.table.Phase(cur).ID, Kind: entity.CommandCommit}
}

// archive 归档完结事件
func (o *Overlay) archive(ev *entity.EmergencyEvent, timedOut bool) {
	resolved := 0.0
	if ev.ResolvedTime != nil {
		resolved = *ev.ResolvedTime
	}
	o.records = append(o.records, entity.EmergencyRecord{
		EventID:      ev.ID.String(),
		JunctionID:   ev.JunctionID,
		Approach:     string(ev.Approach),
		DetectedTime: ev.DetectedTime,
		ResolvedTime: resolved,
		TimedOut:     timedOut,
	})
}

// State 叠加层状态
func (o *Overlay) State() OverlayState {
	return o.state
}

// ActivatedThisCycle 本周期是否有事件被激活，供走廊转发
func (o *Overlay) ActivatedThisCycle() bool {
	return o.activated
}

// ReleasedApproach 本周期释放的事件来向，无释放时返回空串，供走廊转发
func (o *Overlay) ReleasedApproach() entity.ApproachID {
	return o.released
}

// ActiveApproach 活动事件的来向，无活动事件时返回空串
func (o *Overlay) ActiveApproach() entity.ApproachID {
	if o.active == nil {
		return ""
	}
	return o.active.Approach
}

// DrainRecords 取走已完结事件记录
func (o *Overlay) DrainRecords() []entity.EmergencyRecord {
	out := o.records
	o.records = nil
	return out
}
