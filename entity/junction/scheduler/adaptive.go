// 自适应调度器（Adaptive Scheduler）
// 每个控制周期产出且仅产出一条相位决策：最小绿灯承诺期内不重新评估，
// 到达最大绿灯时长强制让位给次优相位，数据不可用时先保持后降级轮转
package scheduler

import (
	"fmt"
	"sort"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

// Mode 调度器状态
type Mode int32

const (
	ModeNormal        Mode = iota // 常规调度
	ModeTransitioning             // 过渡清空（黄灯/全红），持续一个周期
	ModePreempted                 // 被紧急抢占，内部状态冻结
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeTransitioning:
		return "TRANSITIONING"
	case ModePreempted:
		return "PREEMPTED"
	default:
		return fmt.Sprintf("unknown(%d)", int32(m))
	}
}

// Decision 一个控制周期的相位决策
type Decision struct {
	PhaseIndex int                // 相位下标
	PhaseID    string             // 相位名
	Kind       entity.CommandKind // 指令类型
}

// approachState 进口道调度状态（调度器独占写入）
// 不变式：waitingAge≥0，且每次放行事件恰好清零一次
type approachState struct {
	priorityScore  float64 // 最近一次计算的得分
	waitingAge     int32   // 未放行周期数
	lastServedTime float64 // 最近一次放行时间（秒）
}

// Adaptive 自适应调度器
// 说明：SchedulerRuntimeState（当前相位、已持续时长、状态）与
// 各进口道调度状态都由本结构独占持有，抢占叠加层只通过
// Suspend/Resume显式交接，不直接改写内部字段（单写者不变式）
type Adaptive struct {
	junctionID int32
	table      *PhaseTable
	engine     *PriorityEngine

	minGreen      float64 // 最小绿灯时间（秒）
	maxGreen      float64 // 最大绿灯时间（秒）
	maxHoldCycles int32   // 数据不可用时保持当前相位的最大周期数

	mode       Mode
	current    int     // 当前相位下标
	pending    int     // 过渡中待提交的相位下标
	elapsed    float64 // 当前相位已持续时长（秒）
	approaches map[entity.ApproachID]*approachState
	order      []entity.ApproachID // 进口道字典序，保证遍历顺序确定

	holdCycles int32 // 数据不可用后已保持的连续周期数
	degraded   bool  // 已降级为固定轮转
	halted     bool  // 运行期出现无合法相位（逻辑缺陷），停止切换
}

// NewAdaptive 创建自适应调度器
// 参数：junctionID-路口ID，spec-路口描述，table-相位表，control-时序配置
// 说明：初始相位为相位表第一项，所有进口道等待老化从0开始
func NewAdaptive(junctionID int32, spec *entity.JunctionSpec, table *PhaseTable, control config.Control) *Adaptive {
	s := &Adaptive{
		junctionID:    junctionID,
		table:         table,
		engine:        NewPriorityEngine(),
		minGreen:      control.MinGreen,
		maxGreen:      control.MaxGreen,
		maxHoldCycles: control.MaxHoldCycles,
		mode:          ModeNormal,
		current:       0,
		pending:       -1,
		approaches:    make(map[entity.ApproachID]*approachState, len(spec.Approaches)),
		order:         make([]entity.ApproachID, 0, len(spec.Approaches)),
	}
	for _, a := range spec.Approaches {
		s.approaches[a] = &approachState{}
		s.order = append(s.order, a)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return s
}

// Update 执行一个控制周期的调度决策
// 功能：推进相位持续时长并产出本周期的相位决策，仅在非抢占周期调用
// 参数：snapshot-闩锁后的交通快照（不可用时为nil），t-当前时间，dt-周期时长
// 算法说明：
// 1. 数据不可用：保持当前相位至多maxHoldCycles个周期，之后降级为
//    固定轮转（每满最小绿灯时间切换到下一相位）直至数据恢复
// 2. 过渡提交：上一周期发出清空指令后，本周期提交待切换相位，
//    持续时长清零，新放绿进口道老化清零、其余+1
// 3. 最小绿灯承诺：elapsed<minGreen时不重新评估，直接保持
// 4. 常规评估：推进归一化状态→计算得分→排序→选择相位；
//    选中当前相位且elapsed≥maxGreen时强制换成次优的不同相位
// 5. 切换发起：发出携带原相位的清空指令并进入TRANSITIONING一个周期
// 任何错误都不会让本周期没有决策（fail-operational）
func (s *Adaptive) Update(snapshot *entity.TrafficSnapshot, t float64, dt float64) Decision {
	if s.mode == ModePreempted {
		// 不应发生：抢占期间由叠加层直接出指令
		return s.hold()
	}
	s.elapsed += dt

	if s.halted {
		// 运行期无合法相位，保持最后一个安全相位
		return s.hold()
	}

	// 过渡提交（上一周期发出了清空指令）
	if s.mode == ModeTransitioning {
		s.current = s.pending
		s.pending = -1
		s.elapsed = dt
		s.mode = ModeNormal
		s.advanceAges(t, true)
		return Decision{PhaseIndex: s.current, PhaseID: s.phaseID(s.current), Kind: entity.CommandCommit}
	}

	// 数据不可用降级
	if snapshot == nil || len(snapshot.Measurements) == 0 {
		s.holdCycles++
		if s.holdCycles <= s.maxHoldCycles {
			s.advanceAges(t, true)
			return s.hold()
		}
		if !s.degraded {
			s.degraded = true
			log.Warnf("junction %d: snapshot unavailable for %d cycles, falling back to round-robin",
				s.junctionID, s.holdCycles)
		}
		// 固定轮转节拍：每满最小绿灯时间切换到下一相位
		// 切换周期的老化推进由beginTransition完成，与常规路径一致
		if s.elapsed >= s.minGreen {
			return s.beginTransition(s.table.NextPhase(s.current))
		}
		s.advanceAges(t, true)
		return s.hold()
	}
	if s.degraded {
		log.Infof("junction %d: snapshot restored, resuming adaptive scheduling", s.junctionID)
	}
	s.holdCycles = 0
	s.degraded = false

	// 归一化状态每周期推进，得分评估受最小绿灯承诺约束
	s.engine.Observe(snapshot)

	if s.elapsed < s.minGreen {
		s.advanceAges(t, true)
		return s.hold()
	}

	scores := s.engine.ComputePriorities(snapshot, s.ages())
	for a, sc := range scores {
		s.approaches[a].priorityScore = sc
	}
	ranked := s.engine.Rank(scores)

	selected, err := s.table.SelectPhase(ranked, s.current)
	if err != nil {
		// 启动校验通过后不应出现，出现即为逻辑缺陷：停止切换并上报
		s.halted = true
		log.Errorf("junction %d: %v, holding last known safe phase", s.junctionID, err)
		s.advanceAges(t, true)
		return s.hold()
	}

	if selected == s.current {
		if s.elapsed >= s.maxGreen {
			// 硬上限：强制评估次优的不同相位，保证竞争需求下人人有份
			if alt, ok := s.table.SelectDistinct(ranked, s.current); ok {
				return s.beginTransition(alt)
			}
		}
		s.advanceAges(t, true)
		return s.hold()
	}
	return s.beginTransition(selected)
}

// Suspend 抢占交接：冻结调度状态
// 说明：ACTIVE期间Update不再被调用，elapsed与waitingAge保持原值，
// 公平性核算在抢占结束后从冻结点继续
func (s *Adaptive) Suspend() {
	if s.mode == ModeTransitioning {
		// 过渡被抢占打断：放弃待切换相位，恢复后从当前相位重新评估
		s.pending = -1
	}
	s.mode = ModePreempted
}

// Resume 抢占交接：恢复常规调度
// 说明：currentPhase保持原值不强制切换，elapsed清零使恢复的相位
// 获得完整的最小绿灯窗口，下一周期恢复常规优先级评估
func (s *Adaptive) Resume() {
	s.mode = ModeNormal
	s.elapsed = 0
	s.holdCycles = 0
}

// hold 保持当前相位的决策
func (s *Adaptive) hold() Decision {
	return Decision{PhaseIndex: s.current, PhaseID: s.phaseID(s.current), Kind: entity.CommandHold}
}

// beginTransition 发起相位切换
// 说明：清空指令携带让行中的原相位，过渡持续一个周期
func (s *Adaptive) beginTransition(to int) Decision {
	s.pending = to
	s.mode = ModeTransitioning
	// 清空周期内没有进口道被放行，所有老化+1
	for _, a := range s.order {
		s.approaches[a].waitingAge++
	}
	return Decision{PhaseIndex: s.current, PhaseID: s.phaseID(s.current), Kind: entity.CommandClearance}
}

// advanceAges 推进等待老化
// 功能：当前相位放绿的进口道老化清零（视为正在被放行），其余+1
// 参数：serveCurrent-false时全部+1（无人被放行的周期）
func (s *Adaptive) advanceAges(t float64, serveCurrent bool) {
	phase := s.table.Phase(s.current)
	for _, a := range s.order {
		st := s.approaches[a]
		if serveCurrent && phase.Serves(a) {
			if st.waitingAge != 0 {
				st.waitingAge = 0
			}
			st.lastServedTime = t
		} else {
			st.waitingAge++
		}
	}
}

// ages 进口道→当前老化值
func (s *Adaptive) ages() map[entity.ApproachID]int32 {
	out := make(map[entity.ApproachID]int32, len(s.approaches))
	for a, st := range s.approaches {
		out[a] = st.waitingAge
	}
	return out
}

func (s *Adaptive) phaseID(i int) string {
	return s.table.Phase(i).ID
}

// Mode 当前调度状态
func (s *Adaptive) Mode() Mode {
	return s.mode
}

// CurrentPhaseIndex 当前相位下标
func (s *Adaptive) CurrentPhaseIndex() int {
	return s.current
}

// CurrentPhaseID 当前相位名
func (s *Adaptive) CurrentPhaseID() string {
	return s.phaseID(s.current)
}

// Elapsed 当前相位已持续时长（秒）
func (s *Adaptive) Elapsed() float64 {
	return s.elapsed
}

// Degraded 是否处于固定轮转降级
func (s *Adaptive) Degraded() bool {
	return s.degraded
}

// WaitingAge 指定进口道的未放行周期数
func (s *Adaptive) WaitingAge(a entity.ApproachID) int32 {
	if st, ok := s.approaches[a]; ok {
		return st.waitingAge
	}
	return 0
}

// TotalWaitingAge 所有进口道老化之和，供输出统计
func (s *Adaptive) TotalWaitingAge() float64 {
	sum := 0.0
	for _, st := range s.approaches {
		sum += float64(st.waitingAge)
	}
	return sum
}

// StatusApproaches 进口道状态快照（字典序），供对外展示
func (s *Adaptive) StatusApproaches() []entity.ApproachStatus {
	phase := s.table.Phase(s.current)
	out := make([]entity.ApproachStatus, 0, len(s.order))
	for _, a := range s.order {
		st := s.approaches[a]
		out = append(out, entity.ApproachStatus{
			ID:         a,
			WaitingAge: st.waitingAge,
			Score:      st.priorityScore,
			Green:      phase.Serves(a),
		})
	}
	return out
}
