// 相位表与相位选择（Phase Mapper）
// 把"放行哪个进口道"的决策映射到静态配置的合法无冲突相位，
// 相位集合由配置给定而非计算得出，启动时校验一次
package scheduler

import (
	"errors"
	"fmt"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
)

var (
	// ErrNoLegalPhase 排序中的任何进口道都没有合法相位可放行
	// 说明：启动校验通过后运行期出现该错误意味着逻辑缺陷，
	// 调度器停止切换并保持最后一个安全相位
	ErrNoLegalPhase = errors.New("scheduler: no legal phase serves any ranked approach")
)

// conflictKey 规范化的冲突对键（字典序小者在前）
type conflictKey struct {
	a, b entity.ApproachID
}

func newConflictKey(a, b entity.ApproachID) conflictKey {
	if a > b {
		a, b = b, a
	}
	return conflictKey{a: a, b: b}
}

// PhaseTable 合法相位表
// 功能：保存路口的静态相位配置并提供无副作用的相位选择
// 说明：构造时完成全部校验（每个进口道至少被一个相位覆盖、
// 任何相位不得同时放绿冲突的进口道对），运行期只读
type PhaseTable struct {
	phases    []entity.SignalPhase
	byID      map[string]int
	serving   map[entity.ApproachID][]int // 进口道→可放行它的相位下标（表序）
	conflicts map[conflictKey]struct{}
}

// NewPhaseTable 根据路口描述构建相位表
// 返回：相位表或配置错误（致命，进程不应启动）
func NewPhaseTable(spec *entity.JunctionSpec) (*PhaseTable, error) {
	if len(spec.Phases) == 0 {
		return nil, fmt.Errorf("junction %d: phase table is empty", spec.ID)
	}
	if len(spec.Approaches) == 0 {
		return nil, fmt.Errorf("junction %d: no approaches defined", spec.ID)
	}

	approachSet := make(map[entity.ApproachID]struct{}, len(spec.Approaches))
	for _, a := range spec.Approaches {
		if _, ok := approachSet[a]; ok {
			return nil, fmt.Errorf("junction %d: duplicate approach %q", spec.ID, a)
		}
		approachSet[a] = struct{}{}
	}

	t := &PhaseTable{
		phases:    spec.Phases,
		byID:      make(map[string]int, len(spec.Phases)),
		serving:   make(map[entity.ApproachID][]int),
		conflicts: make(map[conflictKey]struct{}, len(spec.Conflicts)),
	}
	for _, c := range spec.Conflicts {
		if _, ok := approachSet[c.A]; !ok {
			return nil, fmt.Errorf("junction %d: conflict pair references unknown approach %q", spec.ID, c.A)
		}
		if _, ok := approachSet[c.B]; !ok {
			return nil, fmt.Errorf("junction %d: conflict pair references unknown approach %q", spec.ID, c.B)
		}
		t.conflicts[newConflictKey(c.A, c.B)] = struct{}{}
	}

	for i, p := range t.phases {
		if p.ID == "" {
			return nil, fmt.Errorf("junction %d: phase %d has empty id", spec.ID, i)
		}
		if _, ok := t.byID[p.ID]; ok {
			return nil, fmt.Errorf("junction %d: duplicate phase id %q", spec.ID, p.ID)
		}
		t.byID[p.ID] = i
		if len(p.Green) == 0 {
			return nil, fmt.Errorf("junction %d: phase %q serves no approach", spec.ID, p.ID)
		}
		for _, g := range p.Green {
			if _, ok := approachSet[g]; !ok {
				return nil, fmt.Errorf("junction %d: phase %q references unknown approach %q", spec.ID, p.ID, g)
			}
			t.serving[g] = append(t.serving[g], i)
		}
		// 相位内部无冲突校验
		for x := 0; x < len(p.Green); x++ {
			for y := x + 1; y < len(p.Green); y++ {
				if t.HasConflict(p.Green[x], p.Green[y]) {
					return nil, fmt.Errorf("junction %d: phase %q assigns green to conflicting approaches %q and %q",
						spec.ID, p.ID, p.Green[x], p.Green[y])
				}
			}
		}
	}

	// 每个进口道至少出现在一个合法相位中
	for _, a := range spec.Approaches {
		if len(t.serving[a]) == 0 {
			return nil, fmt.Errorf("junction %d: approach %q is not served by any phase", spec.ID, a)
		}
	}

	return t, nil
}

// Len 相位数量
func (t *PhaseTable) Len() int {
	return len(t.phases)
}

// Phase 按下标取相位
func (t *PhaseTable) Phase(i int) entity.SignalPhase {
	return t.phases[i]
}

// HasConflict 判断两个进口道是否物理冲突
func (t *PhaseTable) HasConflict(a, b entity.ApproachID) bool {
	_, ok := t.conflicts[newConflictKey(a, b)]
	return ok
}

// SelectPhase 按优先级排序选择相位
// 功能：沿排序从高到低找到第一个可被合法相位放行的进口道；
// 若当前相位已放行该进口道则原样返回当前相位，避免多余切换
// 参数：ranked-按得分降序排列的进口道，current-当前相位下标
// 返回：选中的相位下标；排序中没有任何进口道可被放行时返回ErrNoLegalPhase
// 说明：纯查表选择，无副作用
func (t *PhaseTable) SelectPhase(ranked []entity.ApproachID, current int) (int, error) {
	for _, a := range ranked {
		candidates := t.serving[a]
		if len(candidates) == 0 {
			continue
		}
		if current >= 0 && current < len(t.phases) && t.phases[current].Serves(a) {
			return current, nil
		}
		return candidates[0], nil
	}
	return -1, ErrNoLegalPhase
}

// SelectDistinct 选择不同于当前相位的次优相位
// 功能：最大绿灯时长到达后强制切换时使用，沿排序找到第一个
// 能被非当前相位放行的进口道
// 返回：相位下标与是否找到（单相位配置下找不到）
func (t *PhaseTable) SelectDistinct(ranked []entity.ApproachID, current int) (int, bool) {
	for _, a := range ranked {
		for _, c := range t.serving[a] {
			if c != current {
				return c, true
			}
		}
	}
	return -1, false
}

// CorridorPhase 紧急走廊相位
// 功能：返回放行指定进口道的第一个合法相位
// 说明：启动校验保证每个进口道至少有一个相位，运行期失败属于逻辑缺陷
func (t *PhaseTable) CorridorPhase(a entity.ApproachID) (int, error) {
	if c := t.serving[a]; len(c) > 0 {
		return c[0], nil
	}
	return -1, ErrNoLegalPhase
}

// NextPhase 轮转到下一个相位
// 说明：数据不可用降级后的固定节拍轮转
func (t *PhaseTable) NextPhase(current int) int {
	return (current + 1) % len(t.phases)
}
