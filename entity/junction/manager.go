package junction

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/entity/junction/scheduler"
)

// Junction管理器
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction
}

// NewManager 创建Junction管理器实例
// 功能：初始化Junction管理器，创建内部数据结构
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有Junction及其调度器
// 功能：校验每个路口的相位表配置（进口道覆盖、冲突约束、走廊
// 指向），随后并行创建Junction对象
// 参数：specs-路口静态描述列表
// 返回：任一路口配置非法时返回错误，进程不应启动
func (m *JunctionManager) Init(specs []*entity.JunctionSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no junctions configured")
	}
	specByID := make(map[int32]*entity.JunctionSpec, len(specs))
	for _, spec := range specs {
		if _, ok := specByID[spec.ID]; ok {
			return fmt.Errorf("duplicate junction id %d", spec.ID)
		}
		specByID[spec.ID] = spec
	}

	// 相位表校验串行执行，保证错误信息确定且完整
	tables := make(map[int32]*scheduler.PhaseTable, len(specs))
	for _, spec := range specs {
		table, err := scheduler.NewPhaseTable(spec)
		if err != nil {
			return err
		}
		tables[spec.ID] = table
		if err := validateCorridors(spec, specByID); err != nil {
			return err
		}
		log.Infof("junction %d (%s): %d approaches, %d phases, %d conflict pairs, %d corridor links",
			spec.ID, spec.Name, len(spec.Approaches), len(spec.Phases), len(spec.Conflicts), len(spec.Corridors))
	}

	m.junctions = parallel.GoMap(specs, func(spec *entity.JunctionSpec) *Junction {
		return newJunction(m.ctx, spec, tables[spec.ID])
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	return nil
}

// validateCorridors 校验走廊配置指向已知的路口与进口道
func validateCorridors(spec *entity.JunctionSpec, specByID map[int32]*entity.JunctionSpec) error {
	approachSet := lo.SliceToMap(spec.Approaches, func(a entity.ApproachID) (entity.ApproachID, struct{}) {
		return a, struct{}{}
	})
	for _, c := range spec.Corridors {
		if _, ok := approachSet[c.From]; !ok {
			return fmt.Errorf("junction %d: corridor references unknown approach %q", spec.ID, c.From)
		}
		target, ok := specByID[c.ToJunction]
		if !ok {
			return fmt.Errorf("junction %d: corridor references unknown junction %d", spec.ID, c.ToJunction)
		}
		if !lo.Contains(target.Approaches, c.ToApproach) {
			return fmt.Errorf("junction %d: corridor references unknown approach %q of junction %d",
				spec.ID, c.ToApproach, c.ToJunction)
		}
	}
	return nil
}

// Get 根据ID获取Junction实例
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则panic
// 参数：id-Junction的唯一标识符
// 返回：对应的Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例（带错误处理）
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则返回错误
// 参数：id-Junction的唯一标识符
// 返回：Junction实例和错误信息，如果不存在则返回nil和错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return junction, nil
	}
}

// All 全部路口
func (m *JunctionManager) All() []entity.IJunction {
	return lo.Map(m.junctions, func(j *Junction, _ int) entity.IJunction { return j })
}

// Prepare 准备阶段，发布所有Junction的状态快照
// 说明：使用并行处理提高性能
func (m *JunctionManager) Prepare() {
	parallel.GoFor(m.junctions, func(j *Junction) { j.prepare() })
}

// Update 更新阶段，执行所有Junction的调度决策
// 功能：并行执行每个路口的周期决策，随后串行分发走廊转发信号
// 参数：in-闩锁后的周期输入
// 说明：转发信号注入到下游路口的待处理队列，下一周期生效
func (m *JunctionManager) Update(in *entity.CycleInput) {
	parallel.GoFor(m.junctions, func(j *Junction) { j.update(in) })
	for _, j := range m.junctions {
		for _, sig := range j.takeForwards() {
			target, ok := m.data[sig.JunctionID]
			if !ok {
				// Init已校验走廊指向，此处只是兜底
				log.Warnf("junction %d: corridor forward to unknown junction %d dropped", j.id, sig.JunctionID)
				continue
			}
			target.InjectEmergency(sig)
		}
	}
}
