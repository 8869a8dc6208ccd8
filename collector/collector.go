// 合成交通数据源
// 功能：没有外部检测器系统时驱动控制器的闭环数据源，按泊松分布
// 生成每周期到达车辆，并根据执行器落实的相位消解排队，使调度
// 决策能在数据端形成反馈
package collector

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/randengine"
)

var (
	serviceRate = flag.Float64("collector.service_rate", 8, "绿灯进口道每周期放行车辆数")
	capacity    = flag.Float64("collector.capacity", 20, "进口道容量（排队车辆数），用于占有率归一化")
	freeSpeed   = flag.Float64("collector.free_speed", 13.9, "自由流速度m/s，排队为空时的平均速度")
)

// approachTraffic 单个进口道的交通状态
type approachTraffic struct {
	rate  float64 // 每周期平均到达车辆数
	queue int     // 当前排队长度
}

// junctionTraffic 单个路口的交通状态
type junctionTraffic struct {
	spec       *entity.JunctionSpec
	approaches map[entity.ApproachID]*approachTraffic
	phase      entity.SignalPhase // 执行器最近落实的相位
	clearing   bool               // 清空过渡中，所有进口道停止放行
}

// Synthetic 合成交通数据源
// 说明：实现entity.ICollector；同时作为执行器回传目标，
// ApplyCommand与Collect分别在周期的下发与采集阶段被调用，
// 用互斥锁保护共享状态
type Synthetic struct {
	rc     *config.RuntimeConfig
	engine *randengine.Engine

	mtx       sync.Mutex
	junctions map[int32]*junctionTraffic
	order     []int32 // 路口ID升序，保证随机数消耗顺序可复现
}

// New 创建合成交通数据源
// 功能：按配置的到达率初始化每个路口进口道的交通状态
// 参数：rc-运行时配置，specs-路口静态描述列表
// 返回：数据源实例；相位表为空的路口描述返回配置错误
// 说明：初始相位为相位表第一项，与调度器初始状态保持一致
func New(rc *config.RuntimeConfig, specs []*entity.JunctionSpec) (*Synthetic, error) {
	c := rc.All.Collector
	overrides := make(map[int32]map[entity.ApproachID]float64)
	for _, a := range c.Arrivals {
		if overrides[a.Junction] == nil {
			overrides[a.Junction] = make(map[entity.ApproachID]float64)
		}
		overrides[a.Junction][entity.ApproachID(a.Approach)] = a.Rate
	}

	s := &Synthetic{
		rc:        rc,
		engine:    randengine.New(c.Seed),
		junctions: make(map[int32]*junctionTraffic, len(specs)),
	}
	for _, spec := range specs {
		if len(spec.Phases) == 0 {
			return nil, fmt.Errorf("junction %d: phase table is empty", spec.ID)
		}
		jt := &junctionTraffic{
			spec:       spec,
			approaches: make(map[entity.ApproachID]*approachTraffic, len(spec.Approaches)),
			phase:      spec.Phases[0],
		}
		for _, a := range spec.Approaches {
			rate := c.DefaultArrival
			if r, ok := overrides[spec.ID][a]; ok {
				rate = r
			}
			jt.approaches[a] = &approachTraffic{rate: rate}
		}
		s.junctions[spec.ID] = jt
		s.order = append(s.order, spec.ID)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return s, nil
}

// ApplyCommand 执行器回传：记录落实的相位
// 功能：commit更新放行相位，clearance期间所有进口道停止放行，
// hold保持现状；重复下发同一相位时幂等
func (s *Synthetic) ApplyCommand(cmd entity.PhaseCommand) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	jt, ok := s.junctions[cmd.JunctionID]
	if !ok {
		return
	}
	switch cmd.Kind {
	case entity.CommandCommit:
		jt.clearing = false
		for _, p := range jt.spec.Phases {
			if p.ID == cmd.PhaseID {
				jt.phase = p
				return
			}
		}
		log.Warnf("junction %d: committed unknown phase %q ignored", cmd.JunctionID, cmd.PhaseID)
	case entity.CommandClearance:
		jt.clearing = true
	case entity.CommandHold:
		jt.clearing = false
	}
}

// Collect 采集本周期所有路口的交通快照
// 功能：推进到达与放行并输出量测
// 算法说明：
// 1. 到达：每个进口道按泊松分布采样到达车辆数并入队
// 2. 放行：当前相位放绿且不在清空过渡的进口道按服务率出队
// 3. 量测：占有率=min(排队/容量,1)，平均速度随排队占比线性衰减
// 4. 丢失演练：每个路口以dropout概率缺失本周期快照
func (s *Synthetic) Collect(step int32, time float64) (map[int32]*entity.TrafficSnapshot, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	dropout := s.rc.All.Collector.Dropout
	out := make(map[int32]*entity.TrafficSnapshot, len(s.junctions))
	for _, id := range s.order {
		jt := s.junctions[id]
		measurements := make(map[entity.ApproachID]entity.TrafficMeasurement, len(jt.approaches))
		for _, a := range jt.spec.Approaches {
			at := jt.approaches[a]
			at.queue += s.engine.Poisson(at.rate)
			if !jt.clearing && jt.phase.Serves(a) {
				at.queue = max(at.queue-int(*serviceRate), 0)
			}
			occ := min(float64(at.queue)/(*capacity), 1.0)
			measurements[a] = entity.TrafficMeasurement{
				VehicleCount: at.queue,
				Occupancy:    occ,
				QueueLength:  at.queue,
				MeanSpeed:    *freeSpeed * (1 - occ),
			}
		}
		if dropout > 0 && s.engine.PTrue(dropout) {
			// 演练降级路径：本周期该路口快照缺失
			continue
		}
		out[id] = &entity.TrafficSnapshot{
			Time:         time,
			Step:         step,
			Measurements: measurements,
		}
	}
	return out, nil
}

// QueueLength 指定进口道的当前排队长度，供测试与诊断
func (s *Synthetic) QueueLength(junctionID int32, a entity.ApproachID) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if jt, ok := s.junctions[junctionID]; ok {
		if at, ok := jt.approaches[a]; ok {
			return at.queue
		}
	}
	return 0
}
