package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// ApproachID 进口道标识
// 说明：路口的一个放行方向（如北进口、东进口），由配置静态给定，运行期不变
type ApproachID string

// TrafficMeasurement 单个进口道在一个控制周期内的交通量测
// 说明：由数据采集器每周期产生一次，捕获后不再修改，下一周期被整体替换
type TrafficMeasurement struct {
	VehicleCount int     `yaml:"vehicle_count" bson:"vehicle_count"` // 车辆数（非负）
	Occupancy    float64 `yaml:"occupancy" bson:"occupancy"`         // 占有率[0,1]
	QueueLength  int     `yaml:"queue_length" bson:"queue_length"`   // 排队长度（非负）
	MeanSpeed    float64 `yaml:"mean_speed" bson:"mean_speed"`       // 平均速度m/s，无车时为0
}

// TrafficSnapshot 一个路口在一个控制周期的交通状态快照
// 说明：调度器只读，进口道→量测的映射
type TrafficSnapshot struct {
	Time         float64                           // 仿真/采集时间（秒）
	Step         int32                             // 控制周期序号
	Measurements map[ApproachID]TrafficMeasurement // 进口道→量测
}

// SignalPhase 信号相位
// 功能：一组互不冲突的进口道绿灯组合，相位集合由配置静态给定
type SignalPhase struct {
	ID    string       `yaml:"id" bson:"id"`       // 相位名（如"NS"、"EW"）
	Green []ApproachID `yaml:"green" bson:"green"` // 该相位放绿的进口道
}

// Serves 判断相位是否放行指定进口道
func (p SignalPhase) Serves(a ApproachID) bool {
	for _, g := range p.Green {
		if g == a {
			return true
		}
	}
	return false
}

// ConflictPair 物理冲突的进口道对
type ConflictPair struct {
	A ApproachID `yaml:"a" bson:"a"`
	B ApproachID `yaml:"b" bson:"b"`
}

// CorridorLink 紧急走廊的下游延伸
// 说明：当某进口道被抢占时，沿紧急车辆路线向下游路口的对应进口道转发检测信号，
// 使走廊跨路口全程绿灯
type CorridorLink struct {
	From       ApproachID `yaml:"from" bson:"from"`               // 本路口进口道
	ToJunction int32      `yaml:"to_junction" bson:"to_junction"` // 下游路口ID
	ToApproach ApproachID `yaml:"to_approach" bson:"to_approach"` // 下游路口进口道
}

// JunctionSpec 路口静态描述
// 功能：一个受控路口的进口道集合、合法相位表、冲突表与走廊连接
// 说明：由utils/input从文件或MongoDB加载，启动时校验一次，运行期只读
type JunctionSpec struct {
	ID         int32          `yaml:"id" bson:"id"`
	Name       string         `yaml:"name" bson:"name"`
	Approaches []ApproachID   `yaml:"approaches" bson:"approaches"`
	Phases     []SignalPhase  `yaml:"phases" bson:"phases"`
	Conflicts  []ConflictPair `yaml:"conflicts,omitempty" bson:"conflicts,omitempty"`
	Corridors  []CorridorLink `yaml:"corridors,omitempty" bson:"corridors,omitempty"`
}

// EmergencyKind 紧急信号类型
type EmergencyKind int32

const (
	EmergencyNone     EmergencyKind = iota // 无紧急情况
	EmergencyDetected                      // 检测到紧急车辆
	EmergencyCleared                       // 紧急车辆已通过监测区
)

// EmergencySignal 检测器每周期上报的紧急信号
type EmergencySignal struct {
	JunctionID int32         // 目标路口
	Kind       EmergencyKind // 信号类型
	Approach   ApproachID    // 紧急车辆来向（Detected时有效）
}

// EmergencyEvent 紧急事件
// 说明：检测到候选紧急车辆时创建，走廊释放、恢复常规调度后归档
type EmergencyEvent struct {
	ID           uuid.UUID  // 事件唯一标识
	JunctionID   int32      // 所在路口
	Approach     ApproachID // 来向进口道
	DetectedTime float64    // 检测时间（秒）
	ResolvedTime *float64   // 清除时间，未清除时为nil
}

// CommandKind 相位指令类型
type CommandKind int32

const (
	CommandCommit    CommandKind = iota // 提交新相位
	CommandHold                         // 保持当前相位
	CommandClearance                    // 过渡清空（黄灯/全红）
)

func (k CommandKind) String() string {
	switch k {
	case CommandCommit:
		return "commit"
	case CommandHold:
		return "hold"
	case CommandClearance:
		return "clearance"
	default:
		return fmt.Sprintf("unknown(%d)", int32(k))
	}
}

// PhaseCommand 相位指令
// 说明：核心每个控制周期对每个路口输出且仅输出一条，交给执行器；
// 以当前相位重复下发时执行器应幂等处理
type PhaseCommand struct {
	JunctionID int32       // 路口ID
	PhaseID    string      // 目标相位
	Kind       CommandKind // 指令类型
	Step       int32       // 周期序号
	Time       float64     // 时间（秒）
}

// CycleInput 一个控制周期内闩锁后的全部输入
// 说明：快照与紧急信号在周期开始时一次性拉取并绑定在一起，
// 调度决策不会混用不同周期的输入
type CycleInput struct {
	Step        int32
	Time        float64
	Snapshots   map[int32]*TrafficSnapshot // 路口ID→快照，缺失视为数据不可用
	Emergencies []EmergencySignal
}

// SnapshotFor 取指定路口的快照，缺失时返回nil
func (in *CycleInput) SnapshotFor(junctionID int32) *TrafficSnapshot {
	if in == nil || in.Snapshots == nil {
		return nil
	}
	return in.Snapshots[junctionID]
}

// EmergenciesFor 取指定路口的紧急信号
func (in *CycleInput) EmergenciesFor(junctionID int32) []EmergencySignal {
	if in == nil {
		return nil
	}
	var out []EmergencySignal
	for _, e := range in.Emergencies {
		if e.JunctionID == junctionID {
			out = append(out, e)
		}
	}
	return out
}

// CycleRecord 每周期决策记录，供输出模块落盘
type CycleRecord struct {
	Step       int32   `bson:"step"`
	Time       float64 `bson:"time"`
	JunctionID int32   `bson:"junction_id"`
	PhaseID    string  `bson:"phase_id"`
	Command    string  `bson:"command"`
	Mode       string  `bson:"mode"`
	Overlay    string  `bson:"overlay"`
	Degraded   bool    `bson:"degraded"`
	TotalWait  float64 `bson:"total_wait"` // 所有进口道waitingAge之和，用于汇总统计
}

// EmergencyRecord 紧急事件记录，供输出模块落盘
type EmergencyRecord struct {
	EventID      string  `bson:"event_id"`
	JunctionID   int32   `bson:"junction_id"`
	Approach     string  `bson:"approach"`
	DetectedTime float64 `bson:"detected_time"`
	ResolvedTime float64 `bson:"resolved_time"`
	TimedOut     bool    `bson:"timed_out"`
}

// ApproachStatus 进口道状态（对外展示）
type ApproachStatus struct {
	ID         ApproachID `json:"id"`
	WaitingAge int32      `json:"waiting_age"`
	Score      float64    `json:"score"`
	Green      bool       `json:"green"`
}

// JunctionStatus 路口状态（对外展示）
// 说明：prepare阶段由运行时状态复制而来，HTTP状态接口并发只读
type JunctionStatus struct {
	ID           int32            `json:"id"`
	Name         string           `json:"name"`
	PhaseID      string           `json:"phase_id"`
	PhaseElapsed float64          `json:"phase_elapsed"`
	Mode         string           `json:"mode"`
	Overlay      string           `json:"overlay"`
	Degraded     bool             `json:"degraded"`
	Approaches   []ApproachStatus `json:"approaches"`
}
