package entity

import (
	"github.com/tsinghua-fib-lab/atsc-oss/clock"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

// 外部协作者接口（依赖倒置）
// 核心每周期同步拉取输入、同步推送输出，协作者的实现不含决策逻辑

// 数据采集器接口
// Collect返回本周期所有路口的交通快照；整体失败返回error，
// 单个路口缺失时对应表项为空，两者都按数据不可用的降级策略处理
type ICollector interface {
	Collect(step int32, time float64) (map[int32]*TrafficSnapshot, error)
}

// 紧急车辆检测器接口
// Poll返回本周期的紧急信号（可能为空）
type IEmergencyDetector interface {
	Poll(step int32, time float64) []EmergencySignal
}

// 相位执行器接口
// CommandPhase以当前已激活相位重复调用时必须幂等
type IActuator interface {
	CommandPhase(cmd PhaseCommand) error
}

// 决策记录器接口
type IRecorder interface {
	RecordCycle(rec CycleRecord)
	RecordEmergency(rec EmergencyRecord)
	Flush() error
	Close() error
}

type ITaskContext interface {
	Clock() *clock.Clock
	JunctionManager() IJunctionManager
	RuntimeConfig() *config.RuntimeConfig
	Collector() ICollector
	Detector() IEmergencyDetector
	Actuator() IActuator
	Recorder() IRecorder
}
