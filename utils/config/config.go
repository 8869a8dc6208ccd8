package config

// RuntimeConfig 运行时配置
// 功能：存储控制器运行时的配置信息
// 说明：将YAML配置转换为运行时可用的配置对象，填充默认值
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 调度控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 算法说明：
// 1. 创建运行时配置对象
// 2. 填充默认值：落盘间隔默认100周期，默认到达率默认0.2辆/周期
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	if rc.All.Output.FlushInterval <= 0 {
		rc.All.Output.FlushInterval = 100
	}
	if rc.All.Collector.DefaultArrival <= 0 {
		rc.All.Collector.DefaultArrival = 0.2
	}

	return rc
}
