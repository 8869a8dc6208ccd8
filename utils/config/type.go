package config

import "fmt"

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.bson
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetCachePath 获取缓存文件路径
// 说明：未指定时采用默认命名规则{数据库名}.{集合名}.bson
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".bson"
}

// Input 指定控制器所有输入数据的配置项
type Input struct {
	URI string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Map InputPath `yaml:"map"`           // 路口描述（进口道、相位表、冲突表、走廊）
}

// ControlStep 指定控制周期范围和时长的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始周期
	Total    int32   `yaml:"total"`    // 总周期数
	Interval float64 `yaml:"interval"` // 每个控制周期的时长（秒）
}

// Control 调度核心控制配置
type Control struct {
	Step           ControlStep `yaml:"step"`
	MinGreen       float64     `yaml:"min_green"`        // 最小绿灯时间（秒）
	MaxGreen       float64     `yaml:"max_green"`        // 最大绿灯时间（秒）
	MaxPreemptTime float64     `yaml:"max_preempt_time"` // 抢占最长持续时间（秒），防止误检长期锁死
	MaxHoldCycles  int32       `yaml:"max_hold_cycles"`  // 数据不可用时保持当前相位的最大周期数，超过后降级为轮转
}

// Output 决策记录输出配置
type Output struct {
	Type          string `yaml:"type"`                     // none|sqlite|mongo
	Path          string `yaml:"path,omitempty"`           // sqlite文件路径
	URI           string `yaml:"uri,omitempty"`            // MongoDB连接字符串
	DB            string `yaml:"db,omitempty"`             // 数据库名
	Col           string `yaml:"col,omitempty"`            // 集合/表名前缀
	FlushInterval int32  `yaml:"flush_interval,omitempty"` // 落盘间隔（周期数），默认100
}

// ArrivalRate 单个进口道的到达率配置
type ArrivalRate struct {
	Junction int32   `yaml:"junction"`
	Approach string  `yaml:"approach"`
	Rate     float64 `yaml:"rate"` // 每周期平均到达车辆数
}

// Collector 合成交通数据源配置
// 说明：没有外部微观仿真时用于驱动控制器
type Collector struct {
	Seed           uint64        `yaml:"seed"`                      // 随机种子
	Dropout        float64       `yaml:"dropout,omitempty"`         // 每周期快照丢失概率[0,1)，用于演练降级路径
	DefaultArrival float64       `yaml:"default_arrival,omitempty"` // 默认到达率（每周期车辆数）
	Arrivals       []ArrivalRate `yaml:"arrivals,omitempty"`        // 按进口道覆盖
}

// EmergencyScript 脚本化紧急事件
// 说明：在指定周期向指定路口上报紧急车辆检测/清除信号
type EmergencyScript struct {
	Junction   int32  `yaml:"junction"`
	Approach   string `yaml:"approach"`
	DetectStep int32  `yaml:"detect_step"`
	ClearStep  int32  `yaml:"clear_step"` // <=DetectStep时不发送清除信号，由抢占超时兜底
}

// Config YAML配置文件的根结构
type Config struct {
	Input       Input             `yaml:"input"`                 // 输入
	Control     Control           `yaml:"control"`               // 控制
	Output      Output            `yaml:"output,omitempty"`      // 输出
	Collector   Collector         `yaml:"collector,omitempty"`   // 合成数据源
	Emergencies []EmergencyScript `yaml:"emergencies,omitempty"` // 脚本化紧急事件
}

// Validate 启动期配置校验
// 功能：检查时序边界的合法性，非法配置为致命错误，进程不应启动
func (c Config) Validate() error {
	if c.Control.Step.Interval <= 0 {
		return fmt.Errorf("control.step.interval must be positive, got %f", c.Control.Step.Interval)
	}
	if c.Control.Step.Total <= 0 {
		return fmt.Errorf("control.step.total must be positive, got %d", c.Control.Step.Total)
	}
	if c.Control.MinGreen <= 0 {
		return fmt.Errorf("control.min_green must be positive, got %f", c.Control.MinGreen)
	}
	if c.Control.MaxGreen <= c.Control.MinGreen {
		return fmt.Errorf("control.max_green (%f) must be greater than control.min_green (%f)",
			c.Control.MaxGreen, c.Control.MinGreen)
	}
	if c.Control.MaxPreemptTime <= 0 {
		return fmt.Errorf("control.max_preempt_time must be positive, got %f", c.Control.MaxPreemptTime)
	}
	if c.Control.MaxHoldCycles < 0 {
		return fmt.Errorf("control.max_hold_cycles must be non-negative, got %d", c.Control.MaxHoldCycles)
	}
	if c.Collector.Dropout < 0 || c.Collector.Dropout >= 1 {
		return fmt.Errorf("collector.dropout must be in [0,1), got %f", c.Collector.Dropout)
	}
	switch c.Output.Type {
	case "", "none", "sqlite", "mongo":
	default:
		return fmt.Errorf("output.type must be one of none|sqlite|mongo, got %q", c.Output.Type)
	}
	if c.Output.Type == "sqlite" && c.Output.Path == "" {
		return fmt.Errorf("output.path is required when output.type is sqlite")
	}
	if c.Output.Type == "mongo" && (c.Output.URI == "" || c.Output.DB == "" || c.Output.Col == "") {
		return fmt.Errorf("output.uri, output.db and output.col are required when output.type is mongo")
	}
	return nil
}
