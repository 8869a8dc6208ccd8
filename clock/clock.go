package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

// Clock 控制周期时钟
// 功能：管理控制回路的周期推进，维护当前周期序号与时间
// 说明：周期边界由外部仿真/执行时钟驱动，核心不依赖墙上时钟
type Clock struct {
	DT         float64 // 每个控制周期时长（秒）
	START_STEP int32   // 起始周期
	END_STEP   int32   // 结束周期，控制区间[START, END)

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前周期序号
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制周期配置，包含起始周期、总周期数与周期时长
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 初始化时钟状态
// 说明：重置周期序号为起始周期，重新计算当前时间
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（HH:MM:SS）
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
