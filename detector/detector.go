// 脚本化紧急车辆检测器
// 功能：按配置在指定周期向指定路口上报紧急车辆检测/清除信号，
// 用于演练与回归抢占路径；接入真实检测器系统时替换本实现即可
package detector

import (
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

var log = logrus.WithField("module", "detector")

// Scripted 脚本化检测器
// 说明：实现entity.IEmergencyDetector，信号表在构造时展开，
// Poll只做查表，无状态
type Scripted struct {
	byStep map[int32][]entity.EmergencySignal
}

// New 创建脚本化检测器
// 参数：scripts-紧急事件脚本列表
// 说明：clear_step不大于detect_step时不生成清除信号，
// 由抢占超时兜底释放
func New(scripts []config.EmergencyScript) *Scripted {
	d := &Scripted{byStep: make(map[int32][]entity.EmergencySignal)}
	for _, s := range scripts {
		d.byStep[s.DetectStep] = append(d.byStep[s.DetectStep], entity.EmergencySignal{
			JunctionID: s.Junction,
			Kind:       entity.EmergencyDetected,
			Approach:   entity.ApproachID(s.Approach),
		})
		if s.ClearStep > s.DetectStep {
			d.byStep[s.ClearStep] = append(d.byStep[s.ClearStep], entity.EmergencySignal{
				JunctionID: s.Junction,
				Kind:       entity.EmergencyCleared,
				Approach:   entity.ApproachID(s.Approach),
			})
		} else {
			log.Warnf("emergency script for junction %d approach %s has no clear step, relying on preemption timeout",
				s.Junction, s.Approach)
		}
	}
	return d
}

// Poll 返回本周期的紧急信号
func (d *Scripted) Poll(step int32, time float64) []entity.EmergencySignal {
	return d.byStep[step]
}
