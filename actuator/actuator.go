// 相位执行器
// 功能：接收核心每周期下发的相位指令并落实到信号机，本实现把
// 指令转发给注册的回传目标（合成数据源）并记录日志；接入真实
// 信号机时替换CommandSink实现即可
package actuator

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
)

var log = logrus.WithField("module", "actuator")

// CommandSink 指令回传目标
type CommandSink interface {
	ApplyCommand(cmd entity.PhaseCommand)
}

// Local 本地执行器
// 说明：实现entity.IActuator；以当前已激活相位重复下发时幂等，
// 指令原样转发给回传目标（重发同一相位用于自愈漂移）
type Local struct {
	mtx   sync.Mutex
	last  map[int32]string // 路口→最近落实的相位
	sinks []CommandSink
}

// New 创建本地执行器
// 参数：sinks-指令回传目标（可为空）
func New(sinks ...CommandSink) *Local {
	return &Local{
		last:  make(map[int32]string),
		sinks: sinks,
	}
}

// CommandPhase 落实一条相位指令
// 功能：校验指令合法性，转发给全部回传目标并更新落实记录
// 说明：commit到已激活相位时为幂等重发，记录debug日志后照常转发
func (a *Local) CommandPhase(cmd entity.PhaseCommand) error {
	if cmd.PhaseID == "" {
		return fmt.Errorf("actuator: empty phase id in %s command for junction %d", cmd.Kind, cmd.JunctionID)
	}
	a.mtx.Lock()
	switch cmd.Kind {
	case entity.CommandCommit:
		if a.last[cmd.JunctionID] == cmd.PhaseID {
			log.Debugf("junction %d: phase %s re-committed (idempotent)", cmd.JunctionID, cmd.PhaseID)
		} else {
			log.Debugf("junction %d: phase %s committed at step %d", cmd.JunctionID, cmd.PhaseID, cmd.Step)
		}
		a.last[cmd.JunctionID] = cmd.PhaseID
	case entity.CommandClearance:
		log.Debugf("junction %d: clearance from phase %s at step %d", cmd.JunctionID, cmd.PhaseID, cmd.Step)
	}
	sinks := a.sinks
	a.mtx.Unlock()

	for _, s := range sinks {
		s.ApplyCommand(cmd)
	}
	return nil
}

// ActivePhase 指定路口最近落实的相位，未落实过时返回空串
func (a *Local) ActivePhase(junctionID int32) string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.last[junctionID]
}
