package task

import (
	"flag"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔周期数")
)

// prepare 准备阶段，每个控制周期执行一次
// 功能：输出心跳日志并发布所有路口的状态快照
// 说明：状态快照供HTTP状态接口并发只读，反映上一周期结束时的状态
func (ctx *Context) prepare() {
	if *heartBeatInterval > 0 && ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f)",
			ctx.clock.InternalStep,
			hour, minute, second,
		)
	}
	ctx.junctionManager.Prepare()
}

// update 更新阶段，每个控制周期执行一次
// 功能：闩锁本周期的全部输入并执行所有路口的调度决策
// 算法说明：
// 1. 输入闩锁：快照与紧急信号在周期开始时一次性拉取并绑定，
//    周期内不再读取新数据
// 2. 采集整体失败按全部路口数据不可用处理（保持→降级轮转），
//    控制循环不中断
// 3. 路口管理器并行决策，每个路口输出且仅输出一条相位指令
func (ctx *Context) update() {
	step := ctx.clock.InternalStep
	t := ctx.clock.T

	snapshots, err := ctx.collector.Collect(step, t)
	if err != nil {
		log.Errorf("collector failed at step %d: %v, treating all snapshots as unavailable", step, err)
		snapshots = nil
	}
	in := &entity.CycleInput{
		Step:        step,
		Time:        t,
		Snapshots:   snapshots,
		Emergencies: ctx.detector.Poll(step, t),
	}
	ctx.junctionManager.Update(in)
}

// Run 运行控制循环直至区间结束或收到停机请求
// 功能：按周期执行prepare/update，周期边界由时钟推进
// 说明：停机请求在当前周期收尾后生效，已下发的指令不回滚
func (ctx *Context) Run() {
	for {
		ctx.prepare()
		ctx.update()
		ctx.clock.InternalStep++
		ctx.clock.T = float64(ctx.clock.InternalStep) * ctx.clock.DT
		if ctx.clock.InternalStep >= ctx.clock.END_STEP {
			break
		}
		if ctx.closed.Load() {
			log.Info("stop requested, exiting control loop")
			break
		}
	}
	// 退出前发布最终状态，保证状态接口看到最后一个周期的结果
	ctx.junctionManager.Prepare()
	log.Infof("control loop complete at step %d", ctx.clock.InternalStep)
	ctx.Close()
}
