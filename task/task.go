package task

import (
	"sync/atomic"

	"github.com/tsinghua-fib-lab/atsc-oss/actuator"
	"github.com/tsinghua-fib-lab/atsc-oss/clock"
	"github.com/tsinghua-fib-lab/atsc-oss/collector"
	"github.com/tsinghua-fib-lab/atsc-oss/detector"
	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/entity/junction"
	"github.com/tsinghua-fib-lab/atsc-oss/output"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/input"
)

// Context 控制任务上下文
// 功能：包含一次控制任务的所有变量和状态，替代全局变量
// 说明：管理控制器的所有组件，包括时钟、路口管理器、数据采集、
// 紧急检测、相位执行与决策记录
type Context struct {
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// Junction管理器
	junctionManager entity.IJunctionManager

	// 运行时配置
	runtimeConfig *config.RuntimeConfig

	// 外部协作者
	collector entity.ICollector
	detector  entity.IEmergencyDetector
	actuator  entity.IActuator
	recorder  entity.IRecorder

	// 用于初始化的路口静态描述
	specs []*entity.JunctionSpec
}

// NewContext 创建新的控制任务上下文
// 功能：加载输入数据并初始化控制器的所有组件
// 参数：cacheDir-输入缓存目录（空则禁用缓存），c-配置对象
// 返回：初始化完成的Context实例或致命的启动错误
// 算法说明：
// 1. 加载路口静态描述（文件或MongoDB）
// 2. 创建输出记录器（none/sqlite/mongo）
// 3. 创建合成数据源并把执行器的指令回传给它，形成闭环
// 4. 创建脚本化紧急检测器与路口管理器
func NewContext(cacheDir string, c config.Config) (*Context, error) {
	ctx := &Context{}
	ctx.clock = clock.New(c.Control.Step)
	ctx.runtimeConfig = config.NewRuntimeConfig(c)

	specs, err := input.LoadJunctionSpecs(c.Input, cacheDir)
	if err != nil {
		return nil, err
	}
	ctx.specs = specs

	recorder, err := output.New(ctx.runtimeConfig.All.Output)
	if err != nil {
		return nil, err
	}
	ctx.recorder = recorder

	synthetic, err := collector.New(ctx.runtimeConfig, specs)
	if err != nil {
		return nil, err
	}
	ctx.collector = synthetic
	ctx.actuator = actuator.New(synthetic)
	ctx.detector = detector.New(c.Emergencies)
	ctx.junctionManager = junction.NewManager(ctx)

	return ctx, nil
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Collector() entity.ICollector {
	return ctx.collector
}

func (ctx *Context) Detector() entity.IEmergencyDetector {
	return ctx.detector
}

func (ctx *Context) Actuator() entity.IActuator {
	return ctx.actuator
}

func (ctx *Context) Recorder() entity.IRecorder {
	return ctx.recorder
}

// Init 初始化时钟与所有路口
// 说明：相位表校验在这里完成，失败为致命错误
func (ctx *Context) Init() error {
	ctx.clock.Init()
	if err := ctx.junctionManager.Init(ctx.specs); err != nil {
		return err
	}
	log.Infof("Junction: %v", len(ctx.specs))
	return nil
}

// Stop 请求优雅停机
// 说明：可从任意goroutine调用，控制循环在当前周期收尾后退出
func (ctx *Context) Stop() {
	ctx.closed.Store(true)
}

// Close 落盘剩余记录并关闭输出后端
func (ctx *Context) Close() {
	if err := ctx.recorder.Close(); err != nil {
		log.Errorf("close recorder: %v", err)
	}
}
