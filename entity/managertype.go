package entity

// Manager依赖倒置

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32
	Name() string
	// 上一prepare阶段发布的状态快照，供HTTP状态接口并发只读
	Status() JunctionStatus
	// 向抢占叠加层注入一条紧急信号（走廊跨路口转发时由管理器调用）
	InjectEmergency(sig EmergencySignal)
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(specs []*JunctionSpec) error // 初始化，启动期配置校验失败时返回错误

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)
	// 全部路口
	All() []IJunction

	Prepare()              // 准备阶段，发布状态快照
	Update(in *CycleInput) // 更新阶段，执行每周期调度决策
}
