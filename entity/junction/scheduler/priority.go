// 优先级引擎（Priority Engine）
// 把交通快照换算为每个进口道的得分：占有率与排队长度按滑动窗口
// 最大值归一化，等待老化项随未放行周期数无界增长，保证任何进口道
// 最终得分超过一切静态拥堵得分（防饿死）
package scheduler

import (
	"flag"
	"sort"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/container"
)

var (
	weightOccupancy = flag.Float64("sched.weight_occupancy", 0.4, "占有率得分权重")
	weightQueue     = flag.Float64("sched.weight_queue", 0.4, "排队长度得分权重")
	weightAge       = flag.Float64("sched.weight_age", 0.05, "等待老化项每周期权重（无上界）")
	normDecay       = flag.Float64("sched.norm_decay", 0.995, "归一化滑动最大值每周期衰减系数")
)

// PriorityEngine 优先级引擎
// 说明：归一化用的滑动最大值是引擎状态，由Observe每周期推进一次；
// ComputePriorities对给定输入是确定的纯函数，不修改任何状态
type PriorityEngine struct {
	maxOccupancy float64 // 占有率滑动最大值，下限1.0防止除零
	maxQueue     float64 // 排队长度滑动最大值，下限1.0
}

// NewPriorityEngine 创建优先级引擎
func NewPriorityEngine() *PriorityEngine {
	return &PriorityEngine{
		maxOccupancy: 1.0,
		maxQueue:     1.0,
	}
}

// Observe 推进归一化状态
// 功能：用本周期量测更新滑动窗口最大值
// 算法说明：max = max(新值, max×衰减系数, 1.0)。指数衰减把分母锚定到
// 近期交通而不是全程峰值，避免早期一次高峰把后续得分差距压扁
func (e *PriorityEngine) Observe(snapshot *entity.TrafficSnapshot) {
	if snapshot == nil {
		return
	}
	e.maxOccupancy = max(e.maxOccupancy**normDecay, 1.0)
	e.maxQueue = max(e.maxQueue**normDecay, 1.0)
	for _, m := range snapshot.Measurements {
		e.maxOccupancy = max(e.maxOccupancy, m.Occupancy)
		e.maxQueue = max(e.maxQueue, float64(m.QueueLength))
	}
}

// ComputePriorities 计算每个进口道的优先级得分
// 功能：score = Wocc×占有率归一 + Wq×排队归一 + Wage×waitingAge
// 参数：snapshot-本周期交通快照，ages-进口道→未放行周期数
// 返回：进口道→得分
// 说明：对相同的快照与老化状态输出相同的得分，无副作用；
// 快照中缺失的进口道只保留老化项
func (e *PriorityEngine) ComputePriorities(
	snapshot *entity.TrafficSnapshot, ages map[entity.ApproachID]int32,
) map[entity.ApproachID]float64 {
	scores := make(map[entity.ApproachID]float64, len(ages))
	for a, age := range ages {
		s := *weightAge * float64(age)
		if snapshot != nil {
			if m, ok := snapshot.Measurements[a]; ok {
				s += *weightOccupancy * min(m.Occupancy/e.maxOccupancy, 1.0)
				s += *weightQueue * min(float64(m.QueueLength)/e.maxQueue, 1.0)
			}
		}
		scores[a] = s
	}
	return scores
}

// Rank 把得分表排成降序序列
// 功能：返回按得分从高到低排列的进口道，得分相等时按ID字典序
// 算法说明：先按字典序收集进口道，再以-score压入稳定优先队列，
// 依次弹出即为确定的降序排序（堆稳定性保证并列时字典序在前）
func (e *PriorityEngine) Rank(scores map[entity.ApproachID]float64) []entity.ApproachID {
	ids := make([]entity.ApproachID, 0, len(scores))
	for a := range scores {
		ids = append(ids, a)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	q := container.NewPriorityQueue[entity.ApproachID]()
	for _, a := range ids {
		q.HeapPush(a, -scores[a])
	}
	ranked := make([]entity.ApproachID, 0, len(ids))
	for q.Len() > 0 {
		a, _ := q.HeapPop()
		ranked = append(ranked, a)
	}
	return ranked
}
