// 决策记录输出
// 功能：缓存每周期决策记录与紧急事件记录，按落盘间隔批量写入
// SQLite/MongoDB后端，关闭时输出全程汇总统计
package output

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

// Recorder 决策记录器
// 说明：实现entity.IRecorder；Record*在路口并行更新中被调用，
// 用互斥锁保护缓冲区，落盘只在Flush/Close中发生
type Recorder struct {
	mtx  sync.Mutex
	sink sink

	flushInterval int
	cycles        []entity.CycleRecord
	emergencies   []entity.EmergencyRecord

	// 汇总统计累积
	totalWaits    []float64
	commandCounts map[string]int
	degradedCount int
	timedOutCount int
}

// New 创建决策记录器
// 参数：cfg-输出配置
// 返回：记录器或后端初始化错误（致命，进程不应启动）
func New(cfg config.Output) (*Recorder, error) {
	var s sink
	var err error
	switch cfg.Type {
	case "", "none":
		s = noneSink{}
	case "sqlite":
		s, err = newSQLiteSink(cfg.Path)
	case "mongo":
		s, err = newMongoSink(cfg.URI, cfg.DB, cfg.Col)
	default:
		err = fmt.Errorf("unknown output type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return &Recorder{
		sink:          s,
		flushInterval: int(cfg.FlushInterval),
		commandCounts: make(map[string]int),
	}, nil
}

// RecordCycle 记录一条周期决策
// 说明：缓冲达到落盘间隔时同步落盘，失败只记录错误不中断控制
func (r *Recorder) RecordCycle(rec entity.CycleRecord) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.cycles = append(r.cycles, rec)
	r.totalWaits = append(r.totalWaits, rec.TotalWait)
	r.commandCounts[rec.Command]++
	if rec.Degraded {
		r.degradedCount++
	}
	if r.flushInterval > 0 && len(r.cycles) >= r.flushInterval {
		if err := r.flushLocked(); err != nil {
			log.Errorf("flush cycle records: %v", err)
		}
	}
}

// RecordEmergency 记录一条紧急事件
func (r *Recorder) RecordEmergency(rec entity.EmergencyRecord) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.emergencies = append(r.emergencies, rec)
	if rec.TimedOut {
		r.timedOutCount++
	}
}

// Flush 把缓冲区写入后端
func (r *Recorder) Flush() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if len(r.cycles) > 0 {
		if err := r.sink.writeCycles(r.cycles); err != nil {
			return err
		}
		r.cycles = r.cycles[:0]
	}
	if len(r.emergencies) > 0 {
		if err := r.sink.writeEmergencies(r.emergencies); err != nil {
			return err
		}
		r.emergencies = r.emergencies[:0]
	}
	return nil
}

// Close 落盘剩余记录、输出汇总统计并关闭后端
func (r *Recorder) Close() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	flushErr := r.flushLocked()
	r.logSummaryLocked()
	if err := r.sink.close(); err != nil {
		return err
	}
	return flushErr
}

// logSummaryLocked 输出全程汇总统计
// 说明：总等待老化的均值/标准差是调度质量的粗粒度信号，
// 均值持续走高说明公平性失效
func (r *Recorder) logSummaryLocked() {
	if len(r.totalWaits) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(r.totalWaits, nil)
	log.Infof("recorded %d cycles: total wait mean=%.2f std=%.2f, commands=%v, degraded cycles=%d, emergencies timed out=%d",
		len(r.totalWaits), mean, std, r.commandCounts, r.degradedCount, r.timedOutCount)
}
