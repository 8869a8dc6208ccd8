package container

// Queue 先进先出队列
// 功能：泛型FIFO队列，用于紧急事件的排队处理
// 说明：抢占叠加层同一时刻只处理一个ACTIVE事件，后续检测到的事件
// 按先后顺序入队，在RELEASING→IDLE之后再逐个评估
type Queue[T any] struct {
	items []T
}

// NewQueue 创建FIFO队列
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{items: make([]T, 0)}
}

// Len 获取当前队列长度
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Push 入队
func (q *Queue[T]) Push(value T) {
	q.items = append(q.items, value)
}

// Pop 出队
// 返回：队首元素与是否成功，队列为空时返回零值和false
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero // 避免内存泄漏
	q.items = q.items[1:]
	return v, true
}

// Peek 查看队首元素但不出队
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

// Find 返回第一个满足谓词的元素
func (q *Queue[T]) Find(match func(T) bool) (T, bool) {
	for _, v := range q.items {
		if match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// RemoveFirst 移除并返回第一个满足谓词的元素，保持其余元素顺序
func (q *Queue[T]) RemoveFirst(match func(T) bool) (T, bool) {
	for i, v := range q.items {
		if match(v) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return v, true
		}
	}
	var zero T
	return zero, false
}
