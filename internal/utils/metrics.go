// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector 进程内指标收集器，记录各阶段生成调用情况
type MetricsCollector struct {
	counters   map[string]*counter
	histograms map[string]*histogram

	mu sync.RWMutex
}

// counter 计数指标，值的更新用原子操作
type counter struct {
	value int64
}

// histogram 简单直方图（count/sum/min/max）
type histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector 返回全局指标收集器
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*counter),
			histograms: make(map[string]*histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter 计数器加一
func (m *MetricsCollector) IncrementCounter(name string) {
	m.mu.RLock()
	c, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		c, exists = m.counters[name]
		if !exists {
			c = &counter{}
			m.counters[name] = c
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&c.value, 1)
}

// GetCounterValue 读取计数器当前值
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	c, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&c.value)
}

// RecordDuration 记录一次耗时观测
func (m *MetricsCollector) RecordDuration(name string, d time.Duration) {
	ms := d.Milliseconds()

	m.mu.RLock()
	h, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		h, exists = m.histograms[name]
		if !exists {
			h = &histogram{}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += ms
	if h.count == 1 || ms < h.min {
		h.min = ms
	}
	if ms > h.max {
		h.max = ms
	}
}

// GetMetrics 导出全部指标的快照
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]interface{})

	counters := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		counters[name] = atomic.LoadInt64(&c.value)
	}
	out["counters"] = counters

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		snapshot := map[string]int64{
			"count":   h.count,
			"sum_ms":  h.sum,
			"min_ms":  h.min,
			"max_ms":  h.max,
		}
		if h.count > 0 {
			snapshot["avg_ms"] = h.sum / h.count
		}
		h.mu.Unlock()
		histograms[name] = snapshot
	}
	out["histograms"] = histograms

	return out
}
