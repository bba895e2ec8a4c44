package metrics

import "sync"

// RollingMetric implements a circular buffer for calculating rolling averages
type RollingMetric struct {
	mu    sync.Mutex
	data  []float64
	index int
	count int // slots filled so far, at most len(data)
}

// Add a value to the buffer and return the rolling average
func (rm *RollingMetric) Add(value float64) float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	// simple index wrap-around technique
	if rm.index >= len(rm.data) {
		rm.index = 0
	}
	rm.data[rm.index] = value
	rm.index++
	if rm.count < len(rm.data) {
		rm.count++
	}

	return rm.averageUnsafe()
}

// Average returns the current rolling average, zero before the first Add.
func (rm *RollingMetric) Average() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.averageUnsafe()
}

func (rm *RollingMetric) averageUnsafe() float64 {
	if rm.count == 0 {
		return 0
	}
	var total float64
	for i := 0; i < rm.count; i++ {
		total += rm.data[i]
	}
	return total / float64(rm.count)
}

// NewRollingMetric creates a new rolling metric with the specified size
func NewRollingMetric(size int) *RollingMetric {
	if size < 1 {
		size = 1
	}
	return &RollingMetric{
		data: make([]float64, size),
	}
}
