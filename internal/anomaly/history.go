package anomaly

// DefaultHistoryCapacity is the number of raw values retained per category.
const DefaultHistoryCapacity = 200

// HistoryBuffer is a fixed-capacity FIFO of raw values. Once full, each Push
// evicts the oldest value. It is not safe for concurrent use; the engine
// guards each buffer with its category lock.
type HistoryBuffer struct {
	values []float64
	start  int
	size   int
}

// NewHistoryBuffer returns an empty buffer holding at most capacity values.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &HistoryBuffer{values: make([]float64, capacity)}
}

// Push appends v, dropping the oldest value when the buffer is full.
func (b *HistoryBuffer) Push(v float64) {
	capacity := len(b.values)
	if b.size < capacity {
		b.values[(b.start+b.size)%capacity] = v
		b.size++
		return
	}
	b.values[b.start] = v
	b.start = (b.start + 1) % capacity
}

func (b *HistoryBuffer) Len() int { return b.size }

func (b *HistoryBuffer) Cap() int { return len(b.values) }

// Values returns a copy of the buffered values, oldest first.
func (b *HistoryBuffer) Values() []float64 {
	out := make([]float64, b.size)
	for i := range out {
		out[i] = b.values[(b.start+i)%len(b.values)]
	}
	return out
}

// Reset empties the buffer without releasing its storage.
func (b *HistoryBuffer) Reset() {
	b.start = 0
	b.size = 0
}
