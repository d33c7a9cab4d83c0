package runner

import (
	"sync"
)

// outputTail keeps only the last N bytes of test output so a representative
// snippet can be attached to a failed result without retaining everything.
type outputTail struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newOutputTail(maxBytes int) *outputTail {
	if maxBytes <= 0 {
		maxBytes = defaultOutputTailBytes
	}
	return &outputTail{maxBytes: maxBytes}
}

func (b *outputTail) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

func (b *outputTail) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

func (b *outputTail) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// snippet returns at most n trailing bytes, marked when output was dropped
func (b *outputTail) snippet(n int) string {
	if b == nil {
		return ""
	}
	data := b.Bytes()
	truncated := b.Truncated()
	if len(data) > n {
		data = data[len(data)-n:]
		truncated = true
	}
	if len(data) == 0 {
		return ""
	}
	if truncated {
		return "...[truncated]\n" + string(data)
	}
	return string(data)
}
