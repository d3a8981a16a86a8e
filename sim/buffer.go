package sim

import "log"

// A Buffer holds the current-step values of one output variable. A buffer is
// owned by exactly one component. The backing array is allocated once and
// never replaced, so every View handed out keeps observing the latest values.
type Buffer struct {
	name string
	data []float64
}

// NewBuffer creates a zero-filled buffer with n values.
func NewBuffer(name string, n int) *Buffer {
	if n < 0 {
		log.Panicf("buffer %s cannot have negative size %d", name, n)
	}

	return &Buffer{
		name: name,
		data: make([]float64, n),
	}
}

// Name returns the variable name of the buffer.
func (b *Buffer) Name() string {
	return b.name
}

// Len returns the number of values in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// At returns the i-th value.
func (b *Buffer) At(i int) float64 {
	return b.data[i]
}

// Set sets the i-th value.
func (b *Buffer) Set(i int, v float64) {
	b.data[i] = v
}

// Add adds v to the i-th value.
func (b *Buffer) Add(i int, v float64) {
	b.data[i] += v
}

// Fill sets all the values to v.
func (b *Buffer) Fill(v float64) {
	for i := range b.data {
		b.data[i] = v
	}
}

// CopyFrom overwrites the buffer with the values of src.
func (b *Buffer) CopyFrom(src []float64) {
	if len(src) != len(b.data) {
		log.Panicf("buffer %s: copying %d values into %d",
			b.name, len(src), len(b.data))
	}

	copy(b.data, src)
}

// View returns a read-only view of the buffer.
func (b *Buffer) View() View {
	return View{data: b.data}
}

// A View is a read-only handle onto values owned by someone else. Views
// share memory with their source, so a view of a producer's buffer always
// shows the producer's latest values.
type View struct {
	data []float64
}

// ViewOf wraps a slice in a View. The caller must not modify the slice
// afterwards.
func ViewOf(data []float64) View {
	return View{data: data}
}

// Len returns the number of values.
func (v View) Len() int {
	return len(v.data)
}

// At returns the i-th value.
func (v View) At(i int) float64 {
	return v.data[i]
}

// Sum returns the sum of all the values.
func (v View) Sum() float64 {
	s := 0.0
	for _, x := range v.data {
		s += x
	}

	return s
}

// Mean returns the arithmetic mean of the values, or 0 for an empty view.
func (v View) Mean() float64 {
	if len(v.data) == 0 {
		return 0
	}

	return v.Sum() / float64(len(v.data))
}

// CopyTo copies the values into dst and returns the number of values copied.
func (v View) CopyTo(dst []float64) int {
	return copy(dst, v.data)
}

// Values returns a copy of the values.
func (v View) Values() []float64 {
	out := make([]float64, len(v.data))
	copy(out, v.data)

	return out
}

// SameAs returns true if both views share the same backing array.
func (v View) SameAs(o View) bool {
	if len(v.data) != len(o.data) {
		return false
	}

	if len(v.data) == 0 {
		return (v.data == nil) == (o.data == nil)
	}

	return &v.data[0] == &o.data[0]
}
