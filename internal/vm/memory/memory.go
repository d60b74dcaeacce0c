// Package memory implements the byte-addressable, resizable memory buffer
// that backs a Computer. Growth and shrinkage only ever happen through
// Append/Pop, which are reserved for the Computer-level grow/shrink/mutation
// operations; everything else is bounds-checked read/write.
package memory

// Memory is an ordered, resizable sequence of bytes.
//
// The zero value is not usable; use New.
type Memory struct {
	values []byte
}

// New returns a zeroed Memory of the given size.
func New(size int) *Memory {
	return &Memory{values: make([]byte, size)}
}

// FromBytes wraps an existing byte slice without copying.
func FromBytes(b []byte) *Memory {
	return &Memory{values: b}
}

// Len returns the number of bytes currently held.
func (m *Memory) Len() int {
	return len(m.values)
}

// Bytes returns the underlying slice. Callers must not retain it across a
// mutating call (Append/Pop may reallocate).
func (m *Memory) Bytes() []byte {
	return m.values
}

// ReadAt returns the byte at i, or (0, false) if i is out of bounds.
func (m *Memory) ReadAt(i int) (byte, bool) {
	if i < 0 || i >= len(m.values) {
		return 0, false
	}
	return m.values[i], true
}

// WriteAt writes b at i and reports whether the write happened.
func (m *Memory) WriteAt(i int, b byte) bool {
	if i < 0 || i >= len(m.values) {
		return false
	}
	m.values[i] = b
	return true
}

// At is the unchecked hot-path read used by the instruction fetch loop; it
// panics like a slice index on out-of-bounds access and must only be called
// after a bounds check.
func (m *Memory) At(i int) byte {
	return m.values[i]
}

// Set is the unchecked hot-path write counterpart to At.
func (m *Memory) Set(i int, b byte) {
	m.values[i] = b
}

// Append grows the memory by one byte.
func (m *Memory) Append(b byte) {
	m.values = append(m.values, b)
}

// Pop shrinks the memory by one byte, returning the removed value. It
// reports false if memory is empty.
func (m *Memory) Pop() (byte, bool) {
	n := len(m.values)
	if n == 0 {
		return 0, false
	}
	b := m.values[n-1]
	m.values = m.values[:n-1]
	return b, true
}

// InsertAt inserts b at position i, growing memory by one byte.
// i must be in [0, Len()].
func (m *Memory) InsertAt(i int, b byte) {
	m.values = append(m.values, 0)
	copy(m.values[i+1:], m.values[i:])
	m.values[i] = b
}

// DeleteAt removes the byte at position i, shrinking memory by one byte.
// i must be in [0, Len()).
func (m *Memory) DeleteAt(i int) byte {
	b := m.values[i]
	m.values = append(m.values[:i], m.values[i+1:]...)
	return b
}
