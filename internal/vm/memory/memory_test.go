package memory

import "testing"

func TestNewIsZeroed(t *testing.T) {
	m := New(4)
	if m.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", m.Len())
	}
	for i := 0; i < 4; i++ {
		b, ok := m.ReadAt(i)
		if !ok || b != 0 {
			t.Fatalf("ReadAt(%d) = %d, %v; want 0, true", i, b, ok)
		}
	}
}

func TestReadWriteBounds(t *testing.T) {
	m := New(2)
	if _, ok := m.ReadAt(-1); ok {
		t.Fatal("ReadAt(-1) should fail")
	}
	if _, ok := m.ReadAt(2); ok {
		t.Fatal("ReadAt(len) should fail")
	}
	if m.WriteAt(2, 5) {
		t.Fatal("WriteAt(len) should fail")
	}
	if !m.WriteAt(0, 9) {
		t.Fatal("WriteAt(0) should succeed")
	}
	b, _ := m.ReadAt(0)
	if b != 9 {
		t.Fatalf("ReadAt(0) = %d, want 9", b)
	}
}

func TestAppendPop(t *testing.T) {
	m := New(0)
	m.Append(1)
	m.Append(2)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	b, ok := m.Pop()
	if !ok || b != 2 {
		t.Fatalf("Pop() = %d, %v; want 2, true", b, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestPopEmpty(t *testing.T) {
	m := New(0)
	if _, ok := m.Pop(); ok {
		t.Fatal("Pop() on empty memory should fail")
	}
}

func TestInsertDeleteAt(t *testing.T) {
	m := FromBytes([]byte{1, 2, 3})
	m.InsertAt(1, 99)
	if m.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", m.Len())
	}
	want := []byte{1, 99, 2, 3}
	for i, w := range want {
		if m.At(i) != w {
			t.Fatalf("At(%d) = %d, want %d", i, m.At(i), w)
		}
	}
	removed := m.DeleteAt(1)
	if removed != 99 {
		t.Fatalf("DeleteAt removed %d, want 99", removed)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}
