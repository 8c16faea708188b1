package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})
	buf.Pop(2)
	if buf.Available() != 3 || buf.Data()[0] != 3 {
		t.Errorf("after Pop(2): %v", buf.Data())
	}
	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("over-pop left %d bytes", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	s := NewScratchOutput()
	s.Output([]byte{1, 2, 3})
	mark := s.CurPosition()
	s.Output([]byte{4, 5})
	s.Update(0, 9)

	if !bytes.Equal(s.Result(), []byte{9, 2, 3, 4, 5}) {
		t.Errorf("result = %v", s.Result())
	}
	if !bytes.Equal(s.DataSince(mark), []byte{4, 5}) {
		t.Errorf("DataSince = %v", s.DataSince(mark))
	}

	s.Reset()
	if s.CurPosition() != 0 || len(s.Result()) != 0 {
		t.Errorf("Reset left %d bytes", s.CurPosition())
	}
}

func TestScratchOutputTruncates(t *testing.T) {
	s := NewScratchOutput()
	s.Output(make([]byte, MessageMax+10))
	if s.CurPosition() != MessageMax {
		t.Errorf("position = %d, want %d", s.CurPosition(), MessageMax)
	}
}

func TestFifoBuffer(t *testing.T) {
	f := NewFifoBuffer(8)
	if n := f.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}); n != 7 {
		t.Errorf("wrote %d into 8-byte fifo, want 7", n)
	}
	if f.Free() != 0 {
		t.Errorf("free = %d", f.Free())
	}

	out := make([]byte, 3)
	if n := f.Read(out); n != 3 || !bytes.Equal(out, []byte{1, 2, 3}) {
		t.Errorf("read %d: %v", n, out)
	}
	if f.Available() != 4 {
		t.Errorf("available = %d", f.Available())
	}

	f.Reset()
	if !f.IsEmpty() {
		t.Error("not empty after Reset")
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte{1, 2, 3, 4, 5, 6})
	f.Pop(5)
	f.Write([]byte{7, 8, 9, 10})

	if !bytes.Equal(f.Data(), []byte{6, 7, 8, 9, 10}) {
		t.Errorf("wrapped data = %v", f.Data())
	}
	f.Pop(2)
	if !bytes.Equal(f.Data(), []byte{8, 9, 10}) {
		t.Errorf("after pop = %v", f.Data())
	}
	f.Pop(100)
	if !f.IsEmpty() {
		t.Errorf("over-pop left %d bytes", f.Available())
	}
}
