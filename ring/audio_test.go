package ring

import "testing"

func TestAudioRoundTrip(t *testing.T) {
	a := NewAudio(4, 8)

	src := []float32{0.1, 0.2, 0.3, 0.4}
	if !a.Write(src) {
		t.Fatal("write rejected on empty queue")
	}

	dst := make([]float32, 8)
	n := a.Read(dst)
	if n != len(src) {
		t.Fatalf("read %d samples, want %d", n, len(src))
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("sample %d: got %f, want %f", i, dst[i], src[i])
		}
	}
}

func TestAudioEmptyReadReturnsZero(t *testing.T) {
	a := NewAudio(4, 8)
	dst := make([]float32, 8)
	if n := a.Read(dst); n != 0 {
		t.Errorf("read on empty queue returned %d samples", n)
	}
}

func TestAudioWriteNeverBlocksWhenFull(t *testing.T) {
	a := NewAudio(2, 4)
	block := []float32{1, 2, 3, 4}
	accepted := 0
	// Push far past capacity; every call must return promptly.
	for i := 0; i < 100; i++ {
		if a.Write(block) {
			accepted++
		}
	}
	if accepted != a.Len() {
		t.Errorf("accepted %d blocks but %d buffered", accepted, a.Len())
	}
	if accepted > 100 {
		t.Errorf("accepted more blocks than offered")
	}
}

func TestAudioTruncatesOversizedBlock(t *testing.T) {
	a := NewAudio(2, 4)
	src := []float32{1, 2, 3, 4, 5, 6}
	if !a.Write(src) {
		t.Fatal("write rejected")
	}
	dst := make([]float32, 8)
	if n := a.Read(dst); n != 4 {
		t.Errorf("read %d samples, want 4 (block size)", n)
	}
}

func TestAudioPreservesBlockOrder(t *testing.T) {
	a := NewAudio(4, 2)
	for i := 0; i < 3; i++ {
		a.Write([]float32{float32(i), float32(i)})
	}
	dst := make([]float32, 2)
	for i := 0; i < 3; i++ {
		if n := a.Read(dst); n != 2 {
			t.Fatalf("block %d: read %d samples", i, n)
		}
		if dst[0] != float32(i) {
			t.Errorf("block %d: got %f", i, dst[0])
		}
	}
}
