package pose

import (
	"sync"
	"testing"
	"time"
)

func TestIsValid(t *testing.T) {
	testCases := []struct {
		name string
		pose Pose
		want bool
	}{
		{"zero pose", Pose{}, false},
		{"zero pose with timestamp", Pose{Timestamp: ptr(time.Now())}, false},
		{"x only", New(0.1, 0, 0), true},
		{"y only", New(0, -0.1, 0), true},
		{"z only", New(0, 0, 0.012), true},
		{"all set", New(1, 2, 0.5), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValid(tc.pose); got != tc.want {
				t.Errorf("IsValid(%s) = %t, want %t", tc.pose, got, tc.want)
			}
		})
	}
}

func TestSink_ReadBeforeWrite(t *testing.T) {
	s := NewSink()

	p := s.Read()
	if !p.SamePosition(Pose{}) {
		t.Fatalf("expected zero pose, got %s", p)
	}
	if IsValid(p) {
		t.Error("zero pose must not be valid")
	}
	if s.Writes() != 0 {
		t.Errorf("expected 0 writes, got %d", s.Writes())
	}
}

func TestSink_LastWriteWins(t *testing.T) {
	s := NewSink()

	s.Write(New(1, 2, 0.5))
	s.Write(New(3, 4, 0.5))

	if p := s.Read(); !p.SamePosition(New(3, 4, 0.5)) {
		t.Errorf("expected (3,4,0.5), got %s", p)
	}
	if s.Writes() != 2 {
		t.Errorf("expected 2 writes, got %d", s.Writes())
	}
}

func TestSink_NoTornReads(t *testing.T) {
	s := NewSink()

	const writes = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			v := float64(i)
			s.Write(New(v, v, v))
		}
	}()

	done := make(chan struct{})
	errs := make(chan Pose, 1)
	go func() {
		defer close(done)
		for s.Writes() < writes {
			p := s.Read()
			if p.X != p.Y || p.Y != p.Z {
				select {
				case errs <- p:
				default:
				}
				return
			}
		}
	}()

	wg.Wait()
	<-done

	select {
	case p := <-errs:
		t.Fatalf("observed torn pose %s", p)
	default:
	}
}

func TestPose_Distance(t *testing.T) {
	a := New(0, 0, 0)
	b := New(3, 4, 0)
	if d := a.Distance(b); d != 5 {
		t.Errorf("expected distance 5, got %f", d)
	}
}

func ptr[T any](v T) *T {
	return &v
}
