package framepipe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func gray64Info(t *testing.T) VideoBufferInfo {
	t.Helper()
	var info VideoBufferInfo
	if err := info.Init(FormatGray8, 64, 64); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return info
}

func reservedPool(t *testing.T, count uint32) *BufferPool {
	t.Helper()
	p := NewBufferPool("test")
	if err := p.Reserve(gray64Info(t), count); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	return p
}

// Reserve capacity 4 with a 64x64 single-plane descriptor: four
// acquisitions succeed, the fifth reports exhaustion.
func TestPoolExhaustion(t *testing.T) {
	p := reservedPool(t, 4)

	var held []*Buffer
	for i := 0; i < 4; i++ {
		b, err := p.GetFree()
		if err != nil {
			t.Fatalf("GetFree #%d failed: %v", i+1, err)
		}
		if len(b.Data()) != 64*64 {
			t.Fatalf("buffer size = %d, want %d", len(b.Data()), 64*64)
		}
		held = append(held, b)
	}

	if _, err := p.GetFree(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("5th GetFree error = %v, want ErrPoolExhausted", err)
	}

	held[0].Release()
	if _, err := p.GetFree(); err != nil {
		t.Fatalf("GetFree after release failed: %v", err)
	}
}

func TestPoolDoubleReleaseIsNoop(t *testing.T) {
	p := reservedPool(t, 2)

	b, err := p.GetFree()
	if err != nil {
		t.Fatalf("GetFree failed: %v", err)
	}
	b.Release()
	b.Release()

	if got := p.FreeCount(); got != 2 {
		t.Errorf("FreeCount after double release = %d, want 2", got)
	}
}

func TestPoolReserveTwice(t *testing.T) {
	p := reservedPool(t, 1)
	if err := p.Reserve(gray64Info(t), 1); !errors.Is(err, ErrPoolReserved) {
		t.Errorf("second Reserve error = %v, want ErrPoolReserved", err)
	}
}

func TestPoolReserveValidation(t *testing.T) {
	p := NewBufferPool("test")
	if err := p.Reserve(VideoBufferInfo{}, 4); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("Reserve with zero info error = %v, want ErrInvalidParam", err)
	}
	var info VideoBufferInfo
	if err := info.Init(FormatGray8, 8, 8); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := p.Reserve(info, 0); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("Reserve with zero count error = %v, want ErrInvalidParam", err)
	}
}

func TestPoolAcquireNotReserved(t *testing.T) {
	p := NewBufferPool("test")
	if _, err := p.GetFree(); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("GetFree on unreserved pool error = %v, want ErrInvalidParam", err)
	}
}

func TestPoolClose(t *testing.T) {
	p := reservedPool(t, 2)
	b, err := p.GetFree()
	if err != nil {
		t.Fatalf("GetFree failed: %v", err)
	}

	p.Close()
	p.Close() // idempotent

	if _, err := p.GetFree(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("GetFree after Close error = %v, want ErrPoolClosed", err)
	}

	// Releasing a buffer into a closed pool drops it.
	b.Release()
	if got := p.FreeCount(); got != 0 {
		t.Errorf("FreeCount after Close = %d, want 0", got)
	}
}

func TestPoolAcquireBoundedWait(t *testing.T) {
	p := reservedPool(t, 1)
	b, err := p.GetFree()
	if err != nil {
		t.Fatalf("GetFree failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire on empty pool error = %v, want ErrPoolExhausted", err)
	}

	// A released buffer unblocks a waiting Acquire.
	go func() {
		time.Sleep(5 * time.Millisecond)
		b.Release()
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, err := p.Acquire(ctx2); err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
}

func TestPoolDescriptorImmutable(t *testing.T) {
	p := reservedPool(t, 1)
	info := p.VideoInfo()
	if info.Format != FormatGray8 || info.Width != 64 {
		t.Errorf("VideoInfo = %v, want GRAY8 64x64", info)
	}
}

func TestBufferPlane(t *testing.T) {
	var info VideoBufferInfo
	if err := info.Init(FormatNV12, 64, 64); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	p := NewBufferPool("nv12")
	if err := p.Reserve(info, 1); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	b, err := p.GetFree()
	if err != nil {
		t.Fatalf("GetFree failed: %v", err)
	}

	luma, err := b.Plane(0)
	if err != nil {
		t.Fatalf("Plane(0) failed: %v", err)
	}
	if len(luma) != 64*64 {
		t.Errorf("luma size = %d, want %d", len(luma), 64*64)
	}
	chroma, err := b.Plane(1)
	if err != nil {
		t.Fatalf("Plane(1) failed: %v", err)
	}
	if len(chroma) != 64*32 {
		t.Errorf("chroma size = %d, want %d", len(chroma), 64*32)
	}
	if _, err := b.Plane(2); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("Plane(2) error = %v, want ErrInvalidParam", err)
	}
}

func TestBufferTimestamp(t *testing.T) {
	p := reservedPool(t, 1)
	b, err := p.GetFree()
	if err != nil {
		t.Fatalf("GetFree failed: %v", err)
	}
	b.SetTimestamp(1000000)
	if got := b.Timestamp(); got != 1000000 {
		t.Errorf("Timestamp = %d, want 1000000", got)
	}
}
