package main

import (
	"bytes"
	"testing"

	"github.com/gogpu/framepipe"
	"github.com/gogpu/framepipe/stab"
)

func nv12Info(t *testing.T) framepipe.VideoBufferInfo {
	t.Helper()
	var info framepipe.VideoBufferInfo
	if err := info.Init(framepipe.FormatNV12, 64, 64); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return info
}

func testPipeline(t *testing.T) (*framepipe.Handler, *framepipe.BufferPool) {
	t.Helper()
	info := nv12Info(t)

	pool := framepipe.NewBufferPool("stabdemo-test-in")
	if err := pool.Reserve(info, 8); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	t.Cleanup(pool.Close)

	h := framepipe.NewHandler("stabilizer", stab.NewStabilizer())
	h.EnableAllocator(true, 0)
	if err := h.SetOutVideoInfo(info); err != nil {
		t.Fatalf("SetOutVideoInfo failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Terminate() })
	return h, pool
}

func makePoses(n int) []*framepipe.DevicePose {
	poses := make([]*framepipe.DevicePose, n)
	for i := range poses {
		poses[i] = &framepipe.DevicePose{
			Orientation: [4]float64{1, 0, 0, 0},
			Timestamp:   int64(i) * 33333,
		}
	}
	return poses
}

// makeStream builds a raw stream of n frames, each filled with a
// frame-distinct byte.
func makeStream(info framepipe.VideoBufferInfo, n int) *bytes.Buffer {
	var buf bytes.Buffer
	frame := make([]byte, info.Size)
	for i := 0; i < n; i++ {
		for j := range frame {
			frame[j] = byte(i + 1)
		}
		buf.Write(frame)
	}
	return &buf
}

// The pose stream is shorter than the input: the pass ends with the poses,
// one frame per record.
func TestRunPassEndsWithPoseStream(t *testing.T) {
	h, pool := testPipeline(t)
	info := nv12Info(t)

	src := makeStream(info, 10)
	var sink bytes.Buffer
	n, _, err := runPass(h, pool, src, &sink, makePoses(7), passOptions{save: true})
	if err != nil {
		t.Fatalf("runPass failed: %v", err)
	}
	if n != 7 {
		t.Errorf("processed %d frames, want 7 (pose stream length)", n)
	}
	if got, want := sink.Len(), 7*int(info.Size); got != want {
		t.Errorf("sink holds %d bytes, want %d", got, want)
	}
	// The first saved frame is the stabilized copy of the first input frame.
	if sink.Bytes()[0] != 1 {
		t.Errorf("first output byte = %d, want 1", sink.Bytes()[0])
	}
}

// The input is shorter than the pose stream: EOF ends the pass cleanly.
func TestRunPassEndsOnInputEOF(t *testing.T) {
	h, pool := testPipeline(t)
	info := nv12Info(t)

	src := makeStream(info, 3)
	var sink bytes.Buffer
	n, _, err := runPass(h, pool, src, &sink, makePoses(7), passOptions{save: true})
	if err != nil {
		t.Fatalf("runPass failed: %v", err)
	}
	if n != 3 {
		t.Errorf("processed %d frames, want 3 (input length)", n)
	}
}

// Without save, frames are still processed and their planes touched.
func TestRunPassWithoutSave(t *testing.T) {
	h, pool := testPipeline(t)
	info := nv12Info(t)

	n, _, err := runPass(h, pool, makeStream(info, 2), nil, makePoses(2), passOptions{})
	if err != nil {
		t.Fatalf("runPass failed: %v", err)
	}
	if n != 2 {
		t.Errorf("processed %d frames, want 2", n)
	}
	// Buffer turnover: the pool must be full again after the pass.
	if got := pool.FreeCount(); got != int(pool.Capacity()) {
		t.Errorf("input pool free count = %d, want %d", got, pool.Capacity())
	}
}

// The preview option keeps the last output buffer alive for the caller.
func TestRunPassPreviewKeepsLastFrame(t *testing.T) {
	h, pool := testPipeline(t)
	info := nv12Info(t)

	n, last, err := runPass(h, pool, makeStream(info, 2), nil, makePoses(2), passOptions{preview: true})
	if err != nil {
		t.Fatalf("runPass failed: %v", err)
	}
	if n != 2 || last == nil {
		t.Fatalf("n=%d last=%v, want 2 frames and a kept buffer", n, last)
	}
	defer last.Release()
	if last.Data()[0] != 2 {
		t.Errorf("last frame byte = %d, want 2 (second input frame)", last.Data()[0])
	}
}

func TestNV12ToYCbCr(t *testing.T) {
	info := nv12Info(t)
	pool := framepipe.NewBufferPool("preview-test")
	if err := pool.Reserve(info, 1); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	t.Cleanup(pool.Close)
	b, err := pool.GetFree()
	if err != nil {
		t.Fatalf("GetFree failed: %v", err)
	}

	luma, _ := b.Plane(0)
	chroma, _ := b.Plane(1)
	luma[0] = 200
	chroma[0] = 100 // Cb of the top-left chroma sample
	chroma[1] = 50  // Cr of the top-left chroma sample

	img, err := nv12ToYCbCr(b, info)
	if err != nil {
		t.Fatalf("nv12ToYCbCr failed: %v", err)
	}
	if img.Y[0] != 200 {
		t.Errorf("Y[0] = %d, want 200", img.Y[0])
	}
	if img.Cb[0] != 100 || img.Cr[0] != 50 {
		t.Errorf("Cb[0]/Cr[0] = %d/%d, want 100/50", img.Cb[0], img.Cr[0])
	}
}
