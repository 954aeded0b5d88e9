// Command stabdemo runs a raw NV12 stream through the stabilization
// pipeline, pacing frames against a recorded device pose stream.
//
// Each pose record drives one frame: the frame is read from the input
// stream, tagged with the pose, and executed through a framepipe.Handler
// wrapping a stab.Stabilizer. The pass ends when either the pose stream or
// the input stream runs out. With -save the processed frames are appended
// to the output file; without it every output plane is still touched so
// that device work cannot be skipped when measuring throughput.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/framepipe"
	"github.com/gogpu/framepipe/pose"
	"github.com/gogpu/framepipe/stab"

	_ "github.com/gogpu/framepipe/gpu" // enable GPU processing
)

// inputPoolSize is the input-side reservation depth. Sized generously so
// reading ahead never stalls on buffer turnover.
const inputPoolSize = 36

func main() {
	var (
		input   = flag.String("input", "", "raw NV12 input file")
		output  = flag.String("output", "stab_out.nv12", "processed output file")
		poses   = flag.String("poses", "gyro_data.csv", "device pose stream (csv)")
		width   = flag.Uint("width", 1920, "frame width")
		height  = flag.Uint("height", 1080, "frame height")
		save    = flag.Bool("save", true, "write processed frames to the output file")
		loop    = flag.Int("loop", 1, "number of passes over the input")
		preview = flag.String("preview", "", "write a PNG preview of the last frame")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	framepipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *input == "" {
		flag.Usage()
		log.Fatal("missing -input")
	}

	records, err := pose.ReadFile(*poses)
	if err != nil {
		log.Fatalf("read poses: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("pose stream %s holds no records", *poses)
	}

	var info framepipe.VideoBufferInfo
	if err := info.Init(framepipe.FormatNV12, uint32(*width), uint32(*height)); err != nil {
		log.Fatalf("video info: %v", err)
	}

	pool := framepipe.NewBufferPool("stabdemo-in")
	if err := pool.Reserve(info, inputPoolSize); err != nil {
		log.Fatalf("reserve input pool: %v", err)
	}
	defer pool.Close()

	stage := stab.NewStabilizer()
	stage.SetCameraIntrinsics(stab.CameraIntrinsics{
		FocalX:  1707.799171,
		FocalY:  1710.337510,
		OffsetX: 940.413257,
		OffsetY: 540.198348,
	})
	stage.AlignCoordinateSystem(
		stab.CoordConv{X: stab.AxisX, Y: stab.AxisMinusZ, Z: stab.AxisNone},
		stab.CoordConv{X: stab.AxisX, Y: stab.AxisY, Z: stab.AxisY},
	)

	h := framepipe.NewHandler("stabilizer", stage)
	h.EnableAllocator(true, 0)
	if err := h.SetOutVideoInfo(info); err != nil {
		log.Fatalf("output info: %v", err)
	}
	defer func() {
		if err := h.Terminate(); err != nil {
			log.Printf("terminate: %v", err)
		}
	}()

	if dev := framepipe.RegisteredDevice(); dev != nil {
		log.Printf("processing on device %q", dev.Name())
	} else {
		log.Printf("no compute device registered, processing on host")
	}

	var sink io.Writer
	if *save {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		sink = f
	}

	total := 0
	start := time.Now()
	for pass := 0; pass < *loop; pass++ {
		src, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		opts := passOptions{save: *save, preview: *preview != ""}
		n, last, err := runPass(h, pool, src, sink, records, opts)
		src.Close()
		if err != nil {
			log.Fatalf("pass %d: %v", pass+1, err)
		}
		total += n
		if last != nil {
			if pass == *loop-1 {
				if err := writePreview(*preview, last, info); err != nil {
					log.Printf("preview: %v", err)
				}
			}
			last.Release()
		}
	}
	if err := h.Finish(); err != nil {
		log.Fatalf("finish: %v", err)
	}

	elapsed := time.Since(start)
	fps := float64(total) / elapsed.Seconds()
	log.Printf("processed %d frames in %v (%.2f fps)", total, elapsed.Round(time.Millisecond), fps)
}

type passOptions struct {
	save    bool
	preview bool
}

// runPass feeds one pass of frames through the handler: one frame per pose
// record, ending early on input EOF. It returns the number of frames
// processed and, when a preview is requested, the last output buffer
// (unreleased, owned by the caller).
func runPass(
	h *framepipe.Handler,
	pool *framepipe.BufferPool,
	src io.Reader,
	sink io.Writer,
	records []*framepipe.DevicePose,
	opts passOptions,
) (int, *framepipe.Buffer, error) {
	var last *framepipe.Buffer
	n := 0
	for _, rec := range records {
		in, err := pool.GetFree()
		if err != nil {
			return n, last, fmt.Errorf("input buffer: %w", err)
		}
		if _, err := io.ReadFull(src, in.Data()); err != nil {
			in.Release()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break // input exhausted, clean end of pass
			}
			return n, last, fmt.Errorf("read frame %d: %w", n, err)
		}
		in.SetTimestamp(rec.Timestamp)

		p := framepipe.NewParameters(in, nil)
		p.AddMeta(rec)
		if err := h.Execute(p); err != nil {
			in.Release()
			return n, last, fmt.Errorf("frame %d: %w", n, err)
		}

		if sink != nil && opts.save {
			if _, err := sink.Write(p.Out.Data()); err != nil {
				in.Release()
				p.Out.Release()
				return n, last, fmt.Errorf("write frame %d: %w", n, err)
			}
		} else {
			touchPlanes(p.Out)
		}

		in.Release()
		if opts.preview {
			if last != nil {
				last.Release()
			}
			last = p.Out
		} else {
			p.Out.Release()
		}
		n++
	}
	return n, last, nil
}

// touchPlanes reads the last byte of every line of every plane, forcing
// the frame's memory to be resident even when nothing is written out.
func touchPlanes(b *framepipe.Buffer) {
	info := b.Info()
	var sum byte
	for i := uint32(0); i < info.Components; i++ {
		plane, err := b.Plane(i)
		if err != nil {
			return
		}
		pi, err := info.PlanarInfo(i)
		if err != nil {
			return
		}
		stride := info.Strides[i]
		for y := uint32(0); y < pi.Height; y++ {
			sum ^= plane[y*stride+stride-1]
		}
	}
	_ = sum
}
