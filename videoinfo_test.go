package framepipe

import (
	"errors"
	"testing"
)

func TestVideoBufferInfoInitNV12(t *testing.T) {
	var info VideoBufferInfo
	if err := info.Init(FormatNV12, 1920, 1080); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if info.Components != 2 {
		t.Errorf("Components = %d, want 2", info.Components)
	}
	if info.Strides[0] != 1920 || info.Strides[1] != 1920 {
		t.Errorf("Strides = %v, want 1920/1920", info.Strides)
	}
	if info.Offsets[1] != 1920*1080 {
		t.Errorf("Offsets[1] = %d, want %d", info.Offsets[1], 1920*1080)
	}
	if info.Size != 1920*1080*3/2 {
		t.Errorf("Size = %d, want %d", info.Size, 1920*1080*3/2)
	}

	chroma, err := info.PlanarInfo(1)
	if err != nil {
		t.Fatalf("PlanarInfo(1) failed: %v", err)
	}
	if chroma.Width != 960 || chroma.Height != 540 || chroma.PixelBytes != 2 {
		t.Errorf("chroma plane = %+v, want 960x540x2", chroma)
	}
}

func TestVideoBufferInfoInit(t *testing.T) {
	tests := []struct {
		name       string
		format     PixelFormat
		w, h       uint32
		wantErr    bool
		components uint32
		size       uint32
	}{
		{name: "I420", format: FormatI420, w: 64, h: 64, components: 3, size: 64*64 + 2*32*64/2},
		{name: "RGBA", format: FormatRGBA, w: 10, h: 10, components: 1, size: 400},
		{name: "GRAY8", format: FormatGray8, w: 64, h: 64, components: 1, size: 4096},
		{name: "GRAY8 stride aligned", format: FormatGray8, w: 65, h: 2, components: 1, size: 136},
		{name: "zero width", format: FormatNV12, w: 0, h: 64, wantErr: true},
		{name: "odd NV12", format: FormatNV12, w: 63, h: 64, wantErr: true},
		{name: "unknown format", format: PixelFormat(99), w: 64, h: 64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var info VideoBufferInfo
			err := info.Init(tt.format, tt.w, tt.h)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidParam) {
					t.Errorf("error = %v, want ErrInvalidParam", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			if info.Components != tt.components {
				t.Errorf("Components = %d, want %d", info.Components, tt.components)
			}
			if info.Size != tt.size {
				t.Errorf("Size = %d, want %d", info.Size, tt.size)
			}
			if !info.Valid() {
				t.Error("info should be valid after Init")
			}
		})
	}
}

func TestVideoBufferInfoPlanarInfoOutOfRange(t *testing.T) {
	var info VideoBufferInfo
	if err := info.Init(FormatGray8, 64, 64); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := info.PlanarInfo(1); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("PlanarInfo(1) error = %v, want ErrInvalidParam", err)
	}
}

func TestVideoBufferInfoZeroValueInvalid(t *testing.T) {
	var info VideoBufferInfo
	if info.Valid() {
		t.Error("zero-value info must not be valid")
	}
}
