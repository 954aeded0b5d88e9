package main

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/gogpu/framepipe"
)

// previewMaxWidth bounds the preview image; larger frames are scaled down
// preserving aspect ratio.
const previewMaxWidth = 640

// writePreview converts one NV12 frame to a scaled PNG for quick visual
// inspection of the pipeline output.
func writePreview(path string, b *framepipe.Buffer, info framepipe.VideoBufferInfo) error {
	if info.Format != framepipe.FormatNV12 {
		return fmt.Errorf("preview supports NV12 only, got %s", info.Format)
	}
	img, err := nv12ToYCbCr(b, info)
	if err != nil {
		return err
	}

	w, h := int(info.Width), int(info.Height)
	pw, ph := w, h
	if pw > previewMaxWidth {
		pw = previewMaxWidth
		ph = h * pw / w
	}
	scaled := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, scaled)
}

// nv12ToYCbCr deinterleaves the NV12 chroma plane into the separate Cb/Cr
// planes of a stdlib YCbCr image.
func nv12ToYCbCr(b *framepipe.Buffer, info framepipe.VideoBufferInfo) (*image.YCbCr, error) {
	luma, err := b.Plane(0)
	if err != nil {
		return nil, err
	}
	chroma, err := b.Plane(1)
	if err != nil {
		return nil, err
	}

	w, h := int(info.Width), int(info.Height)
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)

	stride := int(info.Strides[0])
	for y := 0; y < h; y++ {
		copy(img.Y[y*img.YStride:y*img.YStride+w], luma[y*stride:y*stride+w])
	}

	cStride := int(info.Strides[1])
	for y := 0; y < h/2; y++ {
		row := chroma[y*cStride : y*cStride+w]
		for x := 0; x < w/2; x++ {
			img.Cb[y*img.CStride+x] = row[2*x]
			img.Cr[y*img.CStride+x] = row[2*x+1]
		}
	}
	return img, nil
}
