// Package framebuffer stores rendered 8-bit RGB pixels and encodes them as
// PNG or as a raw zlib-compressed dump with a protobuf header.
package framebuffer

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	channels          = 3
	dataLayoutVersion = 1

	// Largest pixel buffer ReadFramebuffer will allocate, in bytes.
	maxPixBytes = 1 << 31
)

// Framebuffer is a width x height grid of RGB pixels, row 0 at the top.
//
// SetPixel may be called concurrently for distinct pixels.
type Framebuffer struct {
	Width, Height int
	Pix           []uint8
}

func New(width, height int) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("framebuffer size must be positive, got %dx%d", width, height)
	}
	return &Framebuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*channels),
	}, nil
}

func (f *Framebuffer) Size() (int, int) {
	return f.Width, f.Height
}

func (f *Framebuffer) SetPixel(x, y int, px [3]uint8) {
	idx := (y*f.Width + x) * channels
	copy(f.Pix[idx:idx+channels], px[:])
}

func (f *Framebuffer) Pixel(x, y int) [3]uint8 {
	idx := (y*f.Width + x) * channels
	return [3]uint8{f.Pix[idx], f.Pix[idx+1], f.Pix[idx+2]}
}

// Image returns an opaque copy of the framebuffer.
func (f *Framebuffer) Image() *image.NRGBA {
	im := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			px := f.Pixel(x, y)
			im.SetNRGBA(x, y, color.NRGBA{R: px[0], G: px[1], B: px[2], A: 0xff})
		}
	}
	return im
}

func (f *Framebuffer) WritePNG(w io.Writer) error {
	if err := png.Encode(w, f.Image()); err != nil {
		return fmt.Errorf("while encoding png: %w", err)
	}
	return nil
}

func (f *Framebuffer) header() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"width":             f.Width,
		"height":            f.Height,
		"channels":          channels,
		"dataLayoutVersion": dataLayoutVersion,
	})
}

// Describe renders the raw-format header in protobuf text format.
func (f *Framebuffer) Describe() string {
	hdr, err := f.header()
	if err != nil {
		return fmt.Sprintf("<bad header: %v>", err)
	}
	return prototext.Format(hdr)
}

func ReadFramebuffer(in io.Reader) (*Framebuffer, error) {
	// Read header length.
	var headerLength uint64
	if err := binary.Read(in, binary.LittleEndian, &headerLength); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}
	if headerLength > 1<<20 {
		return nil, fmt.Errorf("implausible header length %d", headerLength)
	}

	headerBytes := make([]byte, int(headerLength))
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header bytes: %w", err)
	}

	hdr := &structpb.Struct{}
	if err := proto.Unmarshal(headerBytes, hdr); err != nil {
		return nil, fmt.Errorf("while unmarshaling header: %w", err)
	}

	fields := hdr.GetFields()
	if v := fields["dataLayoutVersion"].GetNumberValue(); v != dataLayoutVersion {
		return nil, fmt.Errorf("bad data layout version: %v", v)
	}
	if c := fields["channels"].GetNumberValue(); c != channels {
		return nil, fmt.Errorf("bad channel count: %v", c)
	}

	width, err := headerDimension(fields, "width")
	if err != nil {
		return nil, err
	}
	height, err := headerDimension(fields, "height")
	if err != nil {
		return nil, err
	}
	if width*height > maxPixBytes/channels {
		return nil, fmt.Errorf("header size %dx%d is too large", width, height)
	}

	fb, err := New(width, height)
	if err != nil {
		return nil, fmt.Errorf("while allocating framebuffer from header: %w", err)
	}

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if _, err := io.ReadFull(zipReader, fb.Pix); err != nil {
		return nil, fmt.Errorf("while reading pixels: %w", err)
	}

	var extra [1]byte
	if n, _ := zipReader.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("pixel data is longer than %dx%d", fb.Width, fb.Height)
	}

	return fb, nil
}

// headerDimension reads a positive integral size field, bounded so that the
// product of two dimensions cannot overflow.
func headerDimension(fields map[string]*structpb.Value, name string) (int, error) {
	v := fields[name].GetNumberValue()
	if v != math.Trunc(v) || v <= 0 || v > maxPixBytes {
		return 0, fmt.Errorf("bad %s in header: %v", name, v)
	}
	return int(v), nil
}

func ReadFramebufferFromFile(name string) (*Framebuffer, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening file: %w", err)
	}
	defer f.Close()

	return ReadFramebuffer(f)
}

func WriteFramebuffer(fb *Framebuffer, w io.Writer) error {
	hdr, err := fb.header()
	if err != nil {
		return fmt.Errorf("while building header: %w", err)
	}

	hdrBytes, err := proto.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	headerLengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(headerLengthBytes, uint64(len(hdrBytes)))
	if _, err := w.Write(headerLengthBytes); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(hdrBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	zipWriter := zlib.NewWriter(w)

	if _, err := zipWriter.Write(fb.Pix); err != nil {
		return fmt.Errorf("while writing pixels: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}

func WriteFramebufferToFile(fb *Framebuffer, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("while creating file: %w", err)
	}

	if err := WriteFramebuffer(fb, f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("while closing file: %w", err)
	}
	return nil
}
