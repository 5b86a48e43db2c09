package renderer

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"aotrace/camera"
	"aotrace/vmath/vec3"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PixelSink receives quantized pixels.  SetPixel is called exactly once per
// pixel, concurrently for distinct pixels.
type PixelSink interface {
	Size() (int, int)
	SetPixel(x, y int, px [3]uint8)
}

type ProgressFunction func(done, total int)

type ImageOptions struct {
	// Number of goroutines to split rows across.  Zero or negative means one
	// per CPU.
	Workers int

	// Seed for the per-pixel random streams.  The image depends only on the
	// seed, never on Workers.
	Seed int64

	// Progress, if set, is called after each finished row with the number of
	// rows done so far.  Calls are serialized.
	Progress ProgressFunction

	// Metrics, if set, receives per-row throughput measurements.
	Metrics *Metrics
}

// Quantize maps a color with components nominally in [0, 1] to 8-bit RGB,
// clamping out-of-range and NaN components.
func Quantize(c vec3.T) [3]uint8 {
	var px [3]uint8
	for i, v := range c {
		v *= 255
		switch {
		case !(v > 0):
			px[i] = 0
		case v >= 255:
			px[i] = 255
		default:
			px[i] = uint8(v)
		}
	}
	return px
}

// pixelSeed derives an independent stream per pixel by running the
// coordinates through the splitmix64 finalizer.
func pixelSeed(seed int64, x, y int) int64 {
	z := uint64(seed) ^ (uint64(uint32(x)) << 32) ^ uint64(uint32(y))
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// splitmix is a splitmix64 generator.  Reseeding it costs one store, so a
// worker can restart its stream at every pixel.
type splitmix struct {
	state uint64
}

func (s *splitmix) Seed(seed int64) {
	s.state = uint64(seed)
}

func (s *splitmix) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *splitmix) Int63() int64 {
	return int64(s.Uint64() >> 1)
}

// RenderImage renders every pixel of cam's image through r into sink.  Rows
// are split into contiguous chunks, one per worker; the call returns once
// every worker is done.
//
// The context carries tracing only; rendering runs to completion.
func RenderImage(ctx context.Context, cam *camera.Camera, r *Renderer, sink PixelSink, opts *ImageOptions) error {
	tracer := otel.Tracer("aotrace/renderer")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "RenderImage")
	defer span.End()

	if opts == nil {
		opts = &ImageOptions{}
	}

	width, height := cam.Resolution()
	if sinkWidth, sinkHeight := sink.Size(); sinkWidth != width || sinkHeight != height {
		err := fmt.Errorf("sink is %dx%d but the camera renders %dx%d", sinkWidth, sinkHeight, width, height)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > height {
		workers = height
	}

	span.SetAttributes(
		attribute.Int64("width", int64(width)),
		attribute.Int64("height", int64(height)),
		attribute.Int64("workers", int64(workers)),
		attribute.Int64("seed", opts.Seed),
	)

	// progressMutex locks rowsDone and serializes calls to opts.Progress.
	progressMutex := sync.Mutex{}
	rowsDone := 0
	logLimiter := rate.NewLimiter(rate.Every(5*time.Second), 1)
	rowFinished := func() {
		progressMutex.Lock()
		defer progressMutex.Unlock()
		rowsDone++
		if opts.Progress != nil {
			opts.Progress(rowsDone, height)
		}
		if logLimiter.Allow() {
			glog.Infof("Rendered %d/%d rows", rowsDone, height)
		}
	}

	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		w := &chunkWorker{
			index:       i,
			cam:         cam,
			renderer:    r,
			sink:        sink,
			seed:        opts.Seed,
			metrics:     opts.Metrics,
			rowFinished: rowFinished,
			imgCols:     width,
			rowSrc:      i * height / workers,
			rowLim:      (i + 1) * height / workers,
		}
		eg.Go(func() error {
			return w.render(ctx)
		})
	}

	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("while waiting for render workers: %w", err)
	}

	glog.Infof("Rendered %dx%d image with %d workers in %v", width, height, workers, time.Since(start))
	span.SetStatus(codes.Ok, "")
	return nil
}

type chunkWorker struct {
	index       int
	cam         *camera.Camera
	renderer    *Renderer
	sink        PixelSink
	seed        int64
	metrics     *Metrics
	rowFinished func()

	imgCols int

	rowSrc int
	rowLim int
}

func (w *chunkWorker) render(ctx context.Context) error {
	tracer := otel.Tracer("aotrace/renderer")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "chunkWorker.render")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("worker", int64(w.index)),
		attribute.Int64("rowSrc", int64(w.rowSrc)),
		attribute.Int64("rowLim", int64(w.rowLim)),
	)

	rng := rand.New(&splitmix{})
	for y := w.rowSrc; y < w.rowLim; y++ {
		rowStart := time.Now()
		for x := 0; x < w.imgCols; x++ {
			rng.Seed(pixelSeed(w.seed, x, y))
			color := w.renderer.Render(w.cam.GenerateRay(x, y), rng)
			w.sink.SetPixel(x, y, Quantize(color))
		}

		w.metrics.recordRow(ctx, w.index, w.imgCols, float64(time.Since(rowStart))/float64(time.Millisecond))
		w.rowFinished()
	}

	return nil
}
