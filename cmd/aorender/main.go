// aorender renders a scene with ambient occlusion and writes the result as
// a PNG and, optionally, a raw framebuffer dump.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"aotrace/camera"
	"aotrace/framebuffer"
	"aotrace/publish"
	"aotrace/renderer"
	"aotrace/scenepack"

	"cloud.google.com/go/storage"
	"contrib.go.opencensus.io/exporter/stackdriver"
	cloudmetrics "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/golang/glog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/term"
	googleopt "google.golang.org/api/option"
)

var (
	outputFile = flag.String("output-file", "rendering.png", "Output PNG image")
	outputRaw  = flag.String("output-raw", "", "If set, also write the raw framebuffer to this file")
	outputRows = flag.Int("output-rows", 768, "Output image rows")
	outputCols = flag.Int("output-cols", 1024, "Output image columns")

	workers   = flag.Int("workers", 0, "Render goroutines; 0 means one per CPU")
	seed      = flag.Int64("seed", 1, "Seed for the per-pixel random streams")
	aoSamples = flag.Int("ao-samples", scenepack.DefaultSamples, "Ambient occlusion samples per hit in the default scene")
	sceneFile = flag.String("scene-file", "", "YAML scene description; the built-in scene is used if empty")

	uploadBucket = flag.String("upload-bucket", "", "If set, upload the outputs to this GCS bucket")
	uploadPrefix = flag.String("upload-prefix", "", "Object name prefix for uploads")

	monitoring           = flag.Bool("monitoring", false, "Enable monitoring?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 1.0, "What ratio of traces should be exported?")

	cpuprofile = flag.String("cpu-profile", "", "write cpu profile to `file`")
	memprofile = flag.String("mem-profile", "", "write memory profile to `file`")
)

func main() {
	flag.Parse()

	glog.CopyStandardLogTo("INFO")
	defer glog.Flush()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			glog.Fatalf("Could not create CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Fatalf("Could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	if err := do(context.Background()); err != nil {
		glog.Errorf("Error: %v", err)
		glog.Flush()
		os.Exit(1)
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			glog.Fatalf("Could not create memory profile: %v", err)
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			glog.Fatalf("Could not write memory profile: %v", err)
		}
	}
}

func do(ctx context.Context) error {
	var metrics *renderer.Metrics
	if *monitoring {
		shutdown, err := installMonitoring(ctx)
		if err != nil {
			return fmt.Errorf("while installing monitoring: %w", err)
		}
		defer shutdown()

		// Instruments bind to the meter provider installed above.
		metrics = renderer.NewMetrics()
		if err := metrics.RegisterMetrics(); err != nil {
			return fmt.Errorf("while registering render views: %w", err)
		}
	}

	pack, err := loadPack()
	if err != nil {
		return err
	}

	cam, err := camera.New(*outputCols, *outputRows, pack.CameraOpts...)
	if err != nil {
		return fmt.Errorf("while creating camera: %w", err)
	}

	r, err := renderer.New(pack.Scene, renderer.WithBackground(pack.Background))
	if err != nil {
		return fmt.Errorf("while creating renderer: %w", err)
	}

	fb, err := framebuffer.New(*outputCols, *outputRows)
	if err != nil {
		return fmt.Errorf("while allocating framebuffer: %w", err)
	}

	opts := &renderer.ImageOptions{
		Workers: *workers,
		Seed:    *seed,
		Metrics: metrics,
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rRendered %d/%d rows", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	if err := renderer.RenderImage(ctx, cam, r, fb, opts); err != nil {
		return fmt.Errorf("while rendering: %w", err)
	}

	pngBuf := &bytes.Buffer{}
	if err := fb.WritePNG(pngBuf); err != nil {
		return err
	}
	if err := os.WriteFile(*outputFile, pngBuf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("while writing %s: %w", *outputFile, err)
	}
	glog.Infof("Wrote %s", *outputFile)

	uploads := []publish.Object{
		{
			Name:        filepath.Base(*outputFile),
			ContentType: "image/png",
			Data:        pngBuf.Bytes(),
		},
	}

	if *outputRaw != "" {
		rawBuf := &bytes.Buffer{}
		if err := framebuffer.WriteFramebuffer(fb, rawBuf); err != nil {
			return fmt.Errorf("while encoding raw framebuffer: %w", err)
		}
		if err := os.WriteFile(*outputRaw, rawBuf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("while writing %s: %w", *outputRaw, err)
		}
		glog.Infof("Wrote %s with header %s", *outputRaw, fb.Describe())

		uploads = append(uploads, publish.Object{
			Name:        filepath.Base(*outputRaw),
			ContentType: "application/octet-stream",
			Data:        rawBuf.Bytes(),
		})
	}

	if *uploadBucket != "" {
		gcs, err := storage.NewClient(ctx, googleopt.WithUserAgent("aotrace/aorender"))
		if err != nil {
			return fmt.Errorf("while creating GCS client: %w", err)
		}
		defer gcs.Close()

		uploader := publish.New(gcs, *uploadBucket, publish.WithPrefix(*uploadPrefix))
		if err := uploader.UploadAll(ctx, uploads); err != nil {
			return fmt.Errorf("while uploading outputs: %w", err)
		}
	}

	return nil
}

func loadPack() (*scenepack.Pack, error) {
	if *sceneFile == "" {
		pack, err := scenepack.Default(*aoSamples)
		if err != nil {
			return nil, fmt.Errorf("while building default scene: %w", err)
		}
		return pack, nil
	}

	pack, err := scenepack.LoadScene(*sceneFile)
	if err != nil {
		return nil, fmt.Errorf("while loading scene: %w", err)
	}
	return pack, nil
}

// installMonitoring exports traces through the OpenTelemetry Cloud Trace
// pipeline and render metrics through both the OpenTelemetry Cloud
// Monitoring pipeline and the OpenCensus Stackdriver exporter.
func installMonitoring(ctx context.Context) (func(), error) {
	metricsOpts := []cloudmetrics.Option{}
	traceOpts := []cloudtrace.Option{}
	if *monitoringProject != "" {
		metricsOpts = append(metricsOpts, cloudmetrics.WithProjectID(*monitoringProject))
		traceOpts = append(traceOpts, cloudtrace.WithProjectID(*monitoringProject))
	}

	_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*monitoringTraceRatio)))
	if err != nil {
		return nil, fmt.Errorf("while installing Cloud Trace OpenTelemetry trace pipeline: %w", err)
	}

	pusher, err := cloudmetrics.InstallNewPipeline(metricsOpts)
	if err != nil {
		traceShutdown()
		return nil, fmt.Errorf("while installing Cloud Metrics OpenTelemetry meter pipeline: %w", err)
	}

	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:         *monitoringProject,
		MetricPrefix:      "aorender",
		ReportingInterval: 60 * time.Second,
	})
	if err != nil {
		pusher.Stop(ctx)
		traceShutdown()
		return nil, fmt.Errorf("while creating Stackdriver exporter: %w", err)
	}
	if err := exporter.StartMetricsExporter(); err != nil {
		pusher.Stop(ctx)
		traceShutdown()
		return nil, fmt.Errorf("while starting Stackdriver metrics exporter: %w", err)
	}

	return func() {
		exporter.Flush()
		exporter.StopMetricsExporter()
		pusher.Stop(ctx)
		traceShutdown()
	}, nil
}
