package renderer

import (
	"context"
	"strconv"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/unit"
)

var workerKey = tag.MustNewKey("worker")

// Metrics records render throughput through OpenCensus views and through
// OpenTelemetry instruments on the global meter provider.  A nil *Metrics
// records nothing.
type Metrics struct {
	pixelCount     *stats.Int64Measure
	pixelCountView *view.View

	rowLatency     *stats.Float64Measure
	rowLatencyView *view.View

	pixelCounter       metric.Int64Counter
	rowLatencyRecorder metric.Float64ValueRecorder
}

// NewMetrics creates the instruments.  Call it after the OpenTelemetry meter
// pipeline is installed.
func NewMetrics() *Metrics {
	m := &Metrics{}

	meter := metric.Must(global.Meter("aotrace/renderer"))
	m.pixelCounter = meter.NewInt64Counter(
		"aotrace/pixels",
		metric.WithDescription("Pixels written to the sink"),
		metric.WithUnit(unit.Dimensionless))
	m.rowLatencyRecorder = meter.NewFloat64ValueRecorder(
		"aotrace/row_latency",
		metric.WithDescription("Time to render one image row"),
		metric.WithUnit(unit.Milliseconds))

	m.pixelCount = stats.Int64("aotrace/pixels", "Pixels written to the sink", stats.UnitDimensionless)
	m.pixelCountView = &view.View{
		Name:        "aotrace/pixels",
		Description: "Counter of pixels that have been rendered",

		TagKeys: []tag.Key{workerKey},

		Measure:     m.pixelCount,
		Aggregation: view.Sum(),
	}

	m.rowLatency = stats.Float64("aotrace/row_latency", "Time to render one image row", stats.UnitMilliseconds)
	m.rowLatencyView = &view.View{
		Name:        "aotrace/row_latency",
		Description: "Distribution of per-row render times",

		TagKeys: []tag.Key{workerKey},

		Measure:     m.rowLatency,
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000),
	}

	return m
}

func (m *Metrics) RegisterMetrics() error {
	return view.Register(m.pixelCountView, m.rowLatencyView)
}

func (m *Metrics) UnregisterMetrics() {
	view.Unregister(m.pixelCountView, m.rowLatencyView)
}

func (m *Metrics) recordRow(ctx context.Context, worker, pixels int, millis float64) {
	if m == nil {
		return
	}

	stats.RecordWithOptions(
		ctx,
		stats.WithTags(tag.Insert(workerKey, strconv.Itoa(worker))),
		stats.WithMeasurements(
			m.pixelCount.M(int64(pixels)),
			m.rowLatency.M(millis),
		))

	workerAttr := attribute.Int("worker", worker)
	m.pixelCounter.Add(ctx, int64(pixels), workerAttr)
	m.rowLatencyRecorder.Record(ctx, millis, workerAttr)
}
