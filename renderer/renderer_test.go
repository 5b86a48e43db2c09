package renderer

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"aotrace/camera"
	"aotrace/geometry"
	"aotrace/ray"
	"aotrace/scene"
	"aotrace/shader"
	"aotrace/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"go.opencensus.io/stats/view"
)

// gridSink is a PixelSink that also counts writes per pixel.
type gridSink struct {
	width, height int
	pix           [][3]uint8
	writes        []int
}

func newGridSink(width, height int) *gridSink {
	return &gridSink{
		width:  width,
		height: height,
		pix:    make([][3]uint8, width*height),
		writes: make([]int, width*height),
	}
}

func (s *gridSink) Size() (int, int) {
	return s.width, s.height
}

func (s *gridSink) SetPixel(x, y int, px [3]uint8) {
	s.pix[y*s.width+x] = px
	s.writes[y*s.width+x]++
}

func (s *gridSink) at(x, y int) [3]uint8 {
	return s.pix[y*s.width+x]
}

func mustSphere(t *testing.T, center vec3.T, radius float64, sh shader.Shader) geometry.Shape {
	t.Helper()
	s, err := geometry.NewSphere(center, radius, sh)
	if err != nil {
		t.Fatalf("Unexpected error creating sphere: %v", err)
	}
	return s
}

func mustRenderer(t *testing.T, shapes []geometry.Shape, opts ...Opt) *Renderer {
	t.Helper()
	s, err := scene.New(shapes, nil)
	if err != nil {
		t.Fatalf("Unexpected error creating scene: %v", err)
	}
	r, err := New(s, opts...)
	if err != nil {
		t.Fatalf("Unexpected error creating renderer: %v", err)
	}
	return r
}

// aoScene is a small version of the default scene: a sphere resting above a
// large ground sphere, both ambient occluded.
func aoScene(t *testing.T) *Renderer {
	t.Helper()
	ao, err := shader.NewAmbientOcclusion(8, vec3.T{0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return mustRenderer(t, []geometry.Shape{
		mustSphere(t, vec3.T{0, 0, 0}, 1, ao),
		mustSphere(t, vec3.T{0, 0, -1e4 - 1}, 1e4, ao),
	})
}

func TestRenderMissReturnsBackground(t *testing.T) {
	r := mustRenderer(t, []geometry.Shape{
		mustSphere(t, vec3.T{0, 5, 0}, 1, &shader.Phong{Color: vec3.T{1, 0, 0}}),
	}, WithBackground(vec3.T{0, 0, 1}))

	q := ray.New(vec3.T{0, 0, 0}, vec3.T{0, -1, 0}, 0, math.Inf(1))
	if got := r.Render(q, rand.New(rand.NewSource(1))); got != (vec3.T{0, 0, 1}) {
		t.Errorf("Bad miss color; got %v, want background", got)
	}

	q = ray.New(vec3.T{0, 0, 0}, vec3.T{0, 1, 0}, 0, math.Inf(1))
	if got := r.Render(q, rand.New(rand.NewSource(1))); got != (vec3.T{1, 0, 0}) {
		t.Errorf("Bad hit color; got %v, want sphere color", got)
	}
}

func TestIntersectTightensRay(t *testing.T) {
	r := mustRenderer(t, []geometry.Shape{
		mustSphere(t, vec3.T{0, 5, 0}, 1, &shader.Phong{}),
	})

	q := ray.New(vec3.T{0, 0, 0}, vec3.T{0, 1, 0}, 0, math.Inf(1))
	c, hit := r.Intersect(&q)
	if !hit || c.T != 4 || q.TMax != 4 {
		t.Errorf("Bad intersection; got hit=%v T=%v TMax=%v, want hit at 4", hit, c.T, q.TMax)
	}
}

func TestRenderImageCenterAndCorner(t *testing.T) {
	cam, err := camera.New(32, 24)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r := mustRenderer(t, []geometry.Shape{
		mustSphere(t, vec3.T{0, 0, 0.5}, 1, &shader.Phong{Color: vec3.T{1, 0, 0}}),
	}, WithBackground(vec3.T{0, 0, 1}))

	sink := newGridSink(32, 24)
	if err := RenderImage(context.Background(), cam, r, sink, &ImageOptions{Workers: 3}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got, want := sink.at(16, 12), ([3]uint8{255, 0, 0}); got != want {
		t.Errorf("Center pixel; got %v, want %v", got, want)
	}
	if got, want := sink.at(0, 0), ([3]uint8{0, 0, 255}); got != want {
		t.Errorf("Corner pixel; got %v, want %v", got, want)
	}

	q := cam.GenerateRay(16, 12)
	c, hit := r.Intersect(&q)
	if !hit {
		t.Fatalf("Center ray missed the sphere")
	}
	if !c.FacesOrigin() || vec3.IProd(c.N, vec3.Neg(q.Dir)) <= 0 {
		t.Errorf("Center normal %v does not face the camera along %v", c.N, q.Dir)
	}
}

func TestAmbientOcclusionBetweenSpheres(t *testing.T) {
	ao, err := shader.NewAmbientOcclusion(4000, vec3.T{1, 1, 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	base := mustSphere(t, vec3.T{0, 0, 0}, 1, ao)

	// The primary ray starts in the gap between the top of the base sphere
	// and the occluder, and looks straight down.
	shade := func(shapes []geometry.Shape) vec3.T {
		q := ray.New(vec3.T{0, 0, 1.1}, vec3.T{0, 0, -1}, 0, math.Inf(1))
		return mustRenderer(t, shapes).Render(q, rand.New(rand.NewSource(9)))
	}

	open := shade([]geometry.Shape{base})
	if open != (vec3.T{1, 1, 1}) {
		t.Errorf("Unoccluded AO; got %v, want full color", open)
	}

	// Seen from the top of the base sphere, the occluder covers a cone of
	// half-angle asin(1/1.2).  Cosine-weighted, that blocks (1/1.2)^2 of the
	// hemisphere.
	occluder := mustSphere(t, vec3.T{0, 0, 2.2}, 1, &shader.Phong{})
	blocked := shade([]geometry.Shape{base, occluder})
	want := 1 - 1/(1.2*1.2)
	if math.Abs(blocked[0]-want) > 0.05 {
		t.Errorf("Occluded AO; got %v, want about %v", blocked[0], want)
	}
	if blocked[0] >= 0.5*open[0] {
		t.Errorf("Occluder barely darkened the contact; got %v, unoccluded %v", blocked[0], open[0])
	}
}

func TestRenderImageWritesEachPixelOnce(t *testing.T) {
	cam, err := camera.New(17, 13)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r := aoScene(t)

	for _, workers := range []int{1, 2, 4, 5, 13, 40} {
		sink := newGridSink(17, 13)
		if err := RenderImage(context.Background(), cam, r, sink, &ImageOptions{Workers: workers}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		for i, n := range sink.writes {
			if n != 1 {
				t.Fatalf("Workers=%d: pixel (%d, %d) written %d times", workers, i%17, i/17, n)
			}
		}
	}
}

func TestRenderImageIndependentOfWorkers(t *testing.T) {
	cam, err := camera.New(24, 16)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r := aoScene(t)

	render := func(workers int) [][3]uint8 {
		sink := newGridSink(24, 16)
		if err := RenderImage(context.Background(), cam, r, sink, &ImageOptions{Workers: workers, Seed: 77}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return sink.pix
	}

	want := render(1)
	for _, workers := range []int{3, 8, 0} {
		if diff := cmp.Diff(render(workers), want); diff != "" {
			t.Errorf("Workers=%d differs from a serial render; diff (-got +want)\n%s", workers, diff)
		}
	}
}

func TestRenderImageProgress(t *testing.T) {
	cam, err := camera.New(8, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r := mustRenderer(t, nil)

	var calls []int
	opts := &ImageOptions{
		Workers: 4,
		Progress: func(done, total int) {
			if total != 10 {
				t.Errorf("Bad progress total; got %d, want 10", total)
			}
			calls = append(calls, done)
		},
	}
	if err := RenderImage(context.Background(), cam, r, newGridSink(8, 10), opts); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if diff := cmp.Diff(calls, want); diff != "" {
		t.Errorf("Bad progress sequence; diff (-got +want)\n%s", diff)
	}
}

func TestRenderImageRejectsMismatchedSink(t *testing.T) {
	cam, err := camera.New(8, 8)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := RenderImage(context.Background(), cam, mustRenderer(t, nil), newGridSink(8, 9), nil); err == nil {
		t.Errorf("Expected error for mismatched sink size")
	}
}

func TestRenderImageRecordsMetrics(t *testing.T) {
	cam, err := camera.New(4, 4)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m := NewMetrics()
	if err := m.RegisterMetrics(); err != nil {
		t.Fatalf("Unexpected error registering views: %v", err)
	}
	defer m.UnregisterMetrics()

	opts := &ImageOptions{Workers: 2, Metrics: m}
	if err := RenderImage(context.Background(), cam, mustRenderer(t, nil), newGridSink(4, 4), opts); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rows, err := view.RetrieveData("aotrace/pixels")
	if err != nil {
		t.Fatalf("Unexpected error retrieving view data: %v", err)
	}
	total := 0.0
	for _, row := range rows {
		sum, ok := row.Data.(*view.SumData)
		if !ok {
			t.Fatalf("Bad aggregation type %T", row.Data)
		}
		total += sum.Value
	}
	if total != 16 {
		t.Errorf("Bad pixel count; got %v, want 16", total)
	}

	latencyRows, err := view.RetrieveData("aotrace/row_latency")
	if err != nil {
		t.Fatalf("Unexpected error retrieving view data: %v", err)
	}
	var rowCount int64
	for _, row := range latencyRows {
		rowCount += row.Data.(*view.DistributionData).Count
	}
	if rowCount != 4 {
		t.Errorf("Bad row latency count; got %d, want 4", rowCount)
	}
}

func TestSplitmixReseedRestartsStream(t *testing.T) {
	src := &splitmix{}
	rng := rand.New(src)

	draw := func() []float64 {
		var got []float64
		for i := 0; i < 5; i++ {
			got = append(got, rng.Float64())
		}
		return got
	}

	rng.Seed(pixelSeed(3, 10, 20))
	first := draw()
	rng.Seed(pixelSeed(3, 10, 20))
	if diff := cmp.Diff(draw(), first); diff != "" {
		t.Errorf("Reseeded stream differs; diff (-got +want)\n%s", diff)
	}

	rng.Seed(pixelSeed(3, 11, 20))
	if diff := cmp.Diff(draw(), first); diff == "" {
		t.Errorf("Neighboring pixels share a stream")
	}

	for _, v := range first {
		if v < 0 || v >= 1 {
			t.Errorf("Float64 out of range: %v", v)
		}
	}
}

func TestQuantize(t *testing.T) {
	testCases := []struct {
		c    vec3.T
		want [3]uint8
	}{
		{vec3.T{0, 0.5, 1}, [3]uint8{0, 127, 255}},
		{vec3.T{-1, 2, math.Inf(1)}, [3]uint8{0, 255, 255}},
		{vec3.T{math.NaN(), math.Inf(-1), 0.25}, [3]uint8{0, 0, 63}},
	}
	for _, tc := range testCases {
		if got := Quantize(tc.c); got != tc.want {
			t.Errorf("Quantize(%v) = %v, want %v", tc.c, got, tc.want)
		}
	}
}
