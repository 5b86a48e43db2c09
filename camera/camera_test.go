package camera

import (
	"errors"
	"math"
	"testing"

	"aotrace/vmath/mat44"
	"aotrace/vmath/vec3"
	"aotrace/vmath/vec4"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func mustNew(t *testing.T, width, height int, opts ...Opt) *Camera {
	t.Helper()
	c, err := New(width, height, opts...)
	if err != nil {
		t.Fatalf("Unexpected error creating camera: %v", err)
	}
	return c
}

func TestScreenWorldRoundTrip(t *testing.T) {
	testCases := []struct {
		desc string
		opts []Opt
	}{
		{desc: "default"},
		{
			desc: "oblique",
			opts: []Opt{
				WithPosition(vec3.T{3, -4, 5}),
				WithFront(vec3.T{-1, 2, -0.5}),
				WithUp(vec3.T{0, 0, 1}),
				WithFieldOfView(70),
				WithClip(0.1, 500),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			c := mustNew(t, 640, 480, tc.opts...)
			got := mat44.MulMM(c.ScreenToWorld(), c.WorldToScreen())
			if diff := cmp.Diff(got, mat44.Identity(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
				t.Errorf("screenToWorld * worldToScreen != I; diff (-got +want)\n%s", diff)
			}

			got = mat44.MulMM(c.CameraToWorld(), c.WorldToCamera())
			if diff := cmp.Diff(got, mat44.Identity(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("cameraToWorld * worldToCamera != I; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestCornerRaysSpanClipPlanes(t *testing.T) {
	c := mustNew(t, 320, 200,
		WithPosition(vec3.T{1, 2, 3}),
		WithFront(vec3.T{0.2, 1, -0.1}),
		WithUp(vec3.T{0, 0, 1}),
		WithClip(0.5, 1000))

	forward := vec3.Normalize(c.Front())
	corners := [][2]float64{{0, 0}, {320, 0}, {0, 200}, {320, 200}, {160, 100}}
	for _, corner := range corners {
		r := c.GenerateRayAt(corner[0], corner[1])
		if r.Origin != c.Position() {
			t.Errorf("Ray origin %v, want camera position %v", r.Origin, c.Position())
		}

		cosine := vec3.IProd(r.Dir, forward)
		if got := r.TMin * cosine; math.Abs(got-0.5) > 0.5*1e-9 {
			t.Errorf("Corner %v: near depth %v, want 0.5", corner, got)
		}
		if got := r.TMax * cosine; math.Abs(got-1000) > 1000*1e-4 {
			t.Errorf("Corner %v: far depth %v, want 1000", corner, got)
		}
	}
}

func TestCenterRayFollowsFront(t *testing.T) {
	c := mustNew(t, 101, 101)
	r := c.GenerateRay(50, 50)
	if !vec3.ApproxEqual(r.Dir, vec3.T{0, 1, 0}, 1e-9) {
		t.Errorf("Center ray direction %v, want %v", r.Dir, vec3.T{0, 1, 0})
	}
	if math.Abs(r.TMin-0.01) > 1e-12 {
		t.Errorf("Center ray TMin %v, want 0.01", r.TMin)
	}
}

func TestFirstRowIsTop(t *testing.T) {
	c := mustNew(t, 64, 48)
	top := c.GenerateRay(32, 0)
	bottom := c.GenerateRay(32, 47)
	if !(top.Dir[2] > 0 && bottom.Dir[2] < 0) {
		t.Errorf("Row 0 should look up and the last row down; got top %v, bottom %v", top.Dir, bottom.Dir)
	}
}

func TestDegenerateUpIsRejected(t *testing.T) {
	c := mustNew(t, 64, 64)
	before := *c

	err := c.SetUp(vec3.T{0, 3, 0})
	if !errors.Is(err, ErrDegenerateBasis) {
		t.Fatalf("SetUp parallel to front: got err %v, want ErrDegenerateBasis", err)
	}
	var updateErr *UpdateError
	if !errors.As(err, &updateErr) {
		t.Fatalf("Expected *UpdateError, got %T", err)
	}

	if diff := cmp.Diff(*c, before, cmp.AllowUnexported(Camera{})); diff != "" {
		t.Errorf("Camera changed after rejected update; diff (-got +want)\n%s", diff)
	}
}

func TestZeroFrontIsRejected(t *testing.T) {
	c := mustNew(t, 64, 64)
	before := *c

	if err := c.SetFront(vec3.T{}); !errors.Is(err, ErrDegenerateBasis) {
		t.Fatalf("SetFront(0): got err %v, want ErrDegenerateBasis", err)
	}
	if diff := cmp.Diff(*c, before, cmp.AllowUnexported(Camera{})); diff != "" {
		t.Errorf("Camera changed after rejected update; diff (-got +want)\n%s", diff)
	}

	if _, err := New(64, 64, WithFront(vec3.T{})); !errors.Is(err, ErrDegenerateBasis) {
		t.Errorf("New with zero front: got err %v, want ErrDegenerateBasis", err)
	}
}

func TestInvalidParameters(t *testing.T) {
	if _, err := New(0, 10); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("New(0, 10): got err %v, want ErrInvalidResolution", err)
	}
	if _, err := New(10, -1); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("New(10, -1): got err %v, want ErrInvalidResolution", err)
	}
	if _, err := New(10, 10, WithFieldOfView(180)); !errors.Is(err, ErrInvalidProjection) {
		t.Errorf("180 degree field of view: got err %v, want ErrInvalidProjection", err)
	}
	if _, err := New(10, 10, WithClip(1, 0.5)); !errors.Is(err, ErrInvalidProjection) {
		t.Errorf("Inverted clip range: got err %v, want ErrInvalidProjection", err)
	}

	c := mustNew(t, 10, 10)
	if err := c.SetSize(-1, 5); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("SetSize(-1, 5): got err %v, want ErrInvalidResolution", err)
	}
	if err := c.SetClip(0, 10); !errors.Is(err, ErrInvalidProjection) {
		t.Errorf("SetClip(0, 10): got err %v, want ErrInvalidProjection", err)
	}
	if w, h := c.Resolution(); w != 10 || h != 10 {
		t.Errorf("Resolution changed to %dx%d after rejected SetSize", w, h)
	}
}

func TestSetSizeRebuildsChain(t *testing.T) {
	c := mustNew(t, 10, 10)
	if err := c.SetSize(200, 100); err != nil {
		t.Fatalf("Unexpected error from SetSize: %v", err)
	}
	if got := c.Aspect(); got != 2 {
		t.Errorf("Bad aspect; got %v, want 2", got)
	}

	r := c.GenerateRayAt(100, 50)
	if !vec3.ApproxEqual(r.Dir, vec3.Normalize(c.Front()), 1e-9) {
		t.Errorf("Center ray direction %v after resize, want %v", r.Dir, c.Front())
	}
}

func TestWorldToScreenProjectsTarget(t *testing.T) {
	c := mustNew(t, 640, 480)

	// A point straight ahead lands in the middle of the window.
	target := vec3.AddVV(c.Position(), vec3.MulVS(c.Front(), 25))
	got := mat44.MulMV(c.WorldToScreen(), vec4.Point(target)).Dehomogenize()
	if math.Abs(got[0]-320) > 1e-9 || math.Abs(got[1]-240) > 1e-9 {
		t.Errorf("Target projected to %v, want window center (320, 240)", got)
	}
	if !(got[2] > 0 && got[2] < 1) {
		t.Errorf("Target depth %v is outside (0, 1)", got[2])
	}

	vp := c.NDCToWindow()
	if vp.At(0, 0) != 320 || vp.At(1, 1) != 240 || vp.At(2, 3) != 0.5 {
		t.Errorf("Bad viewport matrix %v", vp)
	}
}
