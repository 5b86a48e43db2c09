// Package camera implements a perspective camera that maps window pixels to
// world-space rays through an OpenGL-style matrix chain.
package camera

import (
	"errors"
	"fmt"
	"math"

	"aotrace/ray"
	"aotrace/vmath/mat44"
	"aotrace/vmath/vec3"
	"aotrace/vmath/vec4"

	"github.com/golang/glog"
	"golang.org/x/xerrors"
)

// Projection defaults.  The field of view is vertical, in degrees.
const (
	DefaultFieldOfView = 45.0
	DefaultNear        = 0.01
	DefaultFar         = 10000.0
)

var (
	ErrInvalidResolution = errors.New("resolution must be positive")
	ErrInvalidProjection = errors.New("invalid projection parameters")

	// ErrDegenerateBasis means front is zero or up is parallel to it, so no
	// view basis exists.
	ErrDegenerateBasis = errors.New("camera basis is degenerate")
)

// UpdateError reports a matrix chain that could not be rebuilt.  The camera
// that returned it still holds its previous, consistent state.
type UpdateError struct {
	Stage string

	inner error
	frame xerrors.Frame
}

func newUpdateError(stage string, inner error) *UpdateError {
	return &UpdateError{
		Stage: stage,
		inner: inner,
		frame: xerrors.Caller(1),
	}
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("while computing %s: %v", e.Stage, e.inner)
}

func (e *UpdateError) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *UpdateError) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	p.Print(fmt.Sprintf("while computing %s", e.Stage))
	if p.Detail() {
		e.frame.Format(p)
	}
	return e.inner
}

func (e *UpdateError) Unwrap() error {
	return e.inner
}

// Camera holds the view parameters and the transforms derived from them.
//
// A Camera must not be mutated while rays are being generated from it.
type Camera struct {
	width, height int
	aspect        float64

	// Vertical field of view, in degrees.
	angle     float64
	near, far float64

	position vec3.T
	front    vec3.T
	up       vec3.T

	worldToCamera mat44.T
	cameraToWorld mat44.T
	perspective   mat44.T
	worldToNDC    mat44.T
	ndcToWindow   mat44.T
	screenToWorld mat44.T
	worldToScreen mat44.T
}

type Opt func(*Camera)

func WithPosition(p vec3.T) Opt {
	return func(c *Camera) {
		c.position = p
	}
}

func WithFront(f vec3.T) Opt {
	return func(c *Camera) {
		c.front = f
	}
}

func WithUp(u vec3.T) Opt {
	return func(c *Camera) {
		c.up = u
	}
}

// WithFieldOfView sets the vertical field of view in degrees.
func WithFieldOfView(angle float64) Opt {
	return func(c *Camera) {
		c.angle = angle
	}
}

func WithClip(near, far float64) Opt {
	return func(c *Camera) {
		c.near = near
		c.far = far
	}
}

// New creates a camera rendering a width x height image.
func New(width, height int, opts ...Opt) (*Camera, error) {
	if err := checkResolution(width, height); err != nil {
		return nil, err
	}

	c := &Camera{
		width:    width,
		height:   height,
		aspect:   float64(width) / float64(height),
		angle:    DefaultFieldOfView,
		near:     DefaultNear,
		far:      DefaultFar,
		position: vec3.T{0, -10, 0.5},
		front:    vec3.T{0, 1, 0},
		up:       vec3.T{0, 0, -1},
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := checkProjection(c.angle, c.near, c.far); err != nil {
		return nil, err
	}

	if err := c.update(); err != nil {
		return nil, fmt.Errorf("while building initial camera transform: %w", err)
	}

	return c, nil
}

func checkResolution(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidResolution, width, height)
	}
	return nil
}

func checkProjection(angle, near, far float64) error {
	if !(angle > 0 && angle < 180) {
		return fmt.Errorf("%w: field of view %v is not in (0, 180)", ErrInvalidProjection, angle)
	}
	if !(near > 0 && near < far) || math.IsInf(far, 0) {
		return fmt.Errorf("%w: clip range [%v, %v] must satisfy 0 < near < far < inf", ErrInvalidProjection, near, far)
	}
	return nil
}

// GenerateRay returns the world-space ray through the center of pixel (x, y).
func (c *Camera) GenerateRay(x, y int) ray.Ray {
	return c.GenerateRayAt(float64(x)+0.5, float64(y)+0.5)
}

// GenerateRayAt returns the world-space ray through the window coordinate
// (fx, fy).  The ray starts at the camera position; TMin and TMax are the
// distances to the near and far clip planes along the ray.
func (c *Camera) GenerateRayAt(fx, fy float64) ray.Ray {
	nearPoint := mat44.MulMV(c.screenToWorld, vec4.T{fx, fy, 0, 1}).Dehomogenize()
	farPoint := mat44.MulMV(c.screenToWorld, vec4.T{fx, fy, 1, 1}).Dehomogenize()

	dir := vec3.SubVV(nearPoint, c.position)
	tMin := dir.Norm()
	tMax := vec3.SubVV(farPoint, c.position).Norm()

	return ray.New(c.position, dir, tMin, tMax)
}

// apply runs change against a copy of the camera and commits it only if the
// matrix chain can be rebuilt.
func (c *Camera) apply(change func(*Camera)) error {
	next := *c
	change(&next)
	if err := next.update(); err != nil {
		glog.Warningf("camera: keeping previous transform: %v", err)
		return err
	}
	*c = next
	return nil
}

func (c *Camera) SetSize(width, height int) error {
	if err := checkResolution(width, height); err != nil {
		return err
	}
	return c.apply(func(n *Camera) {
		n.width = width
		n.height = height
		n.aspect = float64(width) / float64(height)
	})
}

func (c *Camera) SetPosition(p vec3.T) error {
	return c.apply(func(n *Camera) {
		n.position = p
	})
}

func (c *Camera) SetFront(f vec3.T) error {
	return c.apply(func(n *Camera) {
		n.front = f
	})
}

func (c *Camera) SetUp(u vec3.T) error {
	return c.apply(func(n *Camera) {
		n.up = u
	})
}

// SetFieldOfView sets the vertical field of view in degrees.
func (c *Camera) SetFieldOfView(angle float64) error {
	if err := checkProjection(angle, c.near, c.far); err != nil {
		return err
	}
	return c.apply(func(n *Camera) {
		n.angle = angle
	})
}

func (c *Camera) SetClip(near, far float64) error {
	if err := checkProjection(c.angle, near, far); err != nil {
		return err
	}
	return c.apply(func(n *Camera) {
		n.near = near
		n.far = far
	})
}

func (c *Camera) update() error {
	center := vec3.AddVV(c.position, c.front)

	worldToCamera, cameraToWorld, err := lookAt(c.position, center, c.up)
	if err != nil {
		return newUpdateError("world_to_camera", err)
	}

	perspective := perspective(c.angle, c.aspect, c.near, c.far)
	worldToNDC := mat44.MulMM(perspective, worldToCamera)
	ndcToWindow := viewport(c.width, c.height)

	windowToNDC, err := mat44.Inverse(ndcToWindow)
	if err != nil {
		return newUpdateError("inverse of ndc_to_window", err)
	}
	ndcToWorld, err := mat44.Inverse(worldToNDC)
	if err != nil {
		return newUpdateError("inverse of world_to_ndc", err)
	}

	c.worldToCamera = worldToCamera
	c.cameraToWorld = cameraToWorld
	c.perspective = perspective
	c.worldToNDC = worldToNDC
	c.ndcToWindow = ndcToWindow
	c.screenToWorld = mat44.MulMM(ndcToWorld, windowToNDC)
	c.worldToScreen = mat44.MulMM(ndcToWindow, worldToNDC)
	return nil
}

// frustum is a port of glFrustum.
func frustum(l, r, b, t, n, f float64) mat44.T {
	inv1 := 1.0 / (r - l)
	inv2 := 1.0 / (t - b)
	inv3 := 1.0 / (f - n)
	return mat44.T{
		(2 * n) * inv1, 0, (r + l) * inv1, 0,
		0, (2 * n) * inv2, (t + b) * inv2, 0,
		0, 0, -(f + n) * inv3, (-2 * f * n) * inv3,
		0, 0, -1, 0,
	}
}

func perspective(angle, aspect, near, far float64) mat44.T {
	top := math.Tan(angle*math.Pi/180*0.5) * near
	right := top * aspect
	return frustum(-right, right, -top, top, near, far)
}

// viewport maps NDC onto [0,width] x [0,height] x [0,1].
func viewport(width, height int) mat44.T {
	ws := float64(width) * 0.5
	hs := float64(height) * 0.5
	return mat44.T{
		ws, 0, 0, ws,
		0, hs, 0, hs,
		0, 0, 0.5, 0.5,
		0, 0, 0, 1,
	}
}

// lookAt returns the world-to-camera transform for an eye at eye looking at
// center, and its inverse.
func lookAt(eye, center, up vec3.T) (mat44.T, mat44.T, error) {
	back := vec3.SubVV(eye, center)
	if back.Norm() == 0 || !back.IsFinite() {
		return mat44.T{}, mat44.T{}, fmt.Errorf("%w: front is zero or non-finite", ErrDegenerateBasis)
	}
	z := vec3.Normalize(back)

	side := vec3.CProd(up, z)
	if side.Norm() <= 1e-12*up.Norm() || !side.IsFinite() {
		return mat44.T{}, mat44.T{}, fmt.Errorf("%w: up %v is parallel to front", ErrDegenerateBasis, up)
	}
	x := vec3.Normalize(side)
	y := vec3.CProd(z, x)
	tr := vec3.Neg(eye)

	worldToCamera := mat44.T{
		x[0], x[1], x[2], vec3.IProd(x, tr),
		y[0], y[1], y[2], vec3.IProd(y, tr),
		z[0], z[1], z[2], vec3.IProd(z, tr),
		0, 0, 0, 1,
	}
	cameraToWorld := mat44.T{
		x[0], y[0], z[0], eye[0],
		x[1], y[1], z[1], eye[1],
		x[2], y[2], z[2], eye[2],
		0, 0, 0, 1,
	}
	return worldToCamera, cameraToWorld, nil
}

func (c *Camera) Resolution() (int, int) {
	return c.width, c.height
}

func (c *Camera) Aspect() float64 {
	return c.aspect
}

// FieldOfView returns the vertical field of view in degrees.
func (c *Camera) FieldOfView() float64 {
	return c.angle
}

func (c *Camera) Near() float64 {
	return c.near
}

func (c *Camera) Far() float64 {
	return c.far
}

func (c *Camera) Position() vec3.T {
	return c.position
}

func (c *Camera) Front() vec3.T {
	return c.front
}

func (c *Camera) Up() vec3.T {
	return c.up
}

func (c *Camera) WorldToCamera() mat44.T {
	return c.worldToCamera
}

func (c *Camera) CameraToWorld() mat44.T {
	return c.cameraToWorld
}

func (c *Camera) Perspective() mat44.T {
	return c.perspective
}

func (c *Camera) WorldToNDC() mat44.T {
	return c.worldToNDC
}

func (c *Camera) NDCToWindow() mat44.T {
	return c.ndcToWindow
}

func (c *Camera) ScreenToWorld() mat44.T {
	return c.screenToWorld
}

func (c *Camera) WorldToScreen() mat44.T {
	return c.worldToScreen
}
