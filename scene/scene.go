package scene

import (
	"fmt"

	"aotrace/contact"
	"aotrace/geometry"
	"aotrace/light"
	"aotrace/ray"
)

// Scene is an immutable collection of shapes and lights.  It is safe for
// concurrent queries.
type Scene struct {
	shapes []geometry.Shape
	lights []light.Light
}

func New(shapes []geometry.Shape, lights []light.Light) (*Scene, error) {
	for i, s := range shapes {
		if s == nil {
			return nil, fmt.Errorf("shape %d is nil", i)
		}
	}
	for i, l := range lights {
		if l == nil {
			return nil, fmt.Errorf("light %d is nil", i)
		}
	}

	return &Scene{
		shapes: append([]geometry.Shape(nil), shapes...),
		lights: append([]light.Light(nil), lights...),
	}, nil
}

func (s *Scene) Shapes() []geometry.Shape {
	return s.shapes
}

func (s *Scene) Lights() []light.Light {
	return s.lights
}

// Intersect finds the nearest shape along r.  Each hit tightens r.TMax, so
// later shapes only need to beat the best hit so far; on return r.TMax is the
// distance to the nearest hit.
func (s *Scene) Intersect(r *ray.Ray) (contact.Contact, geometry.Shape, bool) {
	var best contact.Contact
	var bestShape geometry.Shape

	for _, shape := range s.shapes {
		c, hit := shape.Intersect(*r)
		if !hit {
			continue
		}
		r.TMax = c.T
		best = c
		bestShape = shape
	}

	return best, bestShape, bestShape != nil
}
