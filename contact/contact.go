package contact

import (
	"aotrace/vmath/vec3"
)

// Contact describes where a ray struck a surface.
type Contact struct {
	// Distance along the ray to the hit.
	T float64

	// Incident direction, the negated ray direction.
	I vec3.T

	// Hit point.
	P vec3.T

	// Origin of the ray that produced the contact.
	O vec3.T

	// Outward unit surface normal at P.
	N vec3.T
}

// FacesOrigin reports whether the surface normal points back toward the ray
// origin.
func (c Contact) FacesOrigin() bool {
	return vec3.IProd(c.N, c.I) > 0
}
