package mesh

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// RigidTransform is a rotation followed by a translation, stored as a 4x4
// homogeneous matrix. The zero value is not valid; start from
// IdentityTransform.
type RigidTransform struct {
	m mgl64.Mat4
}

// IdentityTransform returns the neutral transform.
func IdentityTransform() RigidTransform {
	return RigidTransform{m: mgl64.Ident4()}
}

// TranslationTransform creates a translation-only transform.
func TranslationTransform(d Point) RigidTransform {
	return RigidTransform{m: mgl64.Translate3D(d.X, d.Y, d.Z)}
}

// RotationTransform creates a rotation of angle radians around axis through
// the origin. The axis does not need to be normalized.
func RotationTransform(angle float64, axis Point) RigidTransform {
	a := axis.Normalize()
	return RigidTransform{m: mgl64.HomogRotate3D(angle, mgl64.Vec3{a.X, a.Y, a.Z})}
}

// NewRigidTransform builds a transform from a 3x3 rotation (row-major) and a
// translation. The rotation is trusted to be orthonormal.
func NewRigidTransform(rotation [3][3]float64, translation Point) RigidTransform {
	m := mgl64.Ident4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, rotation[r][c])
		}
	}
	m.Set(0, 3, translation.X)
	m.Set(1, 3, translation.Y)
	m.Set(2, 3, translation.Z)
	return RigidTransform{m: m}
}

// Matrix returns the underlying homogeneous matrix.
func (t RigidTransform) Matrix() mgl64.Mat4 { return t.m }

// Apply transforms a single point.
func (t RigidTransform) Apply(p Point) Point {
	v := t.m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return Point{X: v[0], Y: v[1], Z: v[2]}
}

// Then composes two transforms: applying the result is equivalent to
// applying t first, then next. The matrix is next * t.
func (t RigidTransform) Then(next RigidTransform) RigidTransform {
	return RigidTransform{m: next.m.Mul4(t.m)}
}

// Inverse returns the transform that undoes t.
func (t RigidTransform) Inverse() RigidTransform {
	rot := t.Rotation()
	var inv [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			inv[r][c] = rot[c][r]
		}
	}
	tr := t.Translation()
	back := Point{
		X: -(inv[0][0]*tr.X + inv[0][1]*tr.Y + inv[0][2]*tr.Z),
		Y: -(inv[1][0]*tr.X + inv[1][1]*tr.Y + inv[1][2]*tr.Z),
		Z: -(inv[2][0]*tr.X + inv[2][1]*tr.Y + inv[2][2]*tr.Z),
	}
	return NewRigidTransform(inv, back)
}

// Translation returns the translation column.
func (t RigidTransform) Translation() Point {
	return Point{X: t.m.At(0, 3), Y: t.m.At(1, 3), Z: t.m.At(2, 3)}
}

// Rotation returns the upper-left 3x3 block, row-major.
func (t RigidTransform) Rotation() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = t.m.At(i, j)
		}
	}
	return r
}

// RotationAngle returns the magnitude of the rotation in radians, derived
// from the trace of the rotation block.
func (t RigidTransform) RotationAngle() float64 {
	trace := t.m.At(0, 0) + t.m.At(1, 1) + t.m.At(2, 2)
	c := (trace - 1) / 2
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}

// ApproxEqual reports whether every matrix entry is within eps of other's.
func (t RigidTransform) ApproxEqual(other RigidTransform, eps float64) bool {
	return t.m.ApproxEqualThreshold(other.m, eps)
}

func (t RigidTransform) String() string {
	tr := t.Translation()
	return fmt.Sprintf("rotation=%.6f rad translation=(%.6f, %.6f, %.6f)",
		t.RotationAngle(), tr.X, tr.Y, tr.Z)
}

// MarshalJSON writes the matrix as four rows.
func (t RigidTransform) MarshalJSON() ([]byte, error) {
	var rows [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = t.m.At(r, c)
		}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON reads the row layout written by MarshalJSON.
func (t *RigidTransform) UnmarshalJSON(data []byte) error {
	var rows [4][4]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decoding transform: %w", err)
	}
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, rows[r][c])
		}
	}
	t.m = m
	return nil
}

// EstimateRigidTransform finds the rotation and translation minimizing the
// mean squared distance between transformed source points and their paired
// target points (Kabsch).
//
// The cross-covariance H = sum(s * t^T) of the centered pairs is decomposed
// as U S V^T and the rotation is V U^T. When that product is a reflection the
// last column of V is negated.
func EstimateRigidTransform(source, target []Point) (RigidTransform, error) {
	if len(source) != len(target) {
		return RigidTransform{}, invalidInputf("source has %d points, target has %d", len(source), len(target))
	}
	if len(source) < 3 {
		return RigidTransform{}, fmt.Errorf("%w: got %d pairs, need 3", ErrInsufficientCorrespondences, len(source))
	}

	cs := Centroid(source)
	ct := Centroid(target)

	h := mat.NewDense(3, 3, nil)
	for i := range source {
		s := source[i].Sub(cs)
		d := target[i].Sub(ct)
		sv := [3]float64{s.X, s.Y, s.Z}
		dv := [3]float64{d.X, d.Y, d.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+sv[r]*dv[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return RigidTransform{}, fmt.Errorf("factorizing cross-covariance: SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	var rot [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[i][j] = r.At(i, j)
		}
	}
	rc := Point{
		X: rot[0][0]*cs.X + rot[0][1]*cs.Y + rot[0][2]*cs.Z,
		Y: rot[1][0]*cs.X + rot[1][1]*cs.Y + rot[1][2]*cs.Z,
		Z: rot[2][0]*cs.X + rot[2][1]*cs.Y + rot[2][2]*cs.Z,
	}
	return NewRigidTransform(rot, ct.Sub(rc)), nil
}
