package depletion

import (
	"fmt"
	"math"
	"slices"
)

// Methods understood by the built-in model
const (
	MethodTheis    = "theis"
	MethodHunt1999 = "hunt1999"
)

// AquiferParams are the per-point inputs of a depletion model
type AquiferParams struct {
	// SepDistance is the distance from the pumping well to the stream in metres
	SepDistance float64
	// Transmissivity in m²/day
	Transmissivity float64
	// Storativity is dimensionless
	Storativity float64
	// StreamLeakance in m/day; zero when the streambed is not characterised
	StreamLeakance float64
}

// Model is a stream depletion model loaded with one point's aquifer data.
// An empty method selects the model's default.
type Model interface {
	LoadAquiferData(p AquiferParams) ([]string, error)
	SDRatio(nDays int, method string) (float64, error)
	SDExtraction(pumping []float64, method string) ([]float64, error)
}

// Factory returns a fresh, unloaded model
type Factory func() Model

// NewTheis is the Factory for the built-in model
func NewTheis() Model {
	return &Theis{}
}

// Theis is the analytical stream depletion model for a fully penetrating
// stream (Glover/Theis erfc solution). When a streambed leakance is loaded the
// Hunt (1999) partially penetrating solution is also available and becomes
// the default.
type Theis struct {
	params  AquiferParams
	methods []string
}

// LoadAquiferData implements Model
func (m *Theis) LoadAquiferData(p AquiferParams) ([]string, error) {
	if !(p.SepDistance > 0) || !(p.Transmissivity > 0) || !(p.Storativity > 0) {
		return nil, fmt.Errorf("aquifer parameters must be positive: sep_distance=%g transmissivity=%g storativity=%g",
			p.SepDistance, p.Transmissivity, p.Storativity)
	}
	if p.StreamLeakance < 0 || math.IsNaN(p.StreamLeakance) {
		return nil, fmt.Errorf("invalid stream leakance %g", p.StreamLeakance)
	}
	m.params = p
	m.methods = []string{MethodTheis}
	if p.StreamLeakance > 0 {
		m.methods = []string{MethodHunt1999, MethodTheis}
	}
	return slices.Clone(m.methods), nil
}

// SDRatio implements Model: the fraction of a constant pumping rate drawn
// from the stream after nDays of continuous pumping
func (m *Theis) SDRatio(nDays int, method string) (float64, error) {
	f, err := m.ratioFunc(method)
	if err != nil {
		return 0, err
	}
	if nDays <= 0 {
		return 0, fmt.Errorf("n_days must be positive, got %d", nDays)
	}
	return f(float64(nDays)), nil
}

// SDExtraction implements Model. Each day's pumping is treated as a step
// starting that day and superposed; the result is the daily stream depletion
// in the pumping units.
func (m *Theis) SDExtraction(pumping []float64, method string) ([]float64, error) {
	f, err := m.ratioFunc(method)
	if err != nil {
		return nil, err
	}

	n := len(pumping)
	// response of one day of unit pumping, k[j] days after it started
	kernel := make([]float64, n)
	prev := 0.0
	for j := range kernel {
		cur := f(float64(j + 1))
		kernel[j] = cur - prev
		prev = cur
	}

	out := make([]float64, n)
	for i, q := range pumping {
		if q == 0 || math.IsNaN(q) {
			continue
		}
		for j := i; j < n; j++ {
			out[j] += q * kernel[j-i]
		}
	}
	return out, nil
}

func (m *Theis) ratioFunc(method string) (func(t float64) float64, error) {
	if len(m.methods) == 0 {
		return nil, fmt.Errorf("aquifer data not loaded")
	}
	if method == "" {
		method = m.methods[0]
	}
	if !slices.Contains(m.methods, method) {
		return nil, fmt.Errorf("method %q not available, have %v", method, m.methods)
	}

	p := m.params
	if method == MethodHunt1999 {
		return func(t float64) float64 { return hunt1999(p, t) }, nil
	}
	return func(t float64) float64 { return glover(p, t) }, nil
}

// glover is the depletion fraction after t days for a fully penetrating stream
func glover(p AquiferParams, t float64) float64 {
	if t <= 0 {
		return 0
	}
	return math.Erfc(math.Sqrt(p.Storativity * p.SepDistance * p.SepDistance / (4 * p.Transmissivity * t)))
}

// hunt1999 is the depletion fraction after t days with a streambed of finite
// leakance
func hunt1999(p AquiferParams, t float64) float64 {
	if t <= 0 {
		return 0
	}
	a := math.Sqrt(p.Storativity * p.SepDistance * p.SepDistance / (4 * p.Transmissivity * t))
	b := p.StreamLeakance * p.StreamLeakance * t / (4 * p.Storativity * p.Transmissivity)
	c := p.StreamLeakance * p.SepDistance / (2 * p.Transmissivity)
	f := math.Erfc(a) - expErfc(b+c, math.Sqrt(b)+a)
	return min(max(f, 0), 1)
}

// expErfc returns exp(x)·erfc(z) without overflowing for large z
func expErfc(x, z float64) float64 {
	if z < 5 {
		return math.Exp(x) * math.Erfc(z)
	}
	z2 := z * z
	series := 1 - 1/(2*z2) + 3/(4*z2*z2)
	return math.Exp(x-z2) / (z * math.SqrtPi) * series
}
