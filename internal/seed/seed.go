// Package seed provides the demo data a fresh deployment starts with: five
// batches spread across the pipeline, a reading sampler for registrations
// without a probe, and the three demo accounts.
package seed

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"vaxtrax/internal/auth"
	"vaxtrax/internal/core"
	"vaxtrax/pkg/domain"
)

const (
	demoBatchCount = 5
	demoYear       = 2023
	demoTempMin    = -19.0
	demoTempMax    = -12.0
	scanJitter     = 0.5
	stageSpacing   = 48 * time.Hour
	driftSpan      = 0.3
)

var demoLocations = []string{
	"51.5074° N, 0.1278° W",
	"40.7128° N, 74.0060° W",
	"34.0522° N, 118.2437° W",
	"41.8781° N, 87.6298° W",
	"19.4326° N, 99.1332° W",
}

// Rand is a seeded generator safe for concurrent use. The demo provider, the
// sampler and the drift function of one deployment share a single Rand.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *Rand {
	return &Rand{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// IntN returns a value in [0, n).
func (r *Rand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func (r *Rand) uniform(lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// DemoProvider implements core.SeedDataProvider.
type DemoProvider struct {
	rng *Rand
}

var _ core.SeedDataProvider = (*DemoProvider)(nil)

// NewDemoProvider draws readings from rng.
func NewDemoProvider(rng *Rand) *DemoProvider {
	return &DemoProvider{rng: rng}
}

// Batches returns VAX-2023-001..005. Batch i sits at stage i%5 with one
// history entry per stage reached, two days apart, the last one at now.
func (p *DemoProvider) Batches(now time.Time) []domain.Batch {
	stages := domain.Stages()
	out := make([]domain.Batch, 0, demoBatchCount)
	for i := 0; i < demoBatchCount; i++ {
		id := fmt.Sprintf("VAX-%d-%03d", demoYear, i+1)
		temperature := core.RoundReading(p.rng.uniform(demoTempMin, demoTempMax))
		current := i % len(stages)
		b := domain.Batch{
			ID:          id,
			Temperature: temperature,
			Location:    demoLocations[i%len(demoLocations)],
			Stage:       stages[current],
			LastUpdated: now,
			TempLimits:  domain.DefaultTempLimits,
		}
		for idx := 0; idx <= current; idx++ {
			reading := core.RoundReading(temperature + p.rng.uniform(-scanJitter, scanJitter))
			action := domain.ActionLabelRegister
			if idx > 0 {
				action = domain.ProceedLabel(stages[idx-1], stages[idx])
			}
			b.History = append(b.History, domain.HistoryEntry{
				BatchNo:     id,
				Temperature: reading,
				Status:      domain.ClassifyWithin(reading, b.TempLimits),
				Location:    demoLocations[idx%len(demoLocations)],
				Stage:       stages[idx],
				Timestamp:   now.Add(-time.Duration(current-idx) * stageSpacing),
				Action:      action,
				ScannedBy:   fmt.Sprintf("Operator %d", 1+p.rng.IntN(10)),
				Device:      fmt.Sprintf("NFC Scanner #%d", 1+p.rng.IntN(30)),
			})
		}
		out = append(out, b)
	}
	return out
}

// Sampler implements core.TemperatureSampler with uniform readings inside
// the limits, rounded to 0.1 °C.
type Sampler struct {
	rng *Rand
}

var _ core.TemperatureSampler = (*Sampler)(nil)

// NewSampler draws from rng.
func NewSampler(rng *Rand) *Sampler {
	return &Sampler{rng: rng}
}

// Sample returns a reading within limits.
func (s *Sampler) Sample(limits domain.TempLimits) float64 {
	v := core.RoundReading(s.rng.uniform(limits.Min, limits.Max))
	return min(max(v, limits.Min), limits.Max)
}

// Drift returns a delta function for core.Service.Drift that nudges each
// reading by up to ±0.15 °C.
func Drift(rng *Rand) func(domain.Batch) float64 {
	return func(domain.Batch) float64 {
		return core.RoundReading((rng.Float64() - 0.5) * driftSpan)
	}
}

// DemoUsers returns the demo accounts.
func DemoUsers() []auth.Credential {
	return []auth.Credential{
		{Email: "admin@vaxtrax.com", Name: "Admin User", Role: auth.RoleAdmin, Password: "admin123"},
		{Email: "user@vaxtrax.com", Name: "Regular User", Role: auth.RoleUser, Password: "user123"},
		{Email: "company@vaxtrax.com", Name: "Company User", Role: auth.RoleCompany, Password: "company123"},
	}
}
