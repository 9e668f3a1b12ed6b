package seed

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vaxtrax/internal/auth"
	"vaxtrax/internal/core"
	"vaxtrax/pkg/domain"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDemoProviderShape(t *testing.T) {
	batches := NewDemoProvider(NewRand(7)).Batches(now)
	if len(batches) != 5 {
		t.Fatalf("expected 5 batches, got %d", len(batches))
	}
	for i, b := range batches {
		if want := "VAX-2023-00" + string(rune('1'+i)); b.ID != want {
			t.Fatalf("batch %d: expected id %s, got %s", i, want, b.ID)
		}
		if b.Stage != domain.Stages()[i] {
			t.Fatalf("%s: expected stage %s, got %s", b.ID, domain.Stages()[i], b.Stage)
		}
		if b.Temperature < -19 || b.Temperature > -12 {
			t.Fatalf("%s: temperature %v out of range", b.ID, b.Temperature)
		}
		if core.RoundReading(b.Temperature) != b.Temperature {
			t.Fatalf("%s: temperature %v not rounded", b.ID, b.Temperature)
		}
		if len(b.History) != i+1 {
			t.Fatalf("%s: expected %d entries, got %d", b.ID, i+1, len(b.History))
		}
		last := b.History[len(b.History)-1]
		if !last.Timestamp.Equal(now) || last.Stage != b.Stage {
			t.Fatalf("%s: unexpected last entry %+v", b.ID, last)
		}
		for j := 1; j < len(b.History); j++ {
			if gap := b.History[j].Timestamp.Sub(b.History[j-1].Timestamp); gap != 48*time.Hour {
				t.Fatalf("%s: expected two-day spacing, got %s", b.ID, gap)
			}
		}
		for _, e := range b.History {
			if e.Status != domain.ClassifyWithin(e.Temperature, domain.DefaultTempLimits) {
				t.Fatalf("%s: entry status %s does not match reading %v", b.ID, e.Status, e.Temperature)
			}
		}
	}
}

func TestDemoProviderDeterministic(t *testing.T) {
	a := NewDemoProvider(NewRand(42)).Batches(now)
	b := NewDemoProvider(NewRand(42)).Batches(now)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed must produce the same batches")
	}
}

func TestBootstrapImportsDemoData(t *testing.T) {
	svc := core.NewInMemoryService(nil, core.WithClock(core.ClockFunc(func() time.Time { return now })))
	n, err := svc.Bootstrap(context.Background(), NewDemoProvider(NewRand(1)))
	if err != nil || n != 5 {
		t.Fatalf("bootstrap: %d %v", n, err)
	}
	list, _ := svc.List(context.Background())
	for _, b := range list {
		if b.Status != domain.ClassifyWithin(b.Temperature, b.TempLimits) {
			t.Fatalf("%s: status %s not classified", b.ID, b.Status)
		}
	}
	again, err := svc.Bootstrap(context.Background(), NewDemoProvider(NewRand(2)))
	if err != nil || again != 0 {
		t.Fatalf("second bootstrap must skip existing ids: %d %v", again, err)
	}
}

func TestSamplerStaysWithinLimits(t *testing.T) {
	s := NewSampler(NewRand(3))
	limits := domain.TempLimits{Min: -19.96, Max: -19.91}
	for i := 0; i < 200; i++ {
		v := s.Sample(limits)
		if v < limits.Min || v > limits.Max {
			t.Fatalf("sample %v outside %+v", v, limits)
		}
	}
	v := s.Sample(domain.DefaultTempLimits)
	if domain.ClassifyWithin(v, domain.DefaultTempLimits) != domain.StatusSafe {
		t.Fatalf("sample %v must classify Safe", v)
	}
}

func TestDriftIsSmall(t *testing.T) {
	d := Drift(NewRand(9))
	for i := 0; i < 100; i++ {
		if v := d(domain.Batch{}); v < -0.2 || v > 0.2 {
			t.Fatalf("drift %v too large", v)
		}
	}
}

// Run with -race: the sampler, drift and provider share one generator.
func TestSharedRandConcurrentUse(t *testing.T) {
	rng := NewRand(7)
	sampler := NewSampler(rng)
	drift := Drift(rng)
	provider := NewDemoProvider(rng)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch i % 3 {
				case 0:
					if v := sampler.Sample(domain.DefaultTempLimits); v < -20 || v > -15 {
						t.Errorf("sample %v outside default limits", v)
					}
				case 1:
					if v := drift(domain.Batch{}); v < -0.2 || v > 0.2 {
						t.Errorf("drift %v too large", v)
					}
				default:
					if got := len(provider.Batches(now)); got != 5 {
						t.Errorf("expected 5 batches, got %d", got)
					}
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestDemoUsersBuildDirectory(t *testing.T) {
	dir, err := auth.NewDirectory(bcrypt.MinCost, DemoUsers()...)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	for _, c := range DemoUsers() {
		u, err := dir.Authenticate(c.Email, c.Password)
		if err != nil || u.Role != c.Role {
			t.Fatalf("%s: %v", c.Email, err)
		}
	}
}
