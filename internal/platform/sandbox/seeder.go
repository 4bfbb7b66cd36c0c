// Package sandbox generates synthetic patients for demo and development
// stores. Output is reproducible for a given seed and always passes patient
// validation.
package sandbox

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pms/pms/internal/domain/patient"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated patients.
type SeedConfig struct {
	Count    int    `json:"count"`
	Seed     int64  `json:"seed"`
	IDPrefix string `json:"idPrefix"`
	// StartAt is the number of the first generated id.
	StartAt int `json:"startAt"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Count:    10,
		Seed:     1,
		IDPrefix: "P",
		StartAt:  1,
	}
}

// ---------------------------------------------------------------------------
// Reference pools
// ---------------------------------------------------------------------------

var (
	givenNames = []string{
		"Ananya", "Ravi", "Sneha", "Arjun", "Priya", "Rahul", "Meera",
		"Vikram", "Kavya", "Rohan", "Isha", "Aditya", "Neha", "Karan",
	}

	familyNames = []string{
		"Verma", "Mehta", "Kulkarni", "Singh", "Iyer", "Das", "Reddy",
		"Nair", "Joshi", "Chopra", "Bose", "Patel", "Rao", "Gupta",
	}

	cities = []string{
		"Guwahati", "Mumbai", "Pune", "Delhi", "Chennai", "Kolkata",
		"Hyderabad", "Bengaluru", "Jaipur", "Lucknow", "Ahmedabad",
	}

	genders = []patient.Gender{patient.GenderMale, patient.GenderFemale, patient.GenderOther}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces patients from a seeded source. It is not safe for
// concurrent use.
type DataGenerator struct {
	rng    *rand.Rand
	prefix string
	next   int
}

func NewDataGenerator(cfg SeedConfig) *DataGenerator {
	prefix := cfg.IDPrefix
	if prefix == "" {
		prefix = "P"
	}
	start := cfg.StartAt
	if start <= 0 {
		start = 1
	}
	return &DataGenerator{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		prefix: prefix,
		next:   start,
	}
}

func (g *DataGenerator) nextID() string {
	id := fmt.Sprintf("%s%03d", g.prefix, g.next)
	g.next++
	return id
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// between returns a value in [min, max) rounded to the given decimals.
func (g *DataGenerator) between(min, max float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	v := min + g.rng.Float64()*(max-min)
	return math.Round(v*scale) / scale
}

// GeneratePatient returns one valid patient with derived fields set.
// Heights fall in 1.45-2.00 m and weights in 40-120 kg, which spreads the
// records across every BMI verdict.
func (g *DataGenerator) GeneratePatient() patient.Patient {
	p := patient.Patient{
		ID:     g.nextID(),
		Name:   g.pick(givenNames) + " " + g.pick(familyNames),
		City:   g.pick(cities),
		Age:    1 + g.rng.Intn(95),
		Gender: genders[g.rng.Intn(len(genders))],
		Height: g.between(1.45, 2.0, 2),
		Weight: g.between(40, 120, 1),
	}
	p.Derive()
	return p
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Generate returns cfg.Count patients with sequential ids.
func Generate(cfg SeedConfig) []patient.Patient {
	if cfg.Count <= 0 {
		return nil
	}
	gen := NewDataGenerator(cfg)
	out := make([]patient.Patient, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		out = append(out, gen.GeneratePatient())
	}
	return out
}
