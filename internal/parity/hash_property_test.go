package parity

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/chainshadow/internal/pipeline"
)

// TestHashPermutationInvariance verifies the parity hash ignores strike order.
// Property: Hash(strikes) == Hash(shuffle(strikes))
func TestHashPermutationInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("parity hash is invariant under strike permutation", prop.ForAll(
		func(strikes []int, seed int64) bool {
			a := pipeline.NewWorkItem("NIFTY", "weekly", nil)
			b := pipeline.NewWorkItem("NIFTY", "weekly", nil)
			for _, k := range strikes {
				a.Strikes = append(a.Strikes, float64(k)*0.5)
			}
			b.Strikes = append(b.Strikes, a.Strikes...)
			rng := rand.New(rand.NewSource(seed))
			rng.Shuffle(len(b.Strikes), func(i, j int) {
				b.Strikes[i], b.Strikes[j] = b.Strikes[j], b.Strikes[i]
			})

			ha, errA := Hash(Build(a), Observational{})
			hb, errB := Hash(Build(b), Observational{})
			return errA == nil && errB == nil && ha == hb
		},
		gen.SliceOf(gen.IntRange(1000, 60000)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestDiffReflexive verifies a snapshot never differs from its own fields.
func TestDiffReflexive(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("snapshot matches its own field mapping", prop.ForAll(
		func(strikes, instruments int) bool {
			s := Snapshot{ExpiryDate: "2026-01-08", StrikeCount: strikes, InstrumentCount: instruments}
			return len(Diff(s, s.Fields())) == 0
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
