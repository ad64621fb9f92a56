package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/rankcoord/collcomm"
)

// RunAllreducerTests runs a battery of tests on an
// Allreducer.
func RunAllreducerTests(t *testing.T, reducer Allreducer) {
	for _, numRanks := range []int{1, 2, 5, 15, 16, 17} {
		for _, size := range []int{0, 1, 1337} {
			testName := fmt.Sprintf("Ranks=%d,Size=%d", numRanks, size)
			t.Run(testName, func(t *testing.T) {
				vectors := make([][]float64, numRanks)
				sum := make([]float64, size)
				for i := range vectors {
					vectors[i] = make([]float64, size)
					for j := range vectors[i] {
						vectors[i][j] = rand.NormFloat64()
						sum[j] += vectors[i][j]
					}
				}

				results := make([][]float64, numRanks)
				errs := make([]error, numRanks)
				collcomm.SpawnComms(numRanks, func(c *collcomm.Comms) {
					results[c.Index()], errs[c.Index()] = reducer.Allreduce(c, vectors[c.Index()],
						collcomm.Sum)
				})

				for i, err := range errs {
					if err != nil {
						t.Fatalf("rank %d: %s", i, err)
					}
				}
				verifyReductionResults(t, results, sum)
			})
		}
	}
}

func verifyReductionResults(t *testing.T, results [][]float64, expected []float64) {
	for i, res := range results[1:] {
		if len(res) != len(expected) {
			t.Errorf("result %d has length %d but expected %d", i+1, len(res), len(expected))
			continue
		}
		for j, actual := range res {
			if actual != results[0][j] {
				t.Errorf("result %d is not identical to result 0", i+1)
				break
			}
		}
	}

	if len(results[0]) != len(expected) {
		t.Fatalf("result 0 has length %d but expected %d", len(results[0]), len(expected))
	}
	for i, x := range expected {
		if math.Abs(x-results[0][i]) > 1e-5 {
			t.Errorf("sum is incorrect (expected %f but got %f at component %d)",
				x, results[0][i], i)
			break
		}
	}
}
