package main

import (
	"fmt"
	"time"

	"github.com/unixpickle/rankcoord/collcomm"
	"github.com/unixpickle/rankcoord/collcomm/allreduce"
)

// RunInfo describes a specific group configuration.
type RunInfo struct {
	NumRanks int
	Size     int
}

// Run creates an in-process group, drops each rank into
// its own Goroutine, and measures the wall-clock time of
// one reduction.
func (r *RunInfo) Run(reducer allreduce.Allreducer) time.Duration {
	start := time.Now()
	collcomm.SpawnComms(r.NumRanks, func(c *collcomm.Comms) {
		vec := make([]float64, r.Size)
		if _, err := reducer.Allreduce(c, vec, collcomm.Sum); err != nil {
			panic(err)
		}
	})
	return time.Since(start)
}

func main() {
	const repeats = 3

	reducers := []allreduce.Allreducer{
		allreduce.NaiveAllreducer{},
		allreduce.TreeAllreducer{},
		allreduce.StreamAllreducer{},
		allreduce.StreamAllreducer{Granularity: 4},
	}
	reducerNames := []string{"Naive", "Tree", "Stream", "Stream4"}
	rankCounts := []int{2, 4, 8, 16}
	vecSizes := []int{10, 10000, 1000000}

	// Markdown table header.
	fmt.Print("| Ranks | Size ")
	for _, reducerName := range reducerNames {
		fmt.Printf("| %s ", reducerName)
	}
	fmt.Println("|")
	for i := 0; i < 2+len(reducers); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, numRanks := range rankCounts {
		for _, size := range vecSizes {
			runInfo := RunInfo{NumRanks: numRanks, Size: size}
			fmt.Printf("| %d | %d ", numRanks, size)
			for _, reducer := range reducers {
				var total time.Duration
				for i := 0; i < repeats; i++ {
					total += runInfo.Run(reducer)
				}
				fmt.Printf("| %s ", total/time.Duration(repeats))
			}
			fmt.Println("|")
		}
	}
}
