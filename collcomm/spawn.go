package collcomm

import "sync"

// SpawnComms creates Comms objects for n in-process ranks
// and calls f for each rank in its own Goroutine.
//
// It returns once every call to f has returned.
// All of the Comms share the tag 0.
func SpawnComms(n int, f func(c *Comms)) {
	endpoints := NewLocalEndpoints(n)
	var wg sync.WaitGroup
	for _, e := range endpoints {
		wg.Add(1)
		go func(e *Endpoint) {
			defer wg.Done()
			f(e.Comms(0))
		}(e)
	}
	wg.Wait()
	for _, e := range endpoints {
		e.Close()
	}
}
