package collcomm

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectTCPGroup(t *testing.T, numRanks int) []*Endpoint {
	listeners := make([]net.Listener, numRanks)
	addrs := make([]string, numRanks)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	links := make([]*TCPLink, numRanks)
	errs := make([]error, numRanks)
	var wg sync.WaitGroup
	for i := range listeners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			links[i], errs[i] = ConnectTCP(ctx, i, listeners[i], addrs, logrus.NewEntry(log))
		}(i)
	}
	wg.Wait()

	endpoints := make([]*Endpoint, numRanks)
	for i, err := range errs {
		require.NoError(t, err, "rank %d", i)
		endpoints[i] = NewEndpoint(i, numRanks, links[i])
	}
	t.Cleanup(func() {
		for _, e := range endpoints {
			e.Close()
		}
	})
	return endpoints
}

func TestTCPLinkMesh(t *testing.T) {
	const numRanks = 4
	endpoints := connectTCPGroup(t, numRanks)

	// Every rank sends its index to every rank (itself
	// included) and expects to hear from all of them.
	var wg sync.WaitGroup
	for _, e := range endpoints {
		wg.Add(1)
		go func(e *Endpoint) {
			defer wg.Done()
			c := e.Comms(5)
			defer c.Release()
			for dst := 0; dst < numRanks; dst++ {
				assert.NoError(t, c.Send(dst, []float64{float64(e.Rank())}))
			}
			seen := map[int]bool{}
			for i := 0; i < numRanks; i++ {
				vec, src, err := c.Recv()
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, []float64{float64(src)}, vec)
				seen[src] = true
			}
			assert.Len(t, seen, numRanks)
		}(e)
	}
	wg.Wait()
}

func TestTCPLinkKinds(t *testing.T) {
	endpoints := connectTCPGroup(t, 2)
	require.NoError(t, endpoints[1].Comms(1).SendKind(0, 3, []float64{1.5}))
	msg, err := endpoints[0].Comms(1).RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), msg.Kind)
	assert.Equal(t, 1, msg.Source)
	assert.Equal(t, []float64{1.5}, msg.Payload)
}

func TestDialTCPBadRank(t *testing.T) {
	_, err := DialTCP(context.Background(), 3, []string{"127.0.0.1:0"}, nil)
	assert.Error(t, err)
}

func TestConnectTCPTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	// Rank 0 waits for a rank 1 that never shows up.
	_, err = ConnectTCP(ctx, 0, l, []string{l.Addr().String(), "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
