package collcomm

import (
	"context"
	"encoding/gob"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DialRetryInterval is how long a rank waits before
// re-dialing a peer that is not listening yet.
const DialRetryInterval = 50 * time.Millisecond

type tcpHello struct {
	Rank int
	Size int
}

type tcpPeer struct {
	conn net.Conn
	lock sync.Mutex
	enc  *gob.Encoder
	dec  *gob.Decoder
}

func newTCPPeer(conn net.Conn) *tcpPeer {
	return &tcpPeer{conn: conn, enc: gob.NewEncoder(conn), dec: gob.NewDecoder(conn)}
}

// A TCPLink connects one rank to every other rank with a
// dedicated TCP connection.
//
// Rank i dials every rank below it and accepts a
// connection from every rank above it.
type TCPLink struct {
	rank  int
	peers []*tcpPeer
	inbox *queue
	log   *logrus.Entry

	closeOnce sync.Once
	readers   sync.WaitGroup
}

// DialTCP listens on addrs[rank] and connects to every
// other address in addrs.
//
// It blocks until the whole mesh is connected or ctx is
// done.
func DialTCP(ctx context.Context, rank int, addrs []string, log *logrus.Entry) (*TCPLink, error) {
	if rank < 0 || rank >= len(addrs) {
		return nil, errors.Errorf("collcomm: rank %d out of range [0, %d)", rank, len(addrs))
	}
	listener, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	return ConnectTCP(ctx, rank, listener, addrs, log)
}

// ConnectTCP is like DialTCP, but it accepts connections
// on an existing listener.
//
// The listener is closed once the mesh is connected.
func ConnectTCP(ctx context.Context, rank int, listener net.Listener, addrs []string,
	log *logrus.Entry) (*TCPLink, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	defer listener.Close()
	size := len(addrs)
	l := &TCPLink{
		rank:  rank,
		peers: make([]*tcpPeer, size),
		inbox: newQueue(),
		log:   log.WithField("rank", rank),
	}

	var peerLock sync.Mutex
	addPeer := func(r int, p *tcpPeer) error {
		peerLock.Lock()
		defer peerLock.Unlock()
		if l.peers[r] != nil {
			return errors.Errorf("collcomm: duplicate connection from rank %d", r)
		}
		l.peers[r] = p
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// Unblock Accept() if the context ends early.
		select {
		case <-egCtx.Done():
			listener.Close()
		case <-stop:
		}
	}()

	eg.Go(func() error {
		for i := rank + 1; i < size; i++ {
			conn, err := listener.Accept()
			if err != nil {
				return errors.Wrap(err, "accept")
			}
			p := newTCPPeer(conn)
			var hello tcpHello
			if err := p.dec.Decode(&hello); err != nil {
				conn.Close()
				return errors.Wrap(err, "read hello")
			}
			if hello.Size != size || hello.Rank <= rank || hello.Rank >= size {
				conn.Close()
				return errors.Errorf("collcomm: unexpected hello %+v", hello)
			}
			if err := addPeer(hello.Rank, p); err != nil {
				conn.Close()
				return err
			}
			l.log.WithField("peer", hello.Rank).Debug("accepted peer")
		}
		return nil
	})
	for i := 0; i < rank; i++ {
		peerRank := i
		eg.Go(func() error {
			conn, err := dialRetry(egCtx, addrs[peerRank])
			if err != nil {
				return errors.Wrapf(err, "dial rank %d", peerRank)
			}
			p := newTCPPeer(conn)
			if err := p.enc.Encode(&tcpHello{Rank: rank, Size: size}); err != nil {
				conn.Close()
				return errors.Wrap(err, "send hello")
			}
			if err := addPeer(peerRank, p); err != nil {
				conn.Close()
				return err
			}
			l.log.WithField("peer", peerRank).Debug("dialed peer")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		for _, p := range l.peers {
			if p != nil {
				p.conn.Close()
			}
		}
		return nil, err
	}

	for i, p := range l.peers {
		if p != nil {
			l.readers.Add(1)
			go l.readLoop(i, p)
		}
	}
	l.log.WithField("size", size).Info("connected to group")
	return l, nil
}

func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(DialRetryInterval):
		}
	}
}

func (l *TCPLink) readLoop(peerRank int, p *tcpPeer) {
	defer l.readers.Done()
	for {
		var msg Message
		if err := p.dec.Decode(&msg); err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				l.log.WithField("peer", peerRank).Debug("peer disconnected")
			} else {
				l.log.WithError(err).WithField("peer", peerRank).Error("read failed")
				l.inbox.Close(errors.Wrapf(err, "read from rank %d", peerRank))
			}
			return
		}
		msg.Source = peerRank
		if err := l.inbox.Push(&msg); err != nil {
			return
		}
	}
}

// Send encodes the message onto the destination's
// connection.
// Messages to the local rank skip the network.
func (l *TCPLink) Send(dst int, msg *Message) error {
	if dst == l.rank {
		copied := *msg
		copied.Payload = append([]float64(nil), msg.Payload...)
		return l.inbox.Push(&copied)
	}
	p := l.peers[dst]
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.enc.Encode(msg)
}

// Recv receives the next message from any peer.
func (l *TCPLink) Recv() (*Message, error) {
	return l.inbox.Pop()
}

// Close closes every connection.
func (l *TCPLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		for _, p := range l.peers {
			if p != nil {
				if closeErr := p.conn.Close(); err == nil {
					err = closeErr
				}
			}
		}
		l.readers.Wait()
		l.inbox.Close(ErrClosed)
	})
	return err
}
