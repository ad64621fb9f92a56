package collcomm

// A LocalLink connects ranks living in the same process.
// It is mostly useful for simulating a group of ranks in
// tests and benchmarks.
type LocalLink struct {
	rank    int
	inboxes []*queue
}

// NewLocalLinks creates a fully connected set of n links,
// one per rank.
func NewLocalLinks(n int) []*LocalLink {
	inboxes := make([]*queue, n)
	for i := range inboxes {
		inboxes[i] = newQueue()
	}
	links := make([]*LocalLink, n)
	for i := range links {
		links[i] = &LocalLink{rank: i, inboxes: inboxes}
	}
	return links
}

// Send copies the message into the destination's inbox.
func (l *LocalLink) Send(dst int, msg *Message) error {
	copied := *msg
	copied.Payload = append([]float64(nil), msg.Payload...)
	return l.inboxes[dst].Push(&copied)
}

// Recv receives the next message for the link's rank.
func (l *LocalLink) Recv() (*Message, error) {
	return l.inboxes[l.rank].Pop()
}

// Close closes the link's inbox.
//
// Sends to a closed rank fail with ErrClosed.
func (l *LocalLink) Close() error {
	l.inboxes[l.rank].Close(ErrClosed)
	return nil
}

// NewLocalEndpoints creates an Endpoint for each of n
// in-process ranks.
func NewLocalEndpoints(n int) []*Endpoint {
	links := NewLocalLinks(n)
	res := make([]*Endpoint, n)
	for i, link := range links {
		res[i] = NewEndpoint(i, n, link)
	}
	return res
}
