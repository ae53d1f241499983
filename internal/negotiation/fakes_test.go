package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"peercall/internal/domain"
)

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) ID() string      { return "stream-1" }
func (s *fakeStream) Kinds() []string { return []string{"audio", "video"} }
func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMedia struct {
	err     error
	streams []*fakeStream
}

func (m *fakeMedia) Acquire(ctx context.Context, c domain.MediaConstraints) (domain.Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{}
	m.streams = append(m.streams, s)
	return s, nil
}

// fakeConn completes gathering as soon as a local description is set,
// unless holdGathering is set.
type fakeConn struct {
	mu sync.Mutex

	holdGathering bool
	offerErr      error
	remoteErr     error

	stream     domain.Stream
	local      *domain.Description
	remote     *domain.Description
	gathered   chan struct{}
	gatherOnce sync.Once
	closed     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{gathered: make(chan struct{})}
}

func (c *fakeConn) AddStream(s domain.Stream) error {
	c.stream = s
	return nil
}

func (c *fakeConn) CreateOffer() (domain.Description, error) {
	if c.offerErr != nil {
		return domain.Description{}, c.offerErr
	}
	return domain.Description{Type: domain.DescriptionOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer() (domain.Description, error) {
	if c.remote == nil {
		return domain.Description{}, errors.New("no remote offer")
	}
	return domain.Description{Type: domain.DescriptionAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(d domain.Description) error {
	c.mu.Lock()
	c.local = &d
	c.mu.Unlock()
	if !c.holdGathering {
		c.finishGathering()
	}
	return nil
}

func (c *fakeConn) SetRemoteDescription(d domain.Description) error {
	if c.remoteErr != nil {
		return c.remoteErr
	}
	c.remote = &d
	return nil
}

// LocalDescription reports the candidate line only after gathering.
func (c *fakeConn) LocalDescription() (domain.Description, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return domain.Description{}, false
	}
	d := *c.local
	select {
	case <-c.gathered:
		d.SDP += "\r\na=candidate:1 1 udp 1 10.0.0.1 5000 typ host"
	default:
	}
	return d, true
}

func (c *fakeConn) GatheringComplete() <-chan struct{} { return c.gathered }

func (c *fakeConn) finishGathering() {
	c.gatherOnce.Do(func() { close(c.gathered) })
}

func (c *fakeConn) OnICEConnectionStateChange(fn func(state string)) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeFactory hands out the queued connections in order, then fresh ones.
type fakeFactory struct {
	err     error
	queue   []*fakeConn
	created []*fakeConn
	servers []domain.ICEServer
}

func (f *fakeFactory) NewConnection(servers []domain.ICEServer) (domain.Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.servers = servers
	var c *fakeConn
	if len(f.queue) > 0 {
		c, f.queue = f.queue[0], f.queue[1:]
	} else {
		c = newFakeConn()
	}
	f.created = append(f.created, c)
	return c, nil
}

func mustEncode(t testing.TB, d domain.Description) string {
	t.Helper()
	blob, err := EncodeDescription(d)
	if err != nil {
		t.Fatalf("EncodeDescription: %v", err)
	}
	return blob
}
