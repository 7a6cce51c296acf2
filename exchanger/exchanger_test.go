package exchanger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decentralized-hse/litetorrent/merkle"
	"github.com/decentralized-hse/litetorrent/protocol"
	"github.com/decentralized-hse/litetorrent/storage"
	"github.com/decentralized-hse/litetorrent/transport"
)

type fakePeer struct {
	ctx *transport.SessionContext

	mu      sync.Mutex
	closed  bool
	recvCh  chan transport.Result
	sent    []transport.Message
	sendErr error
}

func newFakePeer(ctx *transport.SessionContext) *fakePeer {
	return &fakePeer{ctx: ctx, recvCh: make(chan transport.Result)}
}

func (p *fakePeer) Context() *transport.SessionContext { return p.ctx }

func (p *fakePeer) Send(_ context.Context, msg transport.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePeer) Receive(_ context.Context) <-chan transport.Result {
	return p.recvCh
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.recvCh)
	return nil
}

func (p *fakePeer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeConnector struct {
	mu    sync.Mutex
	calls []transport.Host
	dial  func(ctx context.Context, host transport.Host) (transport.Peer, error)
}

func (c *fakeConnector) Connect(ctx context.Context, _ *storage.SharedFile, host transport.Host) (transport.Peer, error) {
	c.mu.Lock()
	c.calls = append(c.calls, host)
	c.mu.Unlock()
	return c.dial(ctx, host)
}

func (c *fakeConnector) callList() []transport.Host {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Host, len(c.calls))
	copy(out, c.calls)
	return out
}

type noopServer struct{}

func (noopServer) Accept(ctx context.Context, _ transport.PeerID, _ *merkle.Hash) (transport.Peer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestExchanger(t *testing.T, connector transport.Connector) *Exchanger {
	t.Helper()
	repo, err := storage.NewHashTreeRepository(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewHashTreeRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	store := storage.NewMemPieceStore()
	resolver := protocol.NewDefaultResolver(store)
	return New(noopServer{}, connector, resolver, repo)
}

func testSharedFile(n int) *storage.SharedFile {
	leaves := make([]merkle.Hash, n)
	for i := range leaves {
		leaves[i] = merkle.Sum([]byte{byte(i), 0xEE})
	}
	return storage.NewSharedFile(merkle.Build(leaves))
}

// TestHostOrdering covers P5: when every host dial-times-out, each host is
// attempted exactly once, in list order.
func TestHostOrdering(t *testing.T) {
	hosts := []transport.Host{"h1", "h2", "h3"}
	connector := &fakeConnector{
		dial: func(context.Context, transport.Host) (transport.Peer, error) {
			return nil, transport.ErrDialTimeout
		},
	}
	e := newTestExchanger(t, connector)
	sf := testSharedFile(1)

	e.tryDownload(context.Background(), hosts, sf)

	got := connector.callList()
	if len(got) != len(hosts) {
		t.Fatalf("dial attempts = %v, want exactly %v", got, hosts)
	}
	for i, h := range hosts {
		if got[i] != h {
			t.Fatalf("dial order[%d] = %q, want %q", i, got[i], h)
		}
	}
	if e.GetDownloadingFile() != nil {
		t.Fatalf("downloadingFileHash not cleared after tryDownload returned")
	}
}

// TestDialFallback covers end-to-end scenario 6: h1 times out, h2 connects
// and serves nothing before closing, h3 is never contacted.
func TestDialFallback(t *testing.T) {
	sf := testSharedFile(1)
	var h2Peer *fakePeer

	connector := &fakeConnector{
		dial: func(_ context.Context, host transport.Host) (transport.Peer, error) {
			switch host {
			case "h1":
				return nil, transport.ErrDialTimeout
			case "h2":
				h2Peer = newFakePeer(&transport.SessionContext{SharedFile: sf})
				h2Peer.Close() // peer closes immediately, serving 0 messages
				return h2Peer, nil
			default:
				t.Fatalf("host %q should never be contacted", host)
				return nil, nil
			}
		},
	}
	e := newTestExchanger(t, connector)

	e.tryDownload(context.Background(), []transport.Host{"h1", "h2", "h3"}, sf)

	got := connector.callList()
	if len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Fatalf("dial attempts = %v, want [h1 h2]", got)
	}
}

// TestRetargetIsLinearised covers P4 and end-to-end scenario 5: starting a
// second download retargets cleanly, leaving exactly the new hash installed
// and the old task's cleanup having run.
func TestRetargetIsLinearised(t *testing.T) {
	dialsA := make(chan struct{})
	var closeOnce sync.Once
	connector := &fakeConnector{
		dial: func(ctx context.Context, host transport.Host) (transport.Peer, error) {
			if host == "A-host" {
				closeOnce.Do(func() { close(dialsA) })
				<-ctx.Done() // hangs until the retarget cancels A's download context
				return nil, ctx.Err()
			}
			return newFakePeer(&transport.SessionContext{SharedFile: testSharedFile(1)}), nil
		},
	}
	e := newTestExchanger(t, connector)

	sfA := testSharedFile(1)
	sfB := testSharedFile(2)

	e.StartDownloading(context.Background(), []transport.Host{"A-host"}, sfA)
	<-dialsA // wait until A's download session has actually started dialing

	e.StartDownloading(context.Background(), []transport.Host{"B-host"}, sfB)

	got := e.GetDownloadingFile()
	if got == nil || !got.Equal(sfB.Hash) {
		t.Fatalf("GetDownloadingFile() = %v, want %v", got, sfB.Hash)
	}

	e.mu.Lock()
	done := e.downloadDone
	e.mu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("B's download task did not complete in time")
	}
}

// TestServeSurvivesReceiveErrors covers P6: a serve session survives any
// finite number of ReceiveError elements without terminating early.
func TestServeSurvivesReceiveErrors(t *testing.T) {
	sf := testSharedFile(1)
	peer := newFakePeer(&transport.SessionContext{SharedFile: sf})
	e := newTestExchanger(t, &fakeConnector{dial: func(context.Context, transport.Host) (transport.Peer, error) { return nil, nil }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		e.startReceiving(ctx, peer)
	}()

	for i := 0; i < 5; i++ {
		peer.recvCh <- transport.Result{Err: errors.New("transient receive error")}
	}
	peer.recvCh <- transport.Result{Message: protocol.PieceRequest{Index: 0}}

	peer.Close()

	select {
	case <-sessionDone:
	case <-time.After(time.Second):
		t.Fatalf("serve session did not terminate after peer closed")
	}
	if !peer.IsClosed() {
		t.Fatalf("peer should be closed")
	}
}
