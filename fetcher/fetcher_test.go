package fetcher

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mezonai/herder/types"
)

type recordingRequester struct {
	mu    sync.Mutex
	calls []types.NodeID
}

func (r *recordingRequester) RequestItem(hash types.Hash, peer types.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, peer)
}

func (r *recordingRequester) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestFetchItemCachedReturnsImmediately(t *testing.T) {
	req := &recordingRequester{}
	f := New[string]("test", req, nil)

	var hash types.Hash
	hash[0] = 1
	f.RecvItem(hash, "value")

	v, ok := f.FetchItem(hash, true)
	assert.True(t, ok)
	assert.Equal(t, "value", v)
	assert.Equal(t, 0, req.count(), "a cache hit never emits network traffic")
}

func TestFetchItemMissRegistersRequest(t *testing.T) {
	req := &recordingRequester{}
	f := New[string]("test", req, nil)

	var hash types.Hash
	hash[0] = 2
	_, ok := f.FetchItem(hash, true)
	assert.False(t, ok)
	assert.Equal(t, 1, req.count())
}

func TestFetchItemWithoutAskNetworkEmitsNoTraffic(t *testing.T) {
	req := &recordingRequester{}
	f := New[string]("test", req, nil)

	var hash types.Hash
	hash[0] = 3
	_, ok := f.FetchItem(hash, false)
	assert.False(t, ok)
	assert.Equal(t, 0, req.count())
}

func TestRecvItemReportsWhetherSomeoneWasWaiting(t *testing.T) {
	req := &recordingRequester{}
	f := New[string]("test", req, nil)

	var unwanted types.Hash
	unwanted[0] = 4
	assert.False(t, f.RecvItem(unwanted, "v"), "nobody asked for this hash")

	var wanted types.Hash
	wanted[0] = 5
	f.FetchItem(wanted, true)
	assert.True(t, f.RecvItem(wanted, "v2"))
}

func TestDoesntHaveAsksNextCandidate(t *testing.T) {
	req := &recordingRequester{}
	f := New[string]("test", req, nil)

	var hash types.Hash
	hash[0] = 6
	peerA := types.NodeID{0xA}
	peerB := types.NodeID{0xB}

	f.FetchItem(hash, true)
	f.AddCandidate(hash, peerA)
	f.AddCandidate(hash, peerB)
	f.DoesntHave(hash, peerA)

	assert.Equal(t, 2, req.count(), "initial fetch plus one re-ask to the remaining candidate")
}

type backoffSpy struct {
	mu    sync.Mutex
	calls int
}

func (b *backoffSpy) Backoff(hash types.Hash, attempt int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
}

func TestDoesntHaveBacksOffWhenNoCandidatesRemain(t *testing.T) {
	req := &recordingRequester{}
	backoff := &backoffSpy{}
	f := New[string]("test", req, backoff)

	var hash types.Hash
	hash[0] = 7
	peerA := types.NodeID{0xA}

	f.FetchItem(hash, true)
	f.DoesntHave(hash, peerA)

	backoff.mu.Lock()
	defer backoff.mu.Unlock()
	assert.Equal(t, 1, backoff.calls)
}

func TestHas(t *testing.T) {
	req := &recordingRequester{}
	f := New[string]("test", req, nil)
	var hash types.Hash
	hash[0] = 8
	assert.False(t, f.Has(hash))
	f.RecvItem(hash, "x")
	assert.True(t, f.Has(hash))
}

func TestPairFlipRotatesGenerations(t *testing.T) {
	req := &recordingRequester{}
	p := NewPair[string]("test", req, nil)

	var hash types.Hash
	hash[0] = 9
	p.Active().RecvItem(hash, "v")
	assert.True(t, p.Active().Has(hash))
	assert.False(t, p.Retired().Has(hash))

	p.Flip()
	assert.False(t, p.Active().Has(hash), "the newly active generation starts out empty")
	assert.True(t, p.Retired().Has(hash), "the item survives one more flip in the retired generation")

	p.Flip()
	assert.False(t, p.Retired().Has(hash), "the generation retired by the second flip never held this item")
}
