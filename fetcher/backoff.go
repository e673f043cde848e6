package fetcher

import (
	"time"

	"github.com/mezonai/herder/types"
)

// ExponentialBackoff is the default PeerBackoff: once every known candidate
// has denied possession of a hash, re-ask the overlay at large (peer is the
// zero value, meaning "whoever you prefer") after an exponentially growing
// delay capped at 2^10 * Base.
type ExponentialBackoff struct {
	Base      time.Duration
	Requester Requester
}

func (b *ExponentialBackoff) Backoff(hash types.Hash, attempt int) {
	shift := attempt
	if shift > 10 {
		shift = 10
	}
	d := b.Base * time.Duration(uint64(1)<<uint(shift))
	time.AfterFunc(d, func() {
		b.Requester.RequestItem(hash, types.NodeID{})
	})
}
