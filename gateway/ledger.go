// Package gateway implements Herder's two external seams: the ledger
// gateway, which supplies the last-closed-ledger header and account
// balances and accepts externalized values, and the overlay gateway,
// through which Herder broadcasts and requests content. Neither ledger
// application nor peer transport is this repository's concern; these
// types are deliberately thin.
package gateway

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
	"github.com/mezonai/herder/utils"
)

var (
	ledgerBucket   = []byte("ledger")
	balanceBucket  = []byte("balances")
	headerKey      = []byte("last_closed_header")
)

// LedgerGateway is Herder's view onto the ledger: where the chain
// currently stands, what it costs to submit a transaction right now, and
// the one mutation Herder is allowed to request — recording a value as
// externalized. It also satisfies txset.LedgerState so admission checks
// can run directly against it.
type LedgerGateway interface {
	txset.LedgerState
	LastClosedLedgerHeader() types.LedgerHeader
	TxFee() uint64
	ExternalizeValue(ts *txset.TxSet, closeTime uint64) (types.LedgerHeader, error)
	Close() error
}

// BoltLedgerGateway persists the last-closed-ledger header across
// restarts in a bbolt file, an embedded key/value store. Account
// balances live in the same file so CheckValid has something real to
// query without standing up a full ledger.
type BoltLedgerGateway struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	header types.LedgerHeader
	txFee  uint64
	once   sync.Once
}

// NewBoltLedgerGateway opens (creating if absent) the bbolt file at path
// and loads whatever last-closed header was persisted there; a fresh file
// starts at the zero header, i.e. genesis.
func NewBoltLedgerGateway(path string, txFee uint64) (*BoltLedgerGateway, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger gateway db: %w", err)
	}

	g := &BoltLedgerGateway{db: db, txFee: txFee}
	err = db.Update(func(tx *bbolt.Tx) error {
		lb, err := tx.CreateBucketIfNotExists(ledgerBucket)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(balanceBucket); err != nil {
			return err
		}
		if raw := lb.Get(headerKey); raw != nil {
			g.header = decodeHeader(raw)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger gateway db: %w", err)
	}
	return g, nil
}

func (g *BoltLedgerGateway) LastClosedLedgerHeader() types.LedgerHeader {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.header
}

func (g *BoltLedgerGateway) TxFee() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.txFee
}

// BalanceOf implements txset.LedgerState. A node with no recorded balance
// has zero, not an error — unknown accounts simply can't afford anything.
func (g *BoltLedgerGateway) BalanceOf(nodeID types.NodeID) uint64 {
	var balance uint64
	g.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(balanceBucket).Get(nodeID[:])
		if raw != nil {
			balance = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return balance
}

// SetBalance is a bootstrap/test hook; production balance changes belong
// to ledger application, which this repository does not implement.
func (g *BoltLedgerGateway) SetBalance(nodeID types.NodeID, balance uint64) error {
	return g.db.Update(func(tx *bbolt.Tx) error {
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], balance)
		return tx.Bucket(balanceBucket).Put(nodeID[:], raw[:])
	})
}

// ExternalizeValue records ts as the value externalized for the slot
// following the current header and advances the header accordingly.
// Applying ts's transactions to account state is ledger application's
// job, not the Herder's — this only advances the
// pointer a future ledger-close event will report back in.
func (g *BoltLedgerGateway) ExternalizeValue(ts *txset.TxSet, closeTime uint64) (types.LedgerHeader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := types.LedgerHeader{
		LedgerSeq: g.header.LedgerSeq + 1,
		CloseTime: closeTime,
		Hash:      ts.ContentHash(),
	}
	err := g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(ledgerBucket).Put(headerKey, encodeHeader(next))
	})
	if err != nil {
		return types.LedgerHeader{}, fmt.Errorf("persist externalized header: %w", err)
	}
	g.header = next
	logx.Info("LEDGER_GATEWAY", fmt.Sprintf("externalized slot=%d hash=%s txs=%d",
		next.LedgerSeq, utils.ShortenLog(next.Hash.String()), len(ts.Transactions)))
	return next, nil
}

func (g *BoltLedgerGateway) Close() error {
	var err error
	g.once.Do(func() {
		err = g.db.Close()
	})
	return err
}

const headerEncodedLen = 8 + 8 + types.HashSize

func encodeHeader(h types.LedgerHeader) []byte {
	buf := make([]byte, headerEncodedLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.LedgerSeq))
	binary.BigEndian.PutUint64(buf[8:16], h.CloseTime)
	copy(buf[16:], h.Hash[:])
	return buf
}

func decodeHeader(buf []byte) types.LedgerHeader {
	if len(buf) < headerEncodedLen {
		return types.LedgerHeader{}
	}
	var h types.LedgerHeader
	h.LedgerSeq = types.SlotIndex(binary.BigEndian.Uint64(buf[0:8]))
	h.CloseTime = binary.BigEndian.Uint64(buf[8:16])
	copy(h.Hash[:], buf[16:])
	return h
}
