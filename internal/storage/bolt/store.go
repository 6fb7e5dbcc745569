// Package bolt persists the policy ledger and fund accounts in an embedded
// BoltDB file. Bolt gives the ledger its concurrency model for free: writes
// run single-file-serialized inside transactions, reads observe consistent
// snapshots, and a purchase's check-then-set or a payout's debit-plus-status
// flip commits atomically or not at all.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
)

// Bucket layout:
//
//	policies  seq (8-byte big-endian) → JSON policy; iteration order is creation order
//	holders   holder → seq; enforces one policy per holder
//	balances  account name → int64 micros (8-byte big-endian, two's complement)
const (
	policiesBucket = "policies"
	holdersBucket  = "holders"
	balancesBucket = "balances"
)

// Well-known account names. Holder accounts are prefixed to keep them out of
// the reserved namespace.
const (
	EscrowAccount  = "escrow"
	InsurerAccount = "insurer"
)

// HolderAccount returns the balance account name for a policyholder.
func HolderAccount(holder string) string {
	return "holder/" + holder
}

// Store wraps a BoltDB database holding policies and account balances.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{policiesBucket, holdersBucket, balancesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness verifies the database is open and readable.
func (s *Store) CheckReadiness(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(policiesBucket)) == nil {
			return errors.New("policies bucket missing")
		}
		return nil
	})
}

// Update runs fn in a writable transaction. Any error rolls the whole
// transaction back, leaving ledger and balances untouched.
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// View runs fn in a read-only transaction over a consistent snapshot.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// Policies returns all policies in creation order.
func (s *Store) Policies() ([]domain.Policy, error) {
	var out []domain.Policy
	err := s.View(func(t *Tx) error {
		var err error
		out, err = t.Policies()
		return err
	})
	return out, err
}

// PolicyByHolder returns the holder's policy outside any caller transaction.
func (s *Store) PolicyByHolder(holder string) (*domain.Policy, error) {
	var p *domain.Policy
	err := s.View(func(t *Tx) error {
		var err error
		p, err = t.Policy(holder)
		return err
	})
	return p, err
}

// Tx exposes typed ledger operations inside a Bolt transaction.
type Tx struct {
	btx *bolt.Tx
}

// CreatePolicy inserts a policy for a holder who has none, assigning the next
// creation sequence. Returns domain.ErrDuplicatePolicy if the holder already
// holds a record, resolved or not.
func (t *Tx) CreatePolicy(p *domain.Policy) error {
	holders := t.btx.Bucket([]byte(holdersBucket))
	if holders.Get([]byte(p.Holder)) != nil {
		return domain.ErrDuplicatePolicy
	}

	policies := t.btx.Bucket([]byte(policiesBucket))
	seq, err := policies.NextSequence()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	key := u64key(seq)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	if err := policies.Put(key, data); err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	if err := holders.Put([]byte(p.Holder), key); err != nil {
		return fmt.Errorf("index holder: %w", err)
	}
	return nil
}

// Policy returns the holder's policy, or domain.ErrNoPolicyFound.
func (t *Tx) Policy(holder string) (*domain.Policy, error) {
	key := t.btx.Bucket([]byte(holdersBucket)).Get([]byte(holder))
	if key == nil {
		return nil, domain.ErrNoPolicyFound
	}
	data := t.btx.Bucket([]byte(policiesBucket)).Get(key)
	if data == nil {
		return nil, fmt.Errorf("holder index points at missing policy %x", key)
	}
	var p domain.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	return &p, nil
}

// PutPolicy overwrites the stored record for an existing policy's holder.
func (t *Tx) PutPolicy(p *domain.Policy) error {
	key := t.btx.Bucket([]byte(holdersBucket)).Get([]byte(p.Holder))
	if key == nil {
		return domain.ErrNoPolicyFound
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	return t.btx.Bucket([]byte(policiesBucket)).Put(key, data)
}

// Policies returns every policy in creation order. Returns an empty slice
// rather than nil so JSON encoders emit [] instead of null.
func (t *Tx) Policies() ([]domain.Policy, error) {
	out := []domain.Policy{}
	err := t.btx.Bucket([]byte(policiesBucket)).ForEach(func(_, v []byte) error {
		var p domain.Policy
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the named account's balance; unknown accounts hold zero.
func (t *Tx) Balance(account string) domain.Money {
	v := t.btx.Bucket([]byte(balancesBucket)).Get([]byte(account))
	if v == nil {
		return 0
	}
	return domain.Money(int64(binary.BigEndian.Uint64(v)))
}

// AddBalance credits (or debits, with a negative delta) an account. A debit
// that would take the account below zero fails without writing.
func (t *Tx) AddBalance(account string, delta domain.Money) error {
	next := t.Balance(account) + delta
	if next < 0 {
		return fmt.Errorf("account %s balance would go negative", account)
	}
	return t.btx.Bucket([]byte(balancesBucket)).Put([]byte(account), u64key(uint64(int64(next))))
}

// Balances returns a snapshot of every account balance.
func (t *Tx) Balances() (map[string]domain.Money, error) {
	out := map[string]domain.Money{}
	err := t.btx.Bucket([]byte(balancesBucket)).ForEach(func(k, v []byte) error {
		out[string(k)] = domain.Money(int64(binary.BigEndian.Uint64(v)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func u64key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
