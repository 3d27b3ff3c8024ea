// Package quotes tracks solver quotes received from the network on the
// client side, with status bookkeeping and automatic expiry sweeping.
package quotes

import (
	"math/big"
	"strings"
	"sync"
	"time"

	orderhub "github.com/orderhub-labs/orderhub-go"
)

// Status is the lifecycle state of a stored quote.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusFilled   Status = "filled"
	StatusExpired  Status = "expired"
	StatusRejected Status = "rejected"
)

// DefaultTolerance is the relative tolerance ValidateMatches allows between
// order output amounts and quoted amounts.
const DefaultTolerance = 0.001

// DefaultSweepInterval is how often the background sweep removes expired
// entries.
const DefaultSweepInterval = 60 * time.Second

// DestToken is one quoted destination leg.
type DestToken struct {
	Token  string
	Amount string
}

// Quote is a solver quote as tracked by the store. The store owns its
// entries exclusively: values passed to Store are copied in, and values
// returned from Get and Find are copies.
type Quote struct {
	QuoteID        string
	Bucket         string
	Solver         string
	SourceChain    string
	DestChain      string
	SourceToken    string
	DestTokens     []DestToken
	InputAmount    string
	ConversionRate float64
	GasFeeUSD      float64
	Timestamp      int64 // millisecond epoch
	ExpiresAt      int64 // millisecond epoch
	Status         Status

	// Raw optionally carries the untouched solver payload.
	Raw any
}

// Criteria selects quotes in Find. Zero-valued fields match everything;
// set fields require exact equality, except Solver which matches
// case-insensitively.
type Criteria struct {
	Bucket      string
	Solver      string
	SourceChain string
	DestChain   string
	Status      Status
}

// Stats is a point-in-time count of quotes by status. A pending quote whose
// expiry has passed is counted as expired in the snapshot without mutating
// the stored status.
type Stats struct {
	Total    int
	Pending  int
	Accepted int
	Filled   int
	Expired  int
	Rejected int
}

// Store is an in-memory keyed quote store. The background sweep runs for the
// lifetime of the store; Close stops it and clears all entries.
type Store struct {
	mu     sync.Mutex
	quotes map[string]*Quote

	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSweepInterval overrides the background sweep interval.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// NewStore creates a quote store and starts its background expiry sweep.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		quotes:        make(map[string]*Quote),
		sweepInterval: DefaultSweepInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()
	return s
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepExpired()
		case <-s.done:
			return
		}
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func cloneQuote(q *Quote) *Quote {
	c := *q
	c.DestTokens = make([]DestToken, len(q.DestTokens))
	copy(c.DestTokens, q.DestTokens)
	return &c
}

// Store upserts a quote by its id; last write wins. A quote with no status
// is stored as pending.
func (s *Store) Store(q *Quote) {
	c := cloneQuote(q)
	if c.Status == "" {
		c.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[c.QuoteID] = c
}

// Get returns a copy of the quote with the given id.
func (s *Store) Get(quoteID string) (*Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[quoteID]
	if !ok {
		return nil, false
	}
	return cloneQuote(q), true
}

// Find returns copies of all quotes matching the criteria, in no particular
// order.
func (s *Store) Find(c Criteria) []*Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*Quote
	for _, q := range s.quotes {
		if c.Bucket != "" && q.Bucket != c.Bucket {
			continue
		}
		if c.Solver != "" && !strings.EqualFold(q.Solver, c.Solver) {
			continue
		}
		if c.SourceChain != "" && q.SourceChain != c.SourceChain {
			continue
		}
		if c.DestChain != "" && q.DestChain != c.DestChain {
			continue
		}
		if c.Status != "" && q.Status != c.Status {
			continue
		}
		matches = append(matches, cloneQuote(q))
	}
	return matches
}

// ValidateMatches reports whether the order request is consistent with the
// stored quote, using DefaultTolerance for output amounts.
func (s *Store) ValidateMatches(req *orderhub.OrderRequest, quoteID string) bool {
	return s.ValidateMatchesWithin(req, quoteID, DefaultTolerance)
}

// ValidateMatchesWithin reports whether the order request is consistent with
// the stored quote. It fails closed: an absent or expired quote, a first
// input amount that differs from the quoted input amount, an output count
// mismatch, or any output amount off by more than tolerance (as a fraction
// of the quoted amount) all yield false.
//
// Outputs are compared positionally against the quote's destination tokens;
// callers must construct order outputs in quote order.
func (s *Store) ValidateMatchesWithin(req *orderhub.OrderRequest, quoteID string, tolerance float64) bool {
	q, ok := s.Get(quoteID)
	if !ok {
		return false
	}
	if nowMillis() > q.ExpiresAt {
		return false
	}

	if len(req.Order.Inputs) == 0 || req.Order.Inputs[0].Amount == nil {
		return false
	}
	quotedInput, ok := new(big.Int).SetString(q.InputAmount, 10)
	if !ok {
		return false
	}
	if req.Order.Inputs[0].Amount.Cmp(quotedInput) != 0 {
		return false
	}

	if len(req.Order.Outputs) != len(q.DestTokens) {
		return false
	}
	for i, out := range req.Order.Outputs {
		if out.Amount == nil {
			return false
		}
		quoted, ok := new(big.Float).SetString(q.DestTokens[i].Amount)
		if !ok || quoted.Sign() <= 0 {
			return false
		}

		diff := new(big.Float).Sub(new(big.Float).SetInt(out.Amount), quoted)
		diff.Abs(diff)

		allowed := new(big.Float).Mul(quoted, big.NewFloat(tolerance))
		if diff.Cmp(allowed) > 0 {
			return false
		}
	}

	return true
}

// Transition moves a quote to accepted, filled or rejected. Returns false
// when the id is unknown. The state machine is deliberately permissive: no
// check is made that the transition is legal from the current status;
// callers are responsible for sequencing.
func (s *Store) Transition(quoteID string, newStatus Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[quoteID]
	if !ok {
		return false
	}
	q.Status = newStatus
	return true
}

// IsExpired reports whether the quote is absent or past its expiry.
func (s *Store) IsExpired(quoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[quoteID]
	if !ok {
		return true
	}
	return nowMillis() > q.ExpiresAt
}

// SweepExpired removes every entry past its expiry regardless of status and
// returns the number removed. It is invoked automatically on the sweep
// interval and may also be called manually.
func (s *Store) SweepExpired() int {
	now := nowMillis()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, q := range s.quotes {
		if now > q.ExpiresAt {
			delete(s.quotes, id)
			removed++
		}
	}
	return removed
}

// Remove deletes a single quote. Returns false when the id is unknown.
func (s *Store) Remove(quoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotes[quoteID]; !ok {
		return false
	}
	delete(s.quotes, quoteID)
	return true
}

// Clear removes all quotes.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = make(map[string]*Quote)
}

// Stats returns a snapshot of quote counts by status.
func (s *Store) Stats() Stats {
	now := nowMillis()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Total: len(s.quotes)}
	for _, q := range s.quotes {
		status := q.Status
		if status == StatusPending && now > q.ExpiresAt {
			status = StatusExpired
		}
		switch status {
		case StatusPending:
			st.Pending++
		case StatusAccepted:
			st.Accepted++
		case StatusFilled:
			st.Filled++
		case StatusExpired:
			st.Expired++
		case StatusRejected:
			st.Rejected++
		}
	}
	return st
}

// Close cancels the periodic sweep and clears all entries. The store must
// not be used afterward.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.Clear()
}
