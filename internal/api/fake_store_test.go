package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Spot-Canvas/gameledger/internal/domain"
	"github.com/Spot-Canvas/gameledger/internal/store"
)

// fakeStore is an in-memory Store with the same observable semantics as the
// Postgres repository.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	scores      []domain.ScoreEntry
	txns        map[string]domain.Transaction
	unavailable bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[string]*domain.User{},
		txns:  map[string]domain.Transaction{},
	}
}

func (f *fakeStore) down() error {
	if f.unavailable {
		return fmt.Errorf("acquire connection: %w", domain.ErrUnavailable)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down()
}

func (f *fakeStore) UpsertUserAndGrant(_ context.Context, userID string, wallet int64, deltas domain.Powerups) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u, ok := f.users[userID]
	if !ok {
		u = &domain.User{UserID: userID, CreatedAt: now}
		f.users[userID] = u
	}
	u.Wallet = wallet
	for i, d := range deltas {
		u.Powerups[i] += d
	}
	u.UpdatedAt = now

	cp := *u
	return &cp, nil
}

func (f *fakeStore) ConsumePowerups(_ context.Context, userID string, amounts domain.Powerups) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}

	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("consume powerups for %q: %w", userID, domain.ErrNotFound)
	}
	for i, a := range amounts {
		u.Powerups[i] = max(u.Powerups[i]-a, 0)
	}
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}

	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("get user %q: %w", userID, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetPowerupsPrefix(ctx context.Context, userID string) (*domain.PowerupPrefix, error) {
	u, err := f.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Powerups.Prefix()
	return &p, nil
}

func (f *fakeStore) RecordScore(_ context.Context, userID string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	f.scores = append(f.scores, domain.ScoreEntry{UserID: userID, Score: delta})
	return nil
}

func (f *fakeStore) total(userID string) int64 {
	var sum int64
	for _, s := range f.scores {
		if s.UserID == userID {
			sum += s.Score
		}
	}
	return sum
}

func (f *fakeStore) ReduceScoreIfSufficient(_ context.Context, userID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	if f.total(userID) < amount {
		return domain.ErrInsufficientBalance
	}
	f.scores = append(f.scores, domain.ScoreEntry{UserID: userID, Score: -amount})
	return nil
}

func (f *fakeStore) FetchScores(_ context.Context, userID string) ([]domain.ScoreEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}

	out := []domain.ScoreEntry{}
	for _, s := range f.scores {
		if userID == "" || s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) TopUsers(_ context.Context, limit int) ([]domain.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}

	totals := map[string]int64{}
	for _, s := range f.scores {
		totals[s.UserID] += s.Score
	}
	out := []domain.UserScore{}
	for id, total := range totals {
		out = append(out, domain.UserScore{UserID: id, TotalScore: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) TransactionExists(_ context.Context, txn string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return false, err
	}
	_, ok := f.txns[txn]
	return ok, nil
}

func (f *fakeStore) RecordTransaction(_ context.Context, txn string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	if _, ok := f.txns[txn]; ok {
		return fmt.Errorf("record transaction %q: %w", txn, domain.ErrTransactionExists)
	}
	f.txns[txn] = domain.Transaction{Txn: txn, Amount: amount, CreatedAt: time.Now().UTC()}
	return nil
}

func (f *fakeStore) ClearTransactions(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return 0, err
	}
	n := int64(len(f.txns))
	f.txns = map[string]domain.Transaction{}
	return n, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, filter store.TransactionFilter) (*store.TransactionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	if filter.Cursor != "" {
		return nil, fmt.Errorf("fake store does not paginate: %w", domain.ErrInvalidCursor)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	out := []domain.Transaction{}
	for _, t := range f.txns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Txn > out[j].Txn
	})

	page := &store.TransactionPage{}
	if len(out) > limit {
		out = out[:limit]
		page.NextCursor = "next"
	}
	page.Transactions = out
	return page, nil
}
