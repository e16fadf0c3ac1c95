package api

import (
	"context"
	"sync"

	"github.com/carvik/geodex/internal/identity"
	"github.com/carvik/geodex/internal/models"
	"github.com/carvik/geodex/internal/storage"
)

// fakeGitHub scripts both halves of the GitHub client.
type fakeGitHub struct {
	exchangeToken string
	exchangeErr   error
	user          *identity.GitHubUser
	userErr       error

	exchangeCalls int
	fetchCalls    int
}

func (f *fakeGitHub) ExchangeCode(ctx context.Context, code string) (string, error) {
	f.exchangeCalls++
	return f.exchangeToken, f.exchangeErr
}

func (f *fakeGitHub) FetchUser(ctx context.Context, accessToken string) (*identity.GitHubUser, error) {
	f.fetchCalls++
	return f.user, f.userErr
}

// memRecordStore is an in-memory RecordStore for handler tests.
type memRecordStore struct {
	mu      sync.Mutex
	records []models.Record
	nextID  int
	err     error
}

func (s *memRecordStore) Create(ctx context.Context, rec *models.Record) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, *rec)
	return nil
}

func (s *memRecordStore) List(ctx context.Context, limit int) ([]models.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *memRecordStore) Get(ctx context.Context, id int) (*models.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

// memCodeRegistry tracks consumed codes in memory.
type memCodeRegistry struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMemCodeRegistry() *memCodeRegistry {
	return &memCodeRegistry{seen: map[string]bool{}}
}

func (r *memCodeRegistry) MarkConsumed(ctx context.Context, code string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[code] {
		return false, nil
	}
	r.seen[code] = true
	return true, nil
}

func (r *memCodeRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
