package auth

import "sync"

// memoryStore is an in-memory CredentialStore with per-call error injection
type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account

	failStore    error
	failRetrieve error
	failList     error
	failDelete   error
}

func newMemoryStore(accounts ...Account) *memoryStore {
	s := &memoryStore{accounts: map[string]Account{}}
	for _, a := range accounts {
		s.accounts[a.Name] = a
	}
	return s
}

func newMemoryManager() (*Manager, *memoryStore) {
	store := newMemoryStore()
	return NewManagerWithStores(store), store
}

func (s *memoryStore) Store(account *Account) error {
	if s.failStore != nil {
		return s.failStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Name] = *account
	return nil
}

func (s *memoryStore) Retrieve(name string) (*Account, error) {
	if s.failRetrieve != nil {
		return nil, s.failRetrieve
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (s *memoryStore) List() ([]*Account, error) {
	if s.failList != nil {
		return nil, s.failList
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

func (s *memoryStore) Delete(name string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(s.accounts, name)
	return nil
}

func (s *memoryStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[name]
	return ok
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
