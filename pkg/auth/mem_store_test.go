package auth

import "sync"

// memStore is an in-memory CredentialStore with injectable failures
type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account

	StoreError error
	ListError  error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func (m *memStore) Store(account *Account) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Name] = *account
	return nil
}

func (m *memStore) Retrieve(name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (m *memStore) List() ([]Summary, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	summaries := make([]Summary, 0, len(m.accounts))
	for _, account := range m.accounts {
		summaries = append(summaries, summarize(&account, "memory"))
	}
	return summaries, nil
}

func (m *memStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

func (m *memStore) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[name]
	return ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func newMemManager(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}
