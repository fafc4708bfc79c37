package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads CATLUX_USERNAME and CATLUX_PASSWORD. It is read-only.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. A non-empty username must match it.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	envUser := os.Getenv("CATLUX_USERNAME")
	password := os.Getenv("CATLUX_PASSWORD")
	if envUser == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != envUser {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     envUser,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
