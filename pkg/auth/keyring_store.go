package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"catlux/pkg/config"

	"github.com/zalando/go-keyring"
)

const keyringPrefix = "account_"

// KeyringStore keeps accounts in the system keychain. The keychain cannot
// be enumerated, so List only knows the most recently stored account.
type KeyringStore struct {
	service string
}

// NewKeyringStore probes the keychain and fails when it is not usable
func NewKeyringStore() (*KeyringStore, error) {
	k := &KeyringStore{service: config.AppName}

	const probe = "availability_probe"
	if err := keyring.Set(k.service, probe, "ok"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(k.service, probe)

	return k, nil
}

const lastAccountKey = "last_account"

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := keyring.Set(k.service, keyringPrefix+account.Username, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return keyring.Set(k.service, lastAccountKey, account.Username)
}

func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(k.service, keyringPrefix+username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

func (k *KeyringStore) List() ([]*Account, error) {
	username, err := keyring.Get(k.service, lastAccountKey)
	if err != nil {
		return []*Account{}, nil
	}
	account, err := k.Retrieve(username)
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	if err := keyring.Delete(k.service, keyringPrefix+username); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	if last, err := keyring.Get(k.service, lastAccountKey); err == nil && last == username {
		_ = keyring.Delete(k.service, lastAccountKey)
	}
	return nil
}

func (k *KeyringStore) Exists(username string) bool {
	if username == "" {
		return false
	}
	_, err := keyring.Get(k.service, keyringPrefix+username)
	return err == nil
}
