package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"catlux/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// memStore is an in-memory CredentialStore with error injection
type memStore struct {
	accounts   map[string]Account
	storeError error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func (m *memStore) Store(a *Account) error {
	if m.storeError != nil {
		return m.storeError
	}
	m.accounts[a.Username] = *a
	return nil
}

func (m *memStore) Retrieve(username string) (*Account, error) {
	a, ok := m.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (m *memStore) List() ([]*Account, error) {
	var out []*Account
	for _, a := range m.accounts {
		acc := a
		out = append(out, &acc)
	}
	return out, nil
}

func (m *memStore) Delete(username string) error {
	if _, ok := m.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, username)
	return nil
}

func (m *memStore) Exists(username string) bool {
	_, ok := m.accounts[username]
	return ok
}

func clearCredentialEnv(t *testing.T) {
	t.Setenv("CATLUX_USERNAME", "")
	t.Setenv("CATLUX_PASSWORD", "")
	t.Setenv(PassphraseEnv, "")
}

func TestManagerStoreAndRetrieve(t *testing.T) {
	clearCredentialEnv(t)
	store := newMemStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	require.NoError(t, manager.Store(&Account{Username: "anna", Password: "geheim123"}))

	got, err := manager.Retrieve("anna")
	require.NoError(t, err)
	assert.Equal(t, "geheim123", got.Password)
	assert.False(t, got.LastModified.IsZero())

	def, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "anna", def.Username)

	require.NoError(t, manager.Delete("anna"))
	_, err = manager.Retrieve("anna")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Error(t, manager.Delete("anna"))
}

func TestManagerValidation(t *testing.T) {
	manager := NewManagerWithStores(newMemStore())
	assert.Error(t, manager.Store(&Account{Password: "x"}))
	assert.Error(t, manager.Store(&Account{Username: "anna"}))
	assert.Error(t, manager.Store(nil))
}

func TestManagerFallsBackWhenStoreFails(t *testing.T) {
	broken := newMemStore()
	broken.storeError = errors.New("keychain locked")
	backup := newMemStore()
	manager := NewManagerWithStores(broken, backup)

	require.NoError(t, manager.Store(&Account{Username: "anna", Password: "pw"}))
	assert.True(t, backup.Exists("anna"))

	onlyBroken := NewManagerWithStores(broken)
	err := onlyBroken.Store(&Account{Username: "anna", Password: "pw"})
	assert.ErrorContains(t, err, "keychain locked")
}

func TestEnvironmentAccountWins(t *testing.T) {
	t.Setenv("CATLUX_USERNAME", "env-user")
	t.Setenv("CATLUX_PASSWORD", "env-pass")

	store := newMemStore()
	store.accounts["anna"] = Account{Username: "anna", Password: "pw", LastModified: time.Now()}
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	def, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "env-user", def.Username)

	env := NewEnvironmentStore()
	assert.True(t, env.Exists(""))
	assert.True(t, env.Exists("env-user"))
	assert.False(t, env.Exists("anna"))
	assert.ErrorIs(t, env.Store(def), ErrStoreUnavailable)
}

func TestResolve(t *testing.T) {
	clearCredentialEnv(t)
	store := newMemStore()
	store.accounts["anna"] = Account{Username: "anna", Password: "stored"}
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	acc, err := manager.Resolve(&config.CatluxConfig{Username: "bob", Password: "flag"})
	require.NoError(t, err)
	assert.Equal(t, "flag", acc.Password)

	acc, err = manager.Resolve(&config.CatluxConfig{Username: "anna"})
	require.NoError(t, err)
	assert.Equal(t, "stored", acc.Password)

	acc, err = manager.Resolve(&config.CatluxConfig{})
	require.NoError(t, err)
	assert.Equal(t, "anna", acc.Username)

	_, err = NewManagerWithStores(newMemStore()).Resolve(&config.CatluxConfig{})
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStore(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = store.Retrieve("anna")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, store.Store(&Account{Username: "anna", Password: "very-secret-password"}))
	require.NoError(t, store.Store(&Account{Username: "bob", Password: "other"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "very-secret-password"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A second store over the same directory reuses the saved passphrase
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Retrieve("anna")
	require.NoError(t, err)
	assert.Equal(t, "very-secret-password", got.Password)

	require.NoError(t, reopened.Delete("anna"))
	assert.False(t, reopened.Exists("anna"))
	require.NoError(t, reopened.Delete("bob"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	t.Setenv(PassphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Username: "anna", Password: "pw"}))

	t.Setenv(PassphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("anna")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	assert.False(t, store.Exists("anna"))
	require.NoError(t, store.Store(&Account{Username: "anna", Password: "pw"}))
	assert.True(t, store.Exists("anna"))

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "anna", accounts[0].Username)

	require.NoError(t, store.Delete("anna"))
	assert.ErrorIs(t, store.Delete("anna"), ErrCredentialsNotFound)
	accounts, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestNewManagerUsesDirectory(t *testing.T) {
	clearCredentialEnv(t)
	keyring.MockInitWithError(errors.New("no keychain"))
	dir := t.TempDir()

	manager, err := NewManager(dir)
	require.NoError(t, err)
	require.NoError(t, manager.Store(&Account{Username: "anna", Password: "pw"}))

	_, err = os.Stat(filepath.Join(dir, "credentials.enc"))
	assert.NoError(t, err)
}

func TestSanitizeAccount(t *testing.T) {
	assert.Nil(t, SanitizeAccount(nil))

	s := SanitizeAccount(&Account{Username: "anna", Password: "short"})
	assert.Equal(t, "anna", s.Username)
	assert.Equal(t, "********", s.Password)

	s = SanitizeAccount(&Account{Username: "anna", Password: "a-much-longer-password"})
	assert.Equal(t, "a-...rd", s.Password)
}
