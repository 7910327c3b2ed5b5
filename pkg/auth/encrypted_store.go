package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// EnvPassphrase overrides the generated encryption passphrase
const EnvPassphrase = "ZSXQSYNC_PASSPHRASE"

const (
	vaultVersion = 2
	saltSize     = 32
	keySize      = 32
	iterations   = 100000
)

// ErrUnsupportedVault is returned for credential files written by an
// incompatible version
var ErrUnsupportedVault = errors.New("unsupported credentials file version")

// EncryptedFileStore keeps zsxq sessions in a single AES-GCM sealed file.
// Each save derives a fresh key from the passphrase and a new salt.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// envelope is the on-disk form: only the version and key material are
// readable without the passphrase.
type envelope struct {
	Version int    `json:"version"`
	Salt    string `json:"salt"`
	Sealed  string `json:"sealed"`
}

// session is what is sealed per account name
type session struct {
	Token     string    `json:"token"`
	UserAgent string    `json:"ua,omitempty"`
	Saved     time.Time `json:"saved"`
}

type vault map[string]session

func (v vault) account(name string) *Account {
	s := v[name]
	return &Account{Name: name, AccessToken: s.Token, UserAgent: s.UserAgent, LastModified: s.Saved}
}

// NewEncryptedFileStore opens the store at path, creating its directory
// and passphrase file when needed. The file itself is written on first
// Store.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	passphrase, err := loadPassphrase(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store seals the account's token and user agent under its name. The
// environment account name is reserved, and the token must be usable as
// a cookie value.
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" || account.Name == envAccountName {
		return ErrInvalidCredentials
	}
	token := strings.TrimSpace(account.AccessToken)
	if token == "" || strings.ContainsAny(token, "; \t\r\n") {
		return fmt.Errorf("%w: access token is not a cookie value", ErrInvalidCredentials)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.load()
	if err != nil {
		return err
	}
	saved := account.LastModified
	if saved.IsZero() {
		saved = time.Now()
	}
	v[account.Name] = session{Token: token, UserAgent: account.UserAgent, Saved: saved}
	return e.save(v)
}

// Retrieve returns the named session
func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.load()
	if err != nil {
		return nil, err
	}
	if _, ok := v[name]; !ok {
		return nil, ErrCredentialsNotFound
	}
	return v.account(name), nil
}

// List returns every session sorted by name
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	accounts := make([]*Account, 0, len(names))
	for _, name := range names {
		accounts = append(accounts, v.account(name))
	}
	return accounts, nil
}

// Delete removes the named session. The file goes away with the last one.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.load()
	if err != nil {
		return err
	}
	if _, ok := v[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(v, name)

	if len(v) == 0 {
		return os.Remove(e.path)
	}
	return e.save(v)
}

// Exists reports whether a session is stored under name
func (e *EncryptedFileStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

// load returns the decrypted sessions, or an empty vault when no file
// exists yet
func (e *EncryptedFileStore) load() (vault, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return vault{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if env.Version != vaultVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVault, env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}

	plain, err := open(sealed, e.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials, check %s: %w", EnvPassphrase, err)
	}

	v := vault{}
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return v, nil
}

func (e *EncryptedFileStore) save(v vault) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	sealed, err := seal(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Version: vaultVersion,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Sealed:  base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return writeFileAtomic(e.path, content, 0600)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// writeFileAtomic replaces path with content through a synced temp file
func writeFileAtomic(path string, content []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(content); err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, path)
}

// loadPassphrase returns ZSXQSYNC_PASSPHRASE when set, otherwise the
// .passphrase file in dir, generating it on first use
func loadPassphrase(dir string) (string, error) {
	if pass := os.Getenv(EnvPassphrase); pass != "" {
		return pass, nil
	}

	path := filepath.Join(dir, ".passphrase")
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := writeFileAtomic(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

// seal encrypts plaintext with AES-GCM, prefixing the nonce
func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal
func open(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
