package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnvVar overrides the generated file passphrase
const PassphraseEnvVar = "LIKESYNC_PASSPHRASE"

const (
	vaultVersion   = 2
	saltSize       = 32
	keySize        = 32
	iterations     = 100000
	passphraseFile = ".passphrase"
)

// vault is the on-disk layout. Names, masks and timestamps are in the clear
// so List never decrypts; each token is sealed on its own with the account
// name as additional data, so entries cannot be moved between names.
type vault struct {
	Version int                   `json:"version"`
	Salt    []byte                `json:"salt"`
	Tokens  map[string]vaultEntry `json:"tokens"`
}

type vaultEntry struct {
	Sealed   []byte    `json:"sealed"`
	Masked   string    `json:"masked"`
	Modified time.Time `json:"modified"`
}

// EncryptedFileStore keeps bearer tokens in an AES-GCM sealed file keyed
// from a passphrase with PBKDF2.
type EncryptedFileStore struct {
	path       string
	passphrase []byte

	mu      sync.Mutex
	keySalt []byte
	key     []byte
}

// NewEncryptedFileStore opens (without reading) the vault at path. The
// passphrase comes from LIKESYNC_PASSPHRASE or a generated file next to it.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(dir, passphraseFile))
	if err != nil {
		return nil, err
	}

	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" || account.BearerToken == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.read()
	if err != nil {
		return err
	}
	if v == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		v = &vault{Version: vaultVersion, Salt: salt, Tokens: map[string]vaultEntry{}}
	}

	gcm, err := e.cipherFor(v.Salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	modified := account.LastModified
	if modified.IsZero() {
		modified = time.Now()
	}
	v.Tokens[account.Name] = vaultEntry{
		Sealed:   gcm.Seal(nonce, nonce, []byte(account.BearerToken), []byte(account.Name)),
		Masked:   MaskToken(account.BearerToken),
		Modified: modified,
	}

	return e.write(v)
}

func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.read()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrCredentialsNotFound
	}
	entry, ok := v.Tokens[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}

	gcm, err := e.cipherFor(v.Salt)
	if err != nil {
		return nil, err
	}
	if len(entry.Sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: sealed token for %q is truncated", ErrInvalidCredentials, name)
	}
	nonce, sealed := entry.Sealed[:gcm.NonceSize()], entry.Sealed[gcm.NonceSize():]
	token, err := gcm.Open(nil, nonce, sealed, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decrypt token for %q (wrong %s?)", ErrInvalidCredentials, name, PassphraseEnvVar)
	}

	return &Account{Name: name, BearerToken: string(token), LastModified: entry.Modified}, nil
}

func (e *EncryptedFileStore) List() ([]Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.read()
	if err != nil || v == nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(v.Tokens))
	for name, entry := range v.Tokens {
		summaries = append(summaries, Summary{
			Name:         name,
			Source:       "file",
			MaskedToken:  entry.Masked,
			LastModified: entry.Modified,
		})
	}
	return summaries, nil
}

// Delete removes one token; the file goes away with the last one
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.read()
	if err != nil {
		return err
	}
	if v == nil {
		return ErrCredentialsNotFound
	}
	if _, ok := v.Tokens[name]; !ok {
		return ErrCredentialsNotFound
	}

	delete(v.Tokens, name)
	if len(v.Tokens) == 0 {
		return os.Remove(e.path)
	}
	return e.write(v)
}

func (e *EncryptedFileStore) Exists(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.read()
	if err != nil || v == nil {
		return false
	}
	_, ok := v.Tokens[name]
	return ok
}

// read returns nil, nil when the file does not exist yet
func (e *EncryptedFileStore) read() (*vault, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var v vault
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("credentials file %s is corrupt: %w", e.path, err)
	}
	if v.Version != vaultVersion || len(v.Salt) == 0 {
		return nil, fmt.Errorf("credentials file %s has unsupported version %d", e.path, v.Version)
	}
	if v.Tokens == nil {
		v.Tokens = map[string]vaultEntry{}
	}
	return &v, nil
}

func (e *EncryptedFileStore) write(v *vault) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// cipherFor derives the key for salt once and reuses it while the salt holds
func (e *EncryptedFileStore) cipherFor(salt []byte) (cipher.AEAD, error) {
	if e.key == nil || !bytes.Equal(e.keySalt, salt) {
		e.key = pbkdf2.Key(e.passphrase, salt, iterations, keySize, sha256.New)
		e.keySalt = append([]byte(nil), salt...)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func loadPassphrase(path string) ([]byte, error) {
	if pass := os.Getenv(PassphraseEnvVar); pass != "" {
		return []byte(pass), nil
	}

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return content, nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := []byte(base64.RawURLEncoding.EncodeToString(raw))
	if err := os.WriteFile(path, pass, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}
