// Package secretstore keeps wallet secrets and exchange API credentials
// in an encrypted-at-rest Badger store, so the bot never needs them in
// plain env files once initialized.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Well-known keys used by the trading bot.
const (
	KeyPrivateKey    = "wallet/private_key"
	KeyMnemonic      = "wallet/mnemonic"
	KeyFunderAddress = "wallet/funder_address"
	KeyAPIKey        = "clob/api_key"
	KeyAPISecret     = "clob/api_secret"
	KeyAPIPassphrase = "clob/api_passphrase"
)

// Store is a thin KV wrapper over Badger. Encryption comes from Badger's
// own options (value log + key registry), not from this wrapper.
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the DB unencrypted (not recommended)
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: key is empty")
	}
	var out string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) Set(key, val string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// WalletSecrets is everything the bot needs to sign orders and settle.
type WalletSecrets struct {
	PrivateKey    string
	FunderAddress string
	APIKey        string
	APISecret     string
	APIPassphrase string
}

// LoadWallet reads all wallet-related keys; missing keys are left empty.
func (s *Store) LoadWallet() (*WalletSecrets, error) {
	w := &WalletSecrets{}
	for _, kv := range []struct {
		key string
		dst *string
	}{
		{KeyPrivateKey, &w.PrivateKey},
		{KeyFunderAddress, &w.FunderAddress},
		{KeyAPIKey, &w.APIKey},
		{KeyAPISecret, &w.APISecret},
		{KeyAPIPassphrase, &w.APIPassphrase},
	} {
		v, _, err := s.Get(kv.key)
		if err != nil {
			return nil, err
		}
		*kv.dst = v
	}
	return w, nil
}

// SaveWallet writes all non-empty wallet fields.
func (s *Store) SaveWallet(w *WalletSecrets) error {
	for _, kv := range []struct {
		key string
		val string
	}{
		{KeyPrivateKey, w.PrivateKey},
		{KeyFunderAddress, w.FunderAddress},
		{KeyAPIKey, w.APIKey},
		{KeyAPISecret, w.APISecret},
		{KeyAPIPassphrase, w.APIPassphrase},
	} {
		if kv.val == "" {
			continue
		}
		if err := s.Set(kv.key, kv.val); err != nil {
			return err
		}
	}
	return nil
}

// ParseKey expects 32 bytes as hex (optionally 0x-prefixed) or base64.
// Returns nil for empty input.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
