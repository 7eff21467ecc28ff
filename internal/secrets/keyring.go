// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/zalando/go-keyring"
)

// go-keyring cannot enumerate keys, so each service keeps a JSON list of its
// key names under this suffix.
const indexSuffix = "::index"

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux and Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkNames("store", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return lberr.Wrapf(err, lberr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkNames("retrieve", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", lberr.Errorf(lberr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", lberr.Wrapf(err, lberr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkNames("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return lberr.Errorf(lberr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return lberr.Wrapf(err, lberr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, lberr.New(lberr.CodeSecretInvalidInput, "secret list: service must not be empty")
	}
	keys, err := s.loadIndex(service)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeSecretListFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeSecretListFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) updateIndex(service string, update func([]string) []string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	keys = update(keys)

	indexKey := service + indexSuffix
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to remove empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return lberr.Wrapf(err, lberr.CodeSecretListFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return lberr.Wrapf(err, lberr.CodeSecretListFailure, "saving key index for %s", service)
	}
	return nil
}

func checkNames(op, service, key string) error {
	if service == "" {
		return lberr.Errorf(lberr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return lberr.Errorf(lberr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}
