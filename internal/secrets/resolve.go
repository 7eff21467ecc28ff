// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package secrets

import (
	"errors"
	"log/slog"
	"strings"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/viper"
)

const uriScheme = "keyring://"

// IsKeyringURI reports whether value has the keyring:// scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, uriScheme)
}

// ParseKeyringURI splits keyring://service/key. The key may contain slashes.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", lberr.Errorf(lberr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, uriScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", lberr.Errorf(lberr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns the secret a keyring:// value points at, or value itself
// when it is not a keyring URI.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", lberr.Wrapf(err, lberr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string in v with the secret
// it names. Keys that cannot be resolved keep their reference and are
// reported together in the returned error.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			errs = append(errs, lberr.Wrapf(err, lberr.CodeSecretResolveFailure, "config key %s", key))
			continue
		}
		v.Set(key, resolved)
	}
	return errors.Join(errs...)
}

// ApplyFallbacks fills empty config keys from the well-known keys stored
// under DefaultService. It returns the config keys it filled.
func ApplyFallbacks(v *viper.Viper, store Store) []string {
	var filled []string
	for secretKey, configKey := range Fallbacks {
		if v.GetString(configKey) != "" {
			continue
		}

		val, err := store.Retrieve(DefaultService, secretKey)
		if err != nil {
			if !lberr.IsNotFound(err) {
				slog.Debug("keyring lookup failed", "key", secretKey, "error", err)
			}
			continue
		}
		v.Set(configKey, val)
		filled = append(filled, configKey)
	}
	return filled
}
