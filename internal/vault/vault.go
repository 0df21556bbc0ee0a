package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "webcore"

// knownSecrets is the list of secret names checked by List(). These are
// the signing/encryption material the server holds: the session cookie
// HMAC key and the CSRF token secret.
var knownSecrets = []string{"session_hmac_key", "csrf_secret"}

// Vault provides secure secret storage using the OS keychain, with
// fallback to environment variables. It holds the signing keys the
// session and CSRF subsystems need, not end-user data.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores a secret under name in the OS keychain.
func (v *Vault) Set(name, secret string) error {
	return keyring.Set(serviceName, name, secret)
}

// Get retrieves the secret for name. It first checks the OS keychain,
// then falls back to the environment variable WEBCORE_SECRET_{UPPER(name)}.
func (v *Vault) Get(name string) (string, error) {
	secret, err := keyring.Get(serviceName, name)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := "WEBCORE_SECRET_" + strings.ToUpper(name)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no secret found for %q: not in keychain and %s not set", name, envKey)
}

// Delete removes the secret for name from the OS keychain.
func (v *Vault) Delete(name string) error {
	return keyring.Delete(serviceName, name)
}

// List returns the names of known secrets that currently have a value
// stored, checking both the keychain and environment variables.
func (v *Vault) List() ([]string, error) {
	var names []string

	for _, name := range knownSecrets {
		secret, err := keyring.Get(serviceName, name)
		if err == nil && secret != "" {
			names = append(names, name)
			continue
		}

		envKey := "WEBCORE_SECRET_" + strings.ToUpper(name)
		if val := os.Getenv(envKey); val != "" {
			names = append(names, name)
		}
	}

	return names, nil
}

// ResolveKeyRef parses a secret reference and retrieves the corresponding
// value. Supported formats:
//   - "keyring://webcore/<name>" (preferred)
//   - "keychain:webcore/<name>" (legacy)
//   - "env:VARIABLE_NAME" (environment variable)
//   - "file:///path/to/secret" (plain-text file)
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	// Format 1: keyring://webcore/<name>
	if strings.HasPrefix(keyRef, "keyring://") {
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://webcore/<name>\")", keyRef)
		}
		return v.Get(parts[1])
	}

	// Format 2: keychain:webcore/<name> (legacy)
	if strings.HasPrefix(keyRef, "keychain:") {
		path := strings.TrimPrefix(keyRef, "keychain:")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference path: %q (expected \"webcore/<name>\")", path)
		}
		return v.Get(parts[1])
	}

	// Format 3: env:VARIABLE_NAME
	if strings.HasPrefix(keyRef, "env:") {
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)
	}

	// Format 4: file:///path/to/secret
	if strings.HasPrefix(keyRef, "file://") {
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading secret file %q: %w", filePath, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("secret file %q is empty", filePath)
		}
		return secret, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://webcore/<name>\", \"keychain:webcore/<name>\", \"env:VARIABLE_NAME\", or \"file:///path/to/secret\")", keyRef)
}
