// Package identity resolves the stable per-install device identifier used
// as this device's key in every backend interaction.
package identity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	platformerrors "signage-agent-go/internal/platform/errors"
)

const idFilename = "device_id"

// Provider loads or creates the persisted device identifier.
type Provider struct {
	dataDir string

	mu sync.Mutex
	id string
}

// NewProvider builds a provider rooted at the given data directory.
func NewProvider(dataDir string) *Provider {
	return &Provider{dataDir: dataDir}
}

// DeviceID returns the stable identifier, generating and persisting one on
// first use. Resolution failures are retryable; callers that cannot proceed
// without an id should surface the error and try again later.
func (p *Provider) DeviceID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	path := filepath.Join(p.dataDir, idFilename)
	raw, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if id != "" {
			p.id = id
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", platformerrors.Wrap(
			platformerrors.KindIdentity,
			"identity.resolve",
			"failed to read device id file",
			err,
		)
	}

	id := uuid.NewString()
	if err := p.persist(path, id); err != nil {
		return "", err
	}
	p.id = id
	return id, nil
}

// persist writes the id atomically: temp file in the same directory, then
// rename, so a crash never leaves a half-written identity behind.
func (p *Provider) persist(path, id string) error {
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return platformerrors.Wrap(
			platformerrors.KindIdentity,
			"identity.persist",
			"failed to create data directory",
			err,
		)
	}

	tmp, err := os.CreateTemp(p.dataDir, idFilename+".tmp-*")
	if err != nil {
		return platformerrors.Wrap(
			platformerrors.KindIdentity,
			"identity.persist",
			"failed to create temp file",
			err,
		)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		return platformerrors.Wrap(
			platformerrors.KindIdentity,
			"identity.persist",
			"failed to write device id",
			err,
		)
	}
	if err := tmp.Close(); err != nil {
		return platformerrors.Wrap(
			platformerrors.KindIdentity,
			"identity.persist",
			"failed to close temp file",
			err,
		)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return platformerrors.Wrap(
			platformerrors.KindIdentity,
			"identity.persist",
			"failed to move device id into place",
			err,
		)
	}
	return nil
}
