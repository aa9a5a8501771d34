package credentials

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/domain"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/fx"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// FileStore keeps the token pair in a single secretbox-sealed file.
// It stands in for platform keychain storage: the payload is encrypted
// at rest and the file is only readable by the owning user.
type FileStore struct {
	path   string
	key    [32]byte
	logger logger.Logger
}

type FileStoreOpts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

func NewFileStore(opts FileStoreOpts) (*FileStore, error) {
	s := &FileStore{
		path:   opts.Config.Auth.CredentialsPath,
		logger: opts.Logger,
	}

	keyHex := opts.Config.Auth.CredentialsKey
	if keyHex == "" {
		opts.Logger.Warn("AUTH_CREDENTIALS_KEY not set, deriving a development key from the store path")
		s.key = sha256.Sum256([]byte("fairytale-engine-dev-key:" + s.path))
		return s, nil
	}

	raw, err := hex.DecodeString(keyHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("AUTH_CREDENTIALS_KEY must be 32 hex-encoded bytes")
	}
	copy(s.key[:], raw)
	return s, nil
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) Save(ctx context.Context, accessToken, refreshToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(domain.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], payload, &nonce, &s.key)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create credentials directory: %w", err)
		}
	}

	// Write to a sibling temp file first so a crash mid-write cannot
	// leave a truncated credential file behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrCannotSave, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrCannotSave, err)
	}

	return nil
}

func (s *FileStore) Load(ctx context.Context) (*domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if len(sealed) < nonceSize {
		return nil, ErrNotFound
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	payload, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		s.logger.Warn("Credentials file failed to decrypt, treating as absent", "path", s.path)
		return nil, ErrNotFound
	}

	var creds domain.Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}

	return &creds, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}
