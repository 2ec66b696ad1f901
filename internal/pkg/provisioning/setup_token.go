package provisioning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/security"
)

const setupTokenBytes = 32

// SetupTokenIssuer mints and redeems the one-time credentials used to
// bootstrap a provisioned instance's first admin account. Only the token's
// hash is persisted; the session secret is stored encrypted under a
// per-token nonce.
type SetupTokenIssuer struct {
	db  *gorm.DB
	key []byte
	ttl time.Duration
}

// NewSetupTokenIssuer creates an issuer. secretKey is the configured
// encryption secret; ttl bounds how long an unused token stays redeemable.
func NewSetupTokenIssuer(db *gorm.DB, secretKey string, ttl time.Duration) (*SetupTokenIssuer, error) {
	if secretKey == "" {
		return nil, errors.New("setup secret key is required")
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &SetupTokenIssuer{
		db:  db,
		key: security.DeriveKey(secretKey),
		ttl: ttl,
	}, nil
}

// Issue generates a fresh token for the install and returns the plaintext
// exactly once, for transmission over a protected channel. The plaintext is
// never persisted.
func (i *SetupTokenIssuer) Issue(installID uint) (string, error) {
	token, err := security.GenerateToken(setupTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate setup token: %w", err)
	}
	sessionSecret, err := security.GenerateToken(setupTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	ciphertext, nonce, err := security.EncryptSecret(i.key, []byte(sessionSecret))
	if err != nil {
		return "", fmt.Errorf("encrypt session secret: %w", err)
	}

	row := &models.SetupToken{
		InstallID:        installID,
		TokenHash:        security.HashToken(token),
		SecretCiphertext: ciphertext,
		SecretNonce:      nonce,
		ExpiresAt:        time.Now().Add(i.ttl),
	}
	if err := i.db.Create(row).Error; err != nil {
		return "", fmt.Errorf("persist setup token for install %d: %w", installID, err)
	}
	return token, nil
}

// Redeem consumes a token exactly once and returns the decrypted session
// secret. The used flag flips via a single conditional update, so two
// concurrent redemptions cannot both succeed. A successful redemption also
// activates the install (setup_pending→active).
func (i *SetupTokenIssuer) Redeem(token string) (string, error) {
	var row models.SetupToken
	err := i.db.Where("token_hash = ?", security.HashToken(token)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("look up setup token: %w", err)
	}

	now := time.Now()
	if row.Expired(now) {
		return "", ErrTokenExpired
	}
	if row.Used {
		return "", ErrTokenAlreadyUsed
	}

	res := i.db.Model(&models.SetupToken{}).
		Where("id = ? AND used = ?", row.ID, false).
		Updates(map[string]interface{}{
			"used":    true,
			"used_at": &now,
		})
	if res.Error != nil {
		return "", fmt.Errorf("redeem setup token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race against a concurrent redemption.
		return "", ErrTokenAlreadyUsed
	}

	secret, err := security.DecryptSecret(i.key, row.SecretCiphertext, row.SecretNonce)
	if err != nil {
		return "", fmt.Errorf("decrypt session secret: %w", err)
	}

	if err := i.db.Model(&models.Install{}).
		Where("id = ? AND status = ?", row.InstallID, models.InstallStatusSetupPending).
		Updates(map[string]interface{}{
			"status":       models.InstallStatusActive,
			"activated_at": &now,
			"updated_at":   now,
		}).Error; err != nil {
		return "", fmt.Errorf("activate install %d: %w", row.InstallID, err)
	}

	return string(secret), nil
}

// SetupURL formats the external setup link for a freshly issued token. The
// token is already URL-safe base64.
func SetupURL(baseURL, token string) string {
	return fmt.Sprintf("%s/setup/%s", strings.TrimRight(baseURL, "/"), token)
}
