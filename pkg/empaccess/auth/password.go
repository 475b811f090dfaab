package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// ErrInvalidCredentials is returned for an unknown account or a wrong password.
var ErrInvalidCredentials = errors.New("invalid account or password")

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with its bcrypt hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticator verifies an account's credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, account identity.Account, password string) error
}

// CredentialAuthenticator checks passwords against locally stored bcrypt hashes.
type CredentialAuthenticator struct {
	db *gorm.DB
}

// NewCredentialAuthenticator creates an authenticator over the credentials table.
func NewCredentialAuthenticator(db *gorm.DB) *CredentialAuthenticator {
	return &CredentialAuthenticator{db: db}
}

func (a *CredentialAuthenticator) Authenticate(ctx context.Context, account identity.Account, password string) error {
	var cred models.Credential
	if err := a.db.WithContext(ctx).Where("account = ?", account.String()).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !CheckPassword(password, cred.PasswordHash) {
		return ErrInvalidCredentials
	}
	return nil
}

// SetPassword creates or replaces the account's local credential.
func SetPassword(ctx context.Context, db *gorm.DB, account identity.Account, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cred models.Credential
		err := tx.Where("account = ?", account.String()).First(&cred).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.Credential{Account: account.String(), PasswordHash: hash}).Error
		case err != nil:
			return err
		}
		return tx.Model(&cred).Update("password_hash", hash).Error
	})
}
