package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated seed password.
const seedPasswordBytes = 16

// SeedAccount describes an account created on first boot.
type SeedAccount struct {
	Username string
	Email    string
	Password string
	UserType UserType
}

// SeedAccounts creates every seed account that does not exist yet and binds
// it to its user type's default role. Accounts without a configured password
// get a random one, logged once; it must be changed immediately.
// Returns the generated passwords by username.
func SeedAccounts(ctx context.Context, accounts AccountRepository, seeds []SeedAccount, defaults map[UserType]string, logger *slog.Logger) (map[string]string, error) {
	generated := make(map[string]string)

	for _, seed := range seeds {
		_, err := accounts.GetByIdentifier(ctx, seed.Username)
		if err == nil {
			logger.Debug("seed account exists, skipping", "username", seed.Username)
			continue
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("checking seed account %s: %w", seed.Username, err)
		}

		password := seed.Password
		if password == "" {
			passwordBytes := make([]byte, seedPasswordBytes)
			if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
				return nil, fmt.Errorf("generating seed password: %w", err)
			}
			password = hex.EncodeToString(passwordBytes)
			generated[seed.Username] = password
		}

		hash, err := HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hashing seed password: %w", err)
		}

		account := &Account{
			Username:     seed.Username,
			Email:        seed.Email,
			PasswordHash: hash,
			UserType:     seed.UserType,
			IsActive:     true,
		}
		var roles []string
		if code, ok := defaults[seed.UserType]; ok {
			roles = append(roles, code)
		}
		if err := accounts.Create(ctx, account, roles...); err != nil {
			return nil, fmt.Errorf("creating seed account %s: %w", seed.Username, err)
		}

		if _, ok := generated[seed.Username]; ok {
			logger.Warn("seed account created with generated password",
				"username", seed.Username,
				"initial_password", password,
				"action_required", "change this password immediately",
			)
		} else {
			logger.Info("seed account created", "username", seed.Username, "user_type", seed.UserType)
		}
	}

	return generated, nil
}
