// Package auth registers and verifies users on top of the ledger's account store.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sheikh-saqib/token-ledger/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid user name or password")
	ErrMissingCredentials = errors.New("auth: user name and password are required")
	ErrPasswordTooLong    = errors.New("auth: password longer than 72 bytes")
)

// AccountOpener is the part of the ledger that registration needs.
type AccountOpener interface {
	OpenAccount(ctx context.Context, userName, passwordHash string) (models.Account, error)
	AccountByUserName(ctx context.Context, userName string) (models.Account, error)
}

const maxPasswordBytes = 72

type Service struct {
	accounts AccountOpener
	cost     int
	logger   zerolog.Logger
}

func NewService(accounts AccountOpener, logger zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		cost:     bcrypt.DefaultCost,
		logger:   logger,
	}
}

// WithCost changes the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register hashes the password and opens a zero-balance account.
func (s *Service) Register(ctx context.Context, userName, password string) (models.Account, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return models.Account{}, ErrMissingCredentials
	}

	// bcrypt only reads the first 72 bytes
	if len(password) > maxPasswordBytes {
		return models.Account{}, ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return models.Account{}, ErrPasswordTooLong
	}
	if err != nil {
		return models.Account{}, err
	}
	return s.accounts.OpenAccount(ctx, userName, string(hash))
}

// Login returns the account when the password matches.
func (s *Service) Login(ctx context.Context, userName, password string) (models.Account, error) {
	account, err := s.accounts.AccountByUserName(ctx, strings.TrimSpace(userName))
	if errors.Is(err, models.ErrNotFound) {
		return models.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("user_name", account.UserName).Msg("Password mismatch")
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}
