package gateway

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

// SignUp registers an account and links every pending share already
// addressed to its email.
func (s *Service) SignUp(ctx context.Context, email, password string) (domain.User, error) {
	email, err := domain.ValidateEmail("email", email)
	if err != nil {
		return domain.User{}, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: string(hash),
		Verified:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}

	resolved, err := s.store.ResolveShares(ctx, email, u.ID)
	if err != nil {
		// the account exists; unlinked shares stay pending
		s.logger.WithField("user", u.ID).WithError(err).Error("resolve pending shares failed")
	}
	for _, sh := range resolved {
		s.logger.WithFields(log.Fields{"user": u.ID, "task": sh.TaskID}).Debug("pending share linked")
	}
	return u, nil
}

// SignIn checks credentials and returns the caller's identity.
func (s *Service) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return domain.Identity{}, domain.ErrInvalidCredentials
		}
		return domain.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.WithField("user", u.ID).WithError(err).Warn("stored password hash unusable")
		}
		return domain.Identity{}, domain.ErrInvalidCredentials
	}
	if !u.Verified {
		return domain.Identity{}, domain.ErrEmailNotVerified
	}
	return domain.Identity{UserID: u.ID, Email: u.Email}, nil
}

// CurrentUser returns the account behind an identity.
func (s *Service) CurrentUser(ctx context.Context, id domain.Identity) (domain.User, error) {
	if err := requireIdentity(id); err != nil {
		return domain.User{}, err
	}
	return s.store.UserByID(ctx, id.UserID)
}

// SignOut drops server-side state cached for the caller.
func (s *Service) SignOut(ctx context.Context, id domain.Identity) {
	if s.cache != nil && id.Authenticated() {
		s.cache.Evict(ctx, id.UserID)
	}
}
