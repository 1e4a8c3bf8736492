package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/saatphere/saatphere/internal/auth/audit"
	"github.com/saatphere/saatphere/internal/auth/domain"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/cryptox"
	"github.com/saatphere/saatphere/pkg/slogx"
)

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"

	minPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,64}$`)

type RegistrationService struct {
	Store store.Store
	Audit *audit.Recorder
}

// Registration is one account to create. Password may be empty during bulk
// import, in which case a temporary password is generated and returned.
type Registration struct {
	Username string
	Password string
}

// Result reports one created account. TempPassword is set only when the
// password was generated.
type Result struct {
	Principal    domain.Principal
	TempPassword string
}

// Register creates an account. The bulk flag marks an admin-driven import:
// password policy is relaxed and a temporary password is generated when none
// is supplied. Self-registration always enforces the policy.
func (s *RegistrationService) Register(ctx context.Context, reg Registration, bulk bool) (Result, error) {
	if !usernamePattern.MatchString(reg.Username) {
		return Result{}, ErrInvalidCredentials
	}

	password := reg.Password
	var tempPassword string
	if bulk && password == "" {
		generated, err := cryptox.GeneratePassword()
		if err != nil {
			return Result{}, err
		}
		password, tempPassword = generated, generated
	}
	if !bulk && len(password) < minPasswordLength {
		return Result{}, ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return Result{}, err
	}

	p := domain.Principal{
		Username:     reg.Username,
		PasswordHash: hash,
		Authorities:  []string{RoleUser},
		Enabled:      true,
	}

	id, err := s.Store.Principals().Create(ctx, p)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Result{}, ErrUsernameTaken
		}
		return Result{}, err
	}
	p.ID = id
	p.CreatedAt = time.Now().UTC()

	op := audit.OpRegister
	if bulk {
		op = audit.OpBulkRegister
	}
	s.Audit.Record(ctx, op, &p.ID, "username="+p.Username)

	return Result{Principal: p, TempPassword: tempPassword}, nil
}

// RegisterBatch creates many accounts in one transaction. Either every
// account is created or none are.
func (s *RegistrationService) RegisterBatch(ctx context.Context, regs []Registration) ([]Result, error) {
	results := make([]Result, 0, len(regs))

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, reg := range regs {
			if !usernamePattern.MatchString(reg.Username) {
				return ErrInvalidCredentials
			}

			password := reg.Password
			var tempPassword string
			if password == "" {
				generated, err := cryptox.GeneratePassword()
				if err != nil {
					return err
				}
				password, tempPassword = generated, generated
			}

			hash, err := cryptox.HashPassword(password)
			if err != nil {
				return err
			}

			p := domain.Principal{
				Username:     reg.Username,
				PasswordHash: hash,
				Authorities:  []string{RoleUser},
				Enabled:      true,
			}
			id, err := tx.Principals().Create(ctx, p)
			if err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return ErrUsernameTaken
				}
				return err
			}
			p.ID = id

			results = append(results, Result{Principal: p, TempPassword: tempPassword})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		id := r.Principal.ID
		s.Audit.Record(ctx, audit.OpBulkRegister, &id, "username="+r.Principal.Username)
	}
	return results, nil
}

// EnsureAdmin creates the bootstrap admin account on a fresh database. It is
// a no-op when any principal already exists.
func (s *RegistrationService) EnsureAdmin(ctx context.Context, username, password string) error {
	log := slogx.FromContext(ctx)

	empty, err := s.Store.Principals().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}

	id, err := s.Store.Principals().Create(ctx, domain.Principal{
		Username:     username,
		PasswordHash: hash,
		Authorities:  []string{RoleAdmin, RoleUser},
		Enabled:      true,
	})
	if err != nil {
		return err
	}

	log.Info("bootstrap admin created", "username", username, "id", id)
	return nil
}

// ChangePassword verifies the current password before replacing it. The
// caller is expected to clear the account's sessions afterwards so tokens
// issued under the old password stop working.
func (s *RegistrationService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	p, err := s.Store.Principals().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(current, p.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.Store.Principals().UpdatePasswordHash(ctx, id, hash); err != nil {
		return err
	}

	s.Audit.Record(ctx, audit.OpPasswordChanged, &id, "")
	return nil
}

// AttachProfile links an account to its matrimonial profile. Tokens minted
// after this carry the profile id claim.
func (s *RegistrationService) AttachProfile(ctx context.Context, id, profileID int64) error {
	if err := s.Store.Principals().SetProfileID(ctx, id, profileID); err != nil {
		return err
	}
	s.Audit.Record(ctx, audit.OpProfileAttached, &id, "")
	return nil
}

// Disable suspends an account and clears nothing else; outstanding tokens die
// at the next validation because Refresh and Login both check the flag.
func (s *RegistrationService) Disable(ctx context.Context, id int64) error {
	if err := s.Store.Principals().SetEnabled(ctx, id, false); err != nil {
		return err
	}
	s.Audit.Record(ctx, audit.OpAccountDisabled, &id, "")
	return nil
}
