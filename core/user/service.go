package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrEmailExists    = errors.New("this email is already in use")
	errBadCredentials = errors.New("email or password is incorrect")
	errInviteCode     = "invalid invitation code"
)

type (
	Repository interface {
		// CreateUser assigns an ID to usr and persists it. Returns ErrEmailExists on duplicate email.
		CreateUser(ctx context.Context, usr User) (User, error)
		// GetUser returns ErrNotFound when no user matches.
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		QueryUsers(ctx context.Context, filter Filter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		EmailExists(ctx context.Context, email string) (bool, error)
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter Filter) ([]User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		tokens  *tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// Validate cleans nu then checks the struct tags, the invitation code and the email domain of the role.
func (nu *NewUser) Validate(validate *validator.Validate, conf *core.Config) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	if nu.InviteCode != conf.InviteCode {
		return core.NewValidationError(nil, core.FieldError{Field: "inviteCode", Error: errInviteCode})
	}
	switch nu.Role {
	case RoleStudent:
		if !strings.HasSuffix(nu.Email, conf.StudentEmailDomain) {
			return core.NewValidationError(nil, core.FieldError{
				Field: "email",
				Error: "student email must have the domain " + conf.StudentEmailDomain,
			})
		}
	case RoleTeacher:
		if !strings.HasSuffix(nu.Email, conf.TeacherEmailDomain) {
			return core.NewValidationError(nil, core.FieldError{
				Field: "email",
				Error: "teacher email must have the domain " + conf.TeacherEmailDomain,
			})
		}
	}
	return nil
}

func (data *ResetUserPassword) Validate(validate *validator.Validate) error {
	data.UID = strings.TrimSpace(data.UID)
	data.Token = strings.TrimSpace(data.Token)
	return validate.Struct(data)
}

func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	exists, err := svc.repo.EmailExists(ctx, nu.Email)
	if err != nil {
		return User{}, errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}

	now := NowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Surname:   nu.Surname,
		Email:     nu.Email,
		Course:    nu.Course,
		GroupNo:   nu.GroupNo,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	if usr, err = svc.repo.CreateUser(ctx, usr); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{usr.Address()},
		Subject:      "Registration Successful",
		TemplateName: "registration",
		TemplateData: map[string]interface{}{"Name": usr.Name, "Surname": usr.Surname},
	})
	return usr, nil
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, core.NewValidationError(errBadCredentials)
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, core.NewValidationError(errBadCredentials)
	}

	usr.LastLogin = NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter Filter) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{usr.Address()},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{"Name": usr.Name, "UID": EncodeUID(usr), "Token": token},
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errInvalidToken)

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return invalidErr
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
