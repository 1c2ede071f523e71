// Package contact forwards the public contact form to the site owners.
package contact

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
)

var ErrDuplicate = core.NewRateLimitError("this information has already been submitted, please try again after 1 minute")

type Form struct {
	Name        string `json:"name" validate:"required,notblank"`
	Surname     string `json:"surname" validate:"required,notblank"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required,notblank,max=32"`
	Message     string `json:"message" validate:"required,notblank,max=5000"`
}

func (f *Form) Clean() {
	f.Name = core.CleanString(f.Name)
	f.Surname = core.CleanString(f.Surname)
	f.Email = core.CleanString(f.Email, true /* lower */)
	f.PhoneNumber = core.CleanString(f.PhoneNumber)
	f.Message = strings.TrimSpace(f.Message)
}

func (f Form) fingerprint() string {
	return f.Email + "-" + f.PhoneNumber
}

type Service interface {
	Submit(ctx context.Context, form Form) error
}

type service struct {
	mailSvc  core.EmailService
	validate *validator.Validate
	receiver mail.Address
	seen     *expirable.LRU[string, time.Time]
}

var _ Service = (*service)(nil)

// NewService returns a Service refusing the same (email, phone) pair twice within conf.Contact.Window.
// At most conf.Contact.Capacity fingerprints are remembered; the oldest are evicted first.
func NewService(mailSvc core.EmailService, validate *validator.Validate, conf *core.Config) Service {
	window := conf.Contact.Window
	if window <= 0 {
		window = time.Minute
	}
	capacity := conf.Contact.Capacity
	if capacity <= 0 {
		capacity = 10000
	}
	return &service{
		mailSvc:  mailSvc,
		validate: validate,
		receiver: mail.Address{Name: conf.AppName, Address: conf.Email.ContactReceiver},
		seen:     expirable.NewLRU[string, time.Time](capacity, nil, window),
	}
}

func (svc *service) Submit(ctx context.Context, form Form) error {
	form.Clean()
	if err := svc.validate.Struct(form); err != nil {
		return err
	}

	key := form.fingerprint()
	if _, ok := svc.seen.Get(key); ok {
		return ErrDuplicate
	}
	svc.seen.Add(key, time.Now())

	err := svc.mailSvc.Send(ctx, &core.EmailMessage{
		To:           []mail.Address{svc.receiver},
		Subject:      "New Form Information",
		TemplateName: "contact_form",
		TemplateData: map[string]interface{}{
			"Name":        form.Name,
			"Surname":     form.Surname,
			"Email":       form.Email,
			"PhoneNumber": form.PhoneNumber,
			"Message":     form.Message,
		},
	})
	return errors.Wrap(err, "sending contact form")
}
