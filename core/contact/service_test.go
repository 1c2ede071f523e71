package contact_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/contact"
	emailsvc "github.com/codeedu/lms/services/email"
	logsvc "github.com/codeedu/lms/services/logger"
)

func setup(t *testing.T, window time.Duration) (contact.Service, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Contact.Window = window
	conf.Email.ContactReceiver = "contact@code.edu.az"

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	core.ParseEmailTemplates(conf, logger)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ResetSentMessages()
	return contact.NewService(mailSvc, validate, conf), mailSvc
}

func validForm() contact.Form {
	return contact.Form{
		Name:        "Aysel",
		Surname:     "Mammadova",
		Email:       "Aysel@Example.com ",
		PhoneNumber: "+994 50 000 00 00",
		Message:     "I would like to enroll.",
	}
}

func TestService_Submit(t *testing.T) {
	svc, _ := setup(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, validForm()))

	msgs := emailsvc.GetSentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "New Form Information", msgs[0].Subject)
	assert.Equal(t, "contact@code.edu.az", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "aysel@example.com")
	assert.Contains(t, msgs[0].TextContent, "I would like to enroll.")

	// same email & phone inside the window
	err := svc.Submit(ctx, validForm())
	assert.Equal(t, contact.ErrDuplicate, err)
	assert.Len(t, emailsvc.GetSentMessages(), 1)

	// another phone number is a new submission
	other := validForm()
	other.PhoneNumber = "+994 55 111 11 11"
	require.NoError(t, svc.Submit(ctx, other))
	assert.Len(t, emailsvc.GetSentMessages(), 2)
}

func TestService_Submit_windowExpires(t *testing.T) {
	svc, _ := setup(t, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, validForm()))
	assert.Equal(t, contact.ErrDuplicate, svc.Submit(ctx, validForm()))

	time.Sleep(150 * time.Millisecond)
	assert.NoError(t, svc.Submit(ctx, validForm()))
}

func TestService_Submit_invalid(t *testing.T) {
	svc, _ := setup(t, time.Minute)

	tests := []struct {
		name  string
		alter func(f *contact.Form)
	}{
		{name: "blank name", alter: func(f *contact.Form) { f.Name = "  " }},
		{name: "bad email", alter: func(f *contact.Form) { f.Email = "not-an-email" }},
		{name: "missing phone", alter: func(f *contact.Form) { f.PhoneNumber = "" }},
		{name: "missing message", alter: func(f *contact.Form) { f.Message = "\n" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.alter(&form)
			err := svc.Submit(context.Background(), form)
			var verrs validator.ValidationErrors
			assert.True(t, errors.As(err, &verrs), "got %v", err)
		})
	}
	assert.Empty(t, emailsvc.GetSentMessages())
}

func TestService_Submit_transportFailure(t *testing.T) {
	svc, mailSvc := setup(t, time.Minute)
	mailSvc.Fail(errors.New("boom"))

	err := svc.Submit(context.Background(), validForm())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, emailsvc.GetSentMessages())
}
