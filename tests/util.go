package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/contact"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
	emailsvc "github.com/codeedu/lms/services/email"
	logsvc "github.com/codeedu/lms/services/logger"
	"github.com/codeedu/lms/storage/database"
	boltrepos "github.com/codeedu/lms/storage/database/bolt"
)

// Password satisfies every password rule.
const Password = "Sup3r-S3cret!"

// PrepareStore opens a fresh bolt database in a temporary directory, closed with the test.
func PrepareStore(t *testing.T) *database.Repositories {
	t.Helper()
	store, err := boltrepos.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("PrepareStore() failed: %v", err)
	}
	repos := database.NewBoltRepositories(store)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

// NewLogger returns a logger discarding its output, with remote reporting off.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every custom rule registered, and the translator of its messages.
func NewValidator(logger core.Logger) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	assignment.InitValidators(validate, translator)
	return validate, translator
}

// App holds every service wired over a fresh bolt store and a mock mailer.
// Its dispatcher is not running: tests call Dispatcher.Flush to deliver the outbox.
type App struct {
	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	Repos         *database.Repositories
	MailSvc       *emailsvc.ConsoleServiceMock
	Dispatcher    *notification.Dispatcher
	Users         user.Service
	Groups        group.Service
	Assignments   assignment.Service
	Notifications notification.Service
	Contact       contact.Service
}

func NewApp(t *testing.T, conf *core.Config) *App {
	t.Helper()
	logger := NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	validate, translator := NewValidator(logger)
	repos := PrepareStore(t)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ResetSentMessages()

	dispatcher := notification.NewDispatcher(repos.Outbox, repos.Notifications, repos.Tx, mailSvc, logger, conf)
	usrSvc := user.NewService(repos.Users, mailSvc, conf)
	grpSvc := group.NewService(repos.Groups, validate)
	return &App{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		Repos:         repos,
		MailSvc:       mailSvc,
		Dispatcher:    dispatcher,
		Users:         usrSvc,
		Groups:        grpSvc,
		Assignments:   assignment.NewService(repos.Assignments, usrSvc, grpSvc, dispatcher, repos.Tx, validate),
		Notifications: notification.NewService(repos.Notifications, usrSvc, repos.Tx, validate),
		Contact:       contact.NewService(mailSvc, validate, conf),
	}
}

// Flush delivers every due outbox intent.
func (app *App) Flush(t *testing.T) int {
	t.Helper()
	n, err := app.Dispatcher.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	return n
}

func CreateUser(t *testing.T, repo user.Repository, name, surname, email, role, course, groupNo string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Surname:   surname,
		Email:     email,
		Role:      role,
		Course:    course,
		GroupNo:   groupNo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, name, email, course, groupNo string) user.User {
	return CreateUser(t, repo, name, "Student", email, user.RoleStudent, course, groupNo)
}

func CreateTeacher(t *testing.T, repo user.Repository, name, email, course string) user.User {
	return CreateUser(t, repo, name, "Teacher", email, user.RoleTeacher, course, "")
}

func CreateGroup(t *testing.T, repo group.Repository, course, groupNo string) group.Group {
	t.Helper()
	now := time.Now().UTC()
	grp, err := repo.CreateGroup(context.Background(), group.Group{Course: course, GroupNo: groupNo, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return grp
}

// CreateAssignment stores an assignment directly, without notifying anyone.
func CreateAssignment(t *testing.T, repo assignment.Repository, teacher user.User, title, groupNo string, deadline time.Time) assignment.Assignment {
	t.Helper()
	now := time.Now().UTC()
	a, err := repo.CreateAssignment(context.Background(), assignment.Assignment{
		Title:     title,
		Deadline:  deadline.UTC(),
		Course:    teacher.Course,
		GroupNo:   groupNo,
		TeacherID: teacher.ID,
		Status:    assignment.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}
