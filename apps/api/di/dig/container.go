package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/codeedu/lms/apps/api/echo"
	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/contact"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
	emailsvc "github.com/codeedu/lms/services/email"
	logsvc "github.com/codeedu/lms/services/logger"
	"github.com/codeedu/lms/storage/database"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Stores exposes each repository of the opened engine to the container.
type Stores struct {
	dig.Out
	Users         user.Repository
	Groups        group.Repository
	Assignments   assignment.Repository
	Notifications notification.Repository
	Outbox        notification.OutboxRepository
	Tx            core.Transactor
}

type ServerParam struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       user.Service
	GroupSvc      group.Service
	AssignmentSvc assignment.Service
	NotifSvc      notification.Service
	ContactSvc    contact.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) *database.Repositories {
	setUp := func() (*database.Repositories, error) {
		if conf.Database.Engine == core.EnginePostgres {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
		}
		return database.NewRepositories(context.Background(), conf)
	}

	repos, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return repos
}

func newStores(repos *database.Repositories) Stores {
	return Stores{
		Users:         repos.Users,
		Groups:        repos.Groups,
		Assignments:   repos.Assignments,
		Notifications: repos.Notifications,
		Outbox:        repos.Outbox,
		Tx:            repos.Tx,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newEnqueuer(d *notification.Dispatcher) notification.Enqueuer {
	return d
}

func newServer(p ServerParam) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		GroupSvc:      p.GroupSvc,
		AssignmentSvc: p.AssignmentSvc,
		NotifSvc:      p.NotifSvc,
		ContactSvc:    p.ContactSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newStores))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(group.NewService))
	must(c.Provide(notification.NewDispatcher))
	must(c.Provide(newEnqueuer))
	must(c.Provide(assignment.NewService))
	must(c.Provide(notification.NewService))
	must(c.Provide(contact.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
