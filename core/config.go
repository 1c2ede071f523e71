package core

import (
	"log"
	"net"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database engines
const (
	EngineBolt     = "bolt"
	EngineMongo    = "mongo"
	EnginePostgres = "postgres"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		User          string
		Password      string
		Name          string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // bolt file
		URI           string // mongo connection string
		DisableTx     bool   // mongo standalone servers have no transactions
		Timeout       time.Duration
	}

	EmailConfig struct {
		SendgridAPIKey   string
		DefaultFromEmail string
		ContactReceiver  string
	}

	OutboxConfig struct {
		PollInterval time.Duration
		BatchSize    int
		MaxAttempts  int
		RetryBackoff time.Duration
	}

	ContactConfig struct {
		Window   time.Duration
		Capacity int
	}

	Config struct {
		Debug                     bool
		TestMode                  bool
		Env                       string
		Build                     string
		AppName                   string
		SecretKey                 string
		InviteCode                string
		RollbarToken              string
		FrontendBaseURL           string
		StudentEmailDomain        string
		TeacherEmailDomain        string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Email    EmailConfig
		Outbox   OutboxConfig
		Contact  ContactConfig
	}
)

// Address returns the "host:port" pair of the SQL server.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// MongoURI returns the configured URI, or builds one from the host settings.
func (dc DatabaseConfig) MongoURI() string {
	if dc.URI != "" {
		return dc.URI
	}
	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(dc.Host, "27017")}
	if dc.User != "" {
		u.User = url.UserPassword(dc.User, dc.Password)
	}
	return u.String()
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Email.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.Email.DefaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "CodeEdu")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("inviteCode", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("studentEmailDomain", "@code.edu.az")
	v.SetDefault("teacherEmailDomain", "@gmail.com")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":5010")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", EngineMongo)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "codeedu")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", filepath.Join("data", "codeedu.db"))
	v.SetDefault("database.uri", "")
	v.SetDefault("database.disableTx", false)
	v.SetDefault("database.timeout", 10*time.Second)

	v.SetDefault("email.sendgridAPIKey", "")
	v.SetDefault("email.defaultFromEmail", "noreply@localhost")
	v.SetDefault("email.contactReceiver", "contact@localhost")

	v.SetDefault("outbox.pollInterval", 2*time.Second)
	v.SetDefault("outbox.batchSize", 50)
	v.SetDefault("outbox.maxAttempts", 5)
	v.SetDefault("outbox.retryBackoff", 30*time.Second)

	v.SetDefault("contact.window", time.Minute)
	v.SetDefault("contact.capacity", 10000)
}

// NewConfig loads the configuration of the current environment.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
// Values are read from `config/.env.<env>` (if it exists) and from <ENV>_* environment variables,
// e.g. DEV_DATABASE_ENGINE=bolt.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		Env:                       env,
		Build:                     v.GetString("build"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		InviteCode:                v.GetString("inviteCode"),
		RollbarToken:              v.GetString("rollbarToken"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		StudentEmailDomain:        v.GetString("studentEmailDomain"),
		TeacherEmailDomain:        v.GetString("teacherEmailDomain"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			Name:          v.GetString("database.name"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
			URI:           v.GetString("database.uri"),
			DisableTx:     v.GetBool("database.disableTx"),
			Timeout:       v.GetDuration("database.timeout"),
		},
		Email: EmailConfig{
			SendgridAPIKey:   v.GetString("email.sendgridAPIKey"),
			DefaultFromEmail: v.GetString("email.defaultFromEmail"),
			ContactReceiver:  v.GetString("email.contactReceiver"),
		},
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("outbox.pollInterval"),
			BatchSize:    v.GetInt("outbox.batchSize"),
			MaxAttempts:  v.GetInt("outbox.maxAttempts"),
			RetryBackoff: v.GetDuration("outbox.retryBackoff"),
		},
		Contact: ContactConfig{
			Window:   v.GetDuration("contact.window"),
			Capacity: v.GetInt("contact.capacity"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: debug off, TEST mode, bolt engine.
func NewTestConfig() *Config {
	_ = os.Setenv("ENV", "TEST")
	conf := NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "secret"
	conf.InviteCode = "invite"
	conf.Database.Engine = EngineBolt
	return conf
}
