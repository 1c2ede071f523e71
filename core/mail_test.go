package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeedu/lms/core"
)

type errorLogger struct {
	errors []string
}

func (l *errorLogger) Debug(string, ...interface{}) {}
func (l *errorLogger) Info(string, ...interface{}) {}
func (l *errorLogger) Warn(string, ...interface{}) {}
func (l *errorLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}
func (l *errorLogger) Fatal(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func TestParseEmailTemplates(t *testing.T) {
	conf := core.NewTestConfig()
	logger := &errorLogger{}
	core.ParseEmailTemplates(conf, logger)
	require.Empty(t, logger.errors)
}

func TestEmailMessage_Render(t *testing.T) {
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(conf, &errorLogger{})

	t.Run("template", func(t *testing.T) {
		msg := &core.EmailMessage{
			TemplateName: "assignment_created",
			TemplateData: map[string]interface{}{
				"RecipientName": "Bob",
				"Title":         "HW1",
				"Deadline":      "2099-01-01 00:00",
			},
		}
		require.NoError(t, msg.Render())
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Dear Bob,")
		assert.Contains(t, msg.TextContent, `A new task "HW1" has been added.`)
		assert.Contains(t, msg.TextContent, "Deadline: 2099-01-01 00:00")
		assert.Contains(t, msg.TextContent, conf.FrontendBaseURL)
		assert.Contains(t, msg.HTMLContent, "<b>HW1</b>")
	})

	t.Run("body string", func(t *testing.T) {
		msg := &core.EmailMessage{BodyStr: "plain"}
		require.NoError(t, msg.Render())
		assert.Equal(t, "plain", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &core.EmailMessage{TemplateName: "does_not_exist"}
		assert.Error(t, msg.Render())
		assert.False(t, msg.HasContent())
	})
}
