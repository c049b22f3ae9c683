package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func testConfig() *core.Config {
	return &core.Config{
		AppName:          "Kiongozi",
		TestMode:         true,
		DefaultFromEmail: mail.Address{Name: "Kiongozi", Address: "noreply@kiongozi.test"},
		FrontendBaseURL:  "https://app.kiongozi.test",
		SendgridAPIKey:   "SG.test",
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := testConfig()
	core.ParseEmailTemplates(conf, nopLogger{})
	svc := NewConsoleServiceMock(conf, nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Amani", Address: "amani@kiongozi.test"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Amani", "UID": "uid123", "Token": "tok-456"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@kiongozi.test"}}, TemplateName: "unknown"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "Password Reset", msg.Subject)
	assert.Contains(t, msg.TextContent, "Hi Amani")
	assert.Contains(t, msg.TextContent, "https://app.kiongozi.test/password-reset/uid123/tok-456")
	assert.Contains(t, msg.HTMLContent, "https://app.kiongozi.test/password-reset/uid123/tok-456")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), nopLogger{})
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Amani", Address: "amani@kiongozi.test"}},
		Cc:          []mail.Address{{Address: "coach@kiongozi.test"}},
		Subject:     "Hello",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	})

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Kiongozi] Hello", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "amani@kiongozi.test", p.To[0].Address)
	require.Len(t, p.CC, 1)
	assert.Equal(t, "noreply@kiongozi.test", m.From.Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}
