package mail

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/pkg/config"
	"github.com/anonify/anonify/pkg/logger"
)

func TestVerificationEmailRendersCode(t *testing.T) {
	subject, body, err := VerificationEmail(VerificationData{
		Username:  "alice",
		Code:      "482913",
		ExpiresAt: time.Date(2025, time.March, 1, 13, 0, 0, 0, time.UTC),
		VerifyURL: "http://localhost:3000/verify/alice",
	})
	require.NoError(t, err)
	assert.Equal(t, verificationSubject, subject)
	assert.Contains(t, body, "Hello alice")
	assert.Contains(t, body, "482913")
	assert.Contains(t, body, "2025-03-01 13:00 UTC")
	assert.Contains(t, body, "http://localhost:3000/verify/alice")
}

func TestLogDispatcherHidesBodyByDefault(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(logger.NewWithWriter(&buf, "test", slog.LevelInfo), false)
	require.NoError(t, d.Send(context.Background(), "a@example.com", "subj", "secret 123456"))
	assert.Contains(t, buf.String(), "a@example.com")
	assert.NotContains(t, buf.String(), "123456")

	buf.Reset()
	d = NewLogDispatcher(logger.NewWithWriter(&buf, "test", slog.LevelInfo), true)
	require.NoError(t, d.Send(context.Background(), "a@example.com", "subj", "secret 123456"))
	assert.Contains(t, buf.String(), "123456")
}

func TestFromConfigFallsBackToLog(t *testing.T) {
	d, err := FromConfig(config.APIConfig{SMTPHost: "smtp.example.com"}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &LogDispatcher{}, d)
}

func TestFromConfigBuildsSMTP(t *testing.T) {
	d, err := FromConfig(config.APIConfig{
		SMTPHost:     "smtp.example.com:465",
		SMTPUser:     "user",
		SMTPPassword: "pass",
		MailFrom:     "Anonify <noreply@example.com>",
	}, logger.Discard())
	require.NoError(t, err)
	smtp, ok := d.(*SMTP)
	require.True(t, ok)
	assert.Equal(t, "noreply@example.com", smtp.mailAddress)
	assert.Equal(t, "Anonify", smtp.mailName)
}
