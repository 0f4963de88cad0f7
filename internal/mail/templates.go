package mail

import (
	"bytes"
	"text/template"
	"time"
)

// VerificationData fills the verification template.
type VerificationData struct {
	Username  string
	Code      string
	ExpiresAt time.Time
	VerifyURL string
}

const verificationSubject = "Anonify verification code"

var verificationTmpl = template.Must(template.New("verification").Parse(`Hello {{.Username}},

Thank you for registering. Please use the following verification code to
complete your registration:

    {{.Code}}

The code expires at {{.ExpiresAt.UTC.Format "2006-01-02 15:04 MST"}}.
{{if .VerifyURL}}
You can also enter it at {{.VerifyURL}}
{{end}}
If you did not request this code, please ignore this email.
`))

// VerificationEmail renders the subject and body of a verification message.
func VerificationEmail(data VerificationData) (string, string, error) {
	var buf bytes.Buffer
	if err := verificationTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return verificationSubject, buf.String(), nil
}
