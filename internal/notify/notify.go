// Package notify composes the emails the gateway sends and defines the
// Dispatcher that delivers them. Delivery mechanics live in
// internal/platform/mailer.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"
)

// ErrInvalidMessage is returned when a message has no recipient or subject.
var ErrInvalidMessage = errors.New("invalid notification message")

// Attachment is a file sent along with a message.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Message is a single HTML email.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Validate checks that the message can be delivered.
func (m Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	return nil
}

// Dispatcher delivers a message exactly once per call. It does not retry.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// OTPMessage builds the email carrying a one-time code.
func OTPMessage(to, code string, ttl time.Duration) (Message, error) {
	body, err := render("otp.html", struct {
		Code       string
		TTLMinutes int
		Year       int
	}{code, int(ttl.Minutes()), time.Now().Year()})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       to,
		Subject:  "VietGuardScan - Mã xác thực OTP",
		HTMLBody: body,
	}, nil
}

// Report describes a finished scan.
type Report struct {
	TaskID       string
	FileName     string
	ArtifactName string
	// DownloadURL is an optional signed link to the same artifact.
	DownloadURL string
	ExpiresAt   time.Time
}

// ReportMessage builds the completion email with the artifact attached.
func ReportMessage(to string, r Report, artifact Attachment) (Message, error) {
	expires := ""
	if !r.ExpiresAt.IsZero() {
		expires = r.ExpiresAt.Format("02/01/2006 15:04 MST")
	}
	body, err := render("report.html", struct {
		Report
		ExpiresAt string
		Year      int
	}{r, expires, time.Now().Year()})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:          to,
		Subject:     fmt.Sprintf("VietGuardScan - Báo cáo quét hoàn tất (Task ID: %s)", r.TaskID),
		HTMLBody:    body,
		Attachments: []Attachment{artifact},
	}, nil
}

// FailureMessage builds the email sent when a scan fails.
func FailureMessage(to, taskID, fileName string) (Message, error) {
	body, err := render("failure.html", struct {
		TaskID   string
		FileName string
		Year     int
	}{taskID, fileName, time.Now().Year()})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("VietGuardScan - Quét không thành công (Task ID: %s)", taskID),
		HTMLBody: body,
	}, nil
}
