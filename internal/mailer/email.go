package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = map[string]*template.Template{}

func init() {
	for _, name := range []string{"welcome", "passwordReset", "bookingConfirmation"} {
		templates[name] = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html"))
	}
}

const (
	SubjectWelcome             = "Welcome to the natours family!"
	SubjectPasswordReset       = "Your password reset token (valid for only 10 minutes)"
	SubjectBookingConfirmation = "Your tour booking is confirmed!"
)

// Email addresses one user.  URL is the call to action of the message.
type Email struct {
	To        string
	Name      string
	FirstName string
	URL       string

	m Mailer
}

func NewEmail(m Mailer, to, name, url string) *Email {
	first := strings.TrimSpace(name)
	if fields := strings.Fields(first); len(fields) > 0 {
		first = fields[0]
	}
	return &Email{To: to, Name: name, FirstName: first, URL: url, m: m}
}

type templateData struct {
	Subject   string
	FirstName string
	URL       string
	TourName  string
	Price     string
}

func (e *Email) send(ctx context.Context, name, subject, text string, extra templateData) error {
	data := extra
	data.Subject = subject
	data.FirstName = e.FirstName
	data.URL = e.URL

	var html bytes.Buffer
	if err := templates[name].ExecuteTemplate(&html, "base", data); err != nil {
		return fmt.Errorf("render %s email: %w", name, err)
	}
	return e.m.Send(ctx, Message{
		To:      e.To,
		ToName:  e.Name,
		Subject: subject,
		Text:    text,
		HTML:    html.String(),
	})
}

func (e *Email) SendWelcome(ctx context.Context) error {
	text := fmt.Sprintf("Hi %s,\n\nWelcome to Natours, we're glad to have you!\nUpload your user photo here: %s\n", e.FirstName, e.URL)
	return e.send(ctx, "welcome", SubjectWelcome, text, templateData{})
}

func (e *Email) SendPasswordReset(ctx context.Context) error {
	text := fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\nIf you didn't forget your password, please ignore this email!\n", e.FirstName, e.URL)
	return e.send(ctx, "passwordReset", SubjectPasswordReset, text, templateData{})
}

func (e *Email) SendBookingConfirmation(ctx context.Context, tourName string, price float64) error {
	amount := fmt.Sprintf("$%.2f", price)
	text := fmt.Sprintf("Hi %s,\n\nThanks for booking %s. We received your payment of %s.\nSee your bookings: %s\n", e.FirstName, tourName, amount, e.URL)
	return e.send(ctx, "bookingConfirmation", SubjectBookingConfirmation, text, templateData{TourName: tourName, Price: amount})
}
