package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/wneessen/go-mail"

	"github.com/mantisec/pkgwatch/monitor"
)

// ErrMailTransport wraps transient SMTP failures. The dispatcher retries
// these with backoff; email is best-effort and never blocks checkpoint
// advancement.
var ErrMailTransport = errors.New("mail transport error")

var mailBodyTemplate = pongo2.Must(pongo2.FromString(strings.TrimSpace(`
Malicious Package Report
-
Package Name: {{ name }}
Version: {{ version }}
Score: {{ score }}
Package URL: {{ package_url }}
Inspector URL: {{ inspector_url }}
Rules matched:
{% for rule in rules %}  - {{ rule }}
{% endfor %}`)))

// MailChannel sends the full, untruncated report over SMTP.
type MailChannel struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string

	// overridable for tests; defaults to SMTP delivery via go-mail
	send func(ctx context.Context, subject, body string) error
}

var _ Channel = (*MailChannel)(nil)

func NewMailChannel(host string, port int, username, password, from string, recipients []string) *MailChannel {
	c := &MailChannel{
		Host:       host,
		Port:       port,
		Username:   username,
		Password:   password,
		From:       from,
		Recipients: recipients,
	}
	c.send = c.smtpSend
	return c
}

func (c *MailChannel) Name() string {
	return "email"
}

func (c *MailChannel) Send(ctx context.Context, v *monitor.Verdict) error {
	body, err := RenderMailBody(v)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Malicious package report: %s v%s", v.Name, v.Version)
	return c.send(ctx, subject, body)
}

func (c *MailChannel) smtpSend(ctx context.Context, subject, body string) error {
	opts := []mail.Option{mail.WithPort(c.Port)}
	if c.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.Username),
			mail.WithPassword(c.Password),
		)
	}
	client, err := mail.NewClient(c.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMailTransport, err)
	}

	msg := mail.NewMsg()
	if err := msg.From(c.From); err != nil {
		return fmt.Errorf("%w: from address: %v", monitor.ErrChannelMisconfigured, err)
	}
	if err := msg.To(c.Recipients...); err != nil {
		return fmt.Errorf("%w: recipients: %v", monitor.ErrChannelMisconfigured, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMailTransport, err)
	}
	return nil
}

// RenderMailBody renders the plain-text report body. The rule list is never
// truncated here: email is the full-fidelity channel.
func RenderMailBody(v *monitor.Verdict) (string, error) {
	rules := make([]string, len(v.Hits))
	for i, h := range v.Hits {
		if h.Description != "" {
			rules[i] = fmt.Sprintf("%s (%d): %s", h.ID, h.Weight, h.Description)
		} else {
			rules[i] = fmt.Sprintf("%s (%d)", h.ID, h.Weight)
		}
	}
	return mailBodyTemplate.Execute(pongo2.Context{
		"name":          v.Name,
		"version":       v.Version,
		"score":         v.Score,
		"package_url":   v.PackageURL,
		"inspector_url": v.InspectorURL,
		"rules":         rules,
	})
}
