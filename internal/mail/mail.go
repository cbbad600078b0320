// Package mail sends the account activation and password reset messages.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Message is a single HTML e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	body := buildMIME(s.cfg.From, msg)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if s.cfg.UseTLS {
		return s.sendTLS(addr, auth, msg.To, body)
	}
	return smtp.SendMail(addr, auth, envelopeAddress(s.cfg.From), []string{msg.To}, body)
}

func (s *SMTPSender) sendTLS(addr string, auth smtp.Auth, to string, body []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(envelopeAddress(s.cfg.From)); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// envelopeAddress strips a display name: "My App <a@b.c>" -> "a@b.c".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

func buildMIME(from string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}

var (
	activationTmpl = template.Must(template.New("activation").Parse(`<div>
  <b>Please click below link to activate your account</b>
</div>
<div>
  <a href="{{.Link}}">Activate</a>
</div>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<div>
  <b>Please click below link to reset your password</b>
</div>
<div>
  <a href="{{.Link}}">Reset</a>
</div>`))
)

// Mailer renders the account e-mails and hands them to a Sender.
type Mailer struct {
	sender   Sender
	linkBase string
	log      zerolog.Logger
}

func NewMailer(sender Sender, linkBase string, log zerolog.Logger) *Mailer {
	return &Mailer{
		sender:   sender,
		linkBase: strings.TrimRight(linkBase, "/"),
		log:      log,
	}
}

func (m *Mailer) SendAccountActivation(ctx context.Context, email, token string) error {
	link := m.linkBase + "/#/login?token=" + token
	return m.send(ctx, email, "Account Activation", activationTmpl, link)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, email, token string) error {
	link := m.linkBase + "/#/password-reset?reset=" + token
	return m.send(ctx, email, "Password Reset", resetTmpl, link)
}

func (m *Mailer) send(ctx context.Context, to, subject string, tmpl *template.Template, link string) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, struct{ Link string }{link}); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	err := m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: body.String()})
	if err != nil {
		m.log.Warn().Err(err).Str("template", tmpl.Name()).Msg("mail delivery failed")
		return fmt.Errorf("send %s mail: %w", tmpl.Name(), err)
	}
	m.log.Debug().Str("template", tmpl.Name()).Msg("mail sent")
	return nil
}
