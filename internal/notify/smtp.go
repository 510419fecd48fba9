package notify

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const smtpTimeout = 15 * time.Second

func (n *Notifier) sendSMTP(subject, message string) error {
	s := n.settings
	if s.SMTPHost == "" || s.SMTPFrom == "" || s.NotifyTo == "" {
		return fmt.Errorf("smtp notifier requires host/from/to settings")
	}

	addr := net.JoinHostPort(s.SMTPHost, strconv.Itoa(s.SMTPPort))
	conn, err := net.DialTimeout("tcp", addr, smtpTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(smtpTimeout))

	client, err := smtp.NewClient(conn, s.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.SMTPUseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.SMTPHost}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.SMTPUsername != "" {
		auth := smtp.PlainAuth("", s.SMTPUsername, s.SMTPPassword, s.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.SMTPFrom); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(s.NotifyTo); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}

	body := strings.Join([]string{
		"Subject: " + subject,
		"From: " + s.SMTPFrom,
		"To: " + s.NotifyTo,
		"",
		message,
	}, "\r\n")
	if _, err := writer.Write([]byte(body)); err != nil {
		writer.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}
