package utils

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/sharath018/school-management-backend/config"
)

// ======================
// SMTP Configuration
// ======================
var (
	mailMu        sync.RWMutex
	smtpHost      string
	smtpPort      string
	smtpUsername  string
	smtpPassword  string
	smtpFromName  string
	smtpFromEmail string
	frontendURL   string
)

// InitMailer copies SMTP settings from config. Without a host, mails are only logged.
func InitMailer(cfg *config.Config) {
	mailMu.Lock()
	defer mailMu.Unlock()
	smtpHost = cfg.SMTPHost
	smtpPort = cfg.SMTPPort
	smtpUsername = cfg.SMTPUsername
	smtpPassword = cfg.SMTPPassword
	smtpFromName = cfg.SMTPFromName
	smtpFromEmail = cfg.SMTPFromEmail
	frontendURL = cfg.FrontendURL
	if smtpFromEmail == "" {
		smtpFromEmail = smtpUsername
	}
}

// BuildMessage assembles RFC 822 headers and body.
func BuildMessage(fromName, fromEmail, to, subject, contentType, body string) []byte {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: " + contentType + "; charset=UTF-8\r\n" +
		"\r\n" + body)
}

// ======================
// Low-level sendEmail (STARTTLS on a plain connection)
// ======================
func sendEmail(to, subject, body string) error {
	return sendMail(to, subject, "text/plain", body)
}

// SendHTMLEmail sends an already rendered HTML body.
func SendHTMLEmail(to []string, subject, html string) error {
	var failed []string
	for _, rcpt := range to {
		if err := sendMail(rcpt, subject, "text/html", html); err != nil {
			failed = append(failed, rcpt)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to send to %s", strings.Join(failed, ", "))
	}
	return nil
}

func sendMail(to, subject, contentType, body string) error {
	mailMu.RLock()
	host, port, user, pass := smtpHost, smtpPort, smtpUsername, smtpPassword
	fromName, fromEmail := smtpFromName, smtpFromEmail
	mailMu.RUnlock()

	fmt.Printf("📧 Sending Email to %s: %s\n", to, subject)

	if host == "" || user == "" || pass == "" {
		fmt.Println("⚠️ SMTP not configured. Email not sent.")
		return nil
	}

	client, err := smtp.Dial(fmt.Sprintf("%s:%s", host, port))
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if err := client.Auth(smtp.PlainAuth("", user, pass, host)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if err := client.Mail(fromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(BuildMessage(fromName, fromEmail, to, subject, contentType, body)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		fmt.Printf("⚠️ QUIT command error (non-critical): %v\n", err)
	}
	fmt.Println("✅ Email sent successfully!")
	return nil
}

// ======================
// Password Reset
// ======================
func SendResetLink(toEmail string, resetToken string) error {
	mailMu.RLock()
	baseURL := frontendURL
	mailMu.RUnlock()
	if baseURL == "" {
		baseURL = "http://localhost:5173"
	}

	resetURL := fmt.Sprintf("%s/auth/reset-password?token=%s", baseURL, resetToken)
	body := fmt.Sprintf("Click here to reset your password: %s\n\nIf you did not request this password reset, please ignore this email.", resetURL)
	return sendEmail(toEmail, "Reset your password", body)
}

// ======================
// Platform Emails
// ======================
func SendContactReply(toEmail, name, subject, reply string) error {
	body := fmt.Sprintf("Hello %s,\n\n%s\n\nRegards,\nPlatform Support", name, reply)
	return sendEmail(toEmail, "Re: "+subject, body)
}

func SendPaymentReceipt(toEmail, studentName, feeName string, amount float64, paymentID string) error {
	subject := fmt.Sprintf("Payment received: %s", feeName)
	body := fmt.Sprintf("Payment of INR %.2f for %s (%s) was received.\nReference: %s", amount, studentName, feeName, paymentID)
	return sendEmail(toEmail, subject, body)
}
