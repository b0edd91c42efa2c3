package notification

import (
	"fmt"
	"net/smtp"

	"github.com/raykavin/backsweep/pkg/logger"
)

// Mail sends notifications by email
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	log               logger.Logger
	send              func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int    `mapstructure:"port"`
	SMTPServerAddress string `mapstructure:"server"`
	To                string `mapstructure:"to"`
	From              string `mapstructure:"from"`
	Password          string `mapstructure:"password"`
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams, log logger.Logger) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		log:               log,
		send:              smtp.SendMail,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// message builds the raw mail with its headers
func (m Mail) message(subject, text string) []byte {
	return []byte(fmt.Sprintf("To: <%s>\r\nFrom: \"backsweep\" <%s>\r\nSubject: %s\r\n\r\n%s\r\n",
		m.to, m.from, subject, text))
}

func (m Mail) deliver(subject, text string) {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	err := m.send(serverAddress, m.auth, m.from, []string{m.to}, m.message(subject, text))
	if err != nil && m.log != nil {
		m.log.WithError(err).Error("notification/mail: failed to send email")
	}
}

// Notify sends an email notification with the given text
func (m Mail) Notify(text string) {
	m.deliver("backsweep report", text)
}

// OnError sends an error notification
func (m Mail) OnError(err error) {
	m.deliver("🛑 ERROR", FormatError(err))
}
