package email

import (
	"fmt"
	"net/mail"

	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"
)

type Provider string

const (
	ProviderSendgrid Provider = "sendgrid"
	ProviderMailgun  Provider = "mailgun"
	ProviderSES      Provider = "ses"
)

/*
RequiredEnvVars lists the credentials a provider reads at send time, so
callers can fail fast at startup instead of per-recipient at dispatch.
*/
func RequiredEnvVars(provider Provider) []string {
	switch provider {
	case ProviderSendgrid:
		return []string{"SENDGRID_API_KEY"}
	case ProviderMailgun:
		return []string{"MAILGUN_DOMAIN", "MAILGUN_API_KEY"}
	case ProviderSES:
		return []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION"}
	}
	return nil
}

/*
Attachment is a named byte payload carried by an outbound message.
Inline attachments (logo images) additionally set ContentID so the
HTML body can reference them as cid:<ContentID>.
*/
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
	Inline      bool
	ContentID   string
}

/*
SendMessage sends one message through the selected provider.

sendEmails is the global kill switch: nil or false logs the would-be
send and returns nil, which is how dry runs and local development avoid
spamming real inboxes.
*/
func SendMessage(provider Provider, sendEmails *bool, sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []Attachment) (e *xerr.Error) {
	if sendEmails == nil || !*sendEmails {
		tl.Log(tl.Notice, palette.YellowBold, "Email sending is %s. Would send '%s' to %s via '%s'", "disabled", subject, recipients, provider)
		return nil
	}

	tl.Log(tl.Info, palette.Blue, "%s '%s' to %s via '%s' ('%d' attachments)", "Sending", subject, recipients, provider, len(attachments))

	switch provider {
	case ProviderSendgrid:
		e = sendViaSendgrid(sender, recipients, subject, textBody, htmlBody, attachments)
	case ProviderMailgun:
		e = sendViaMailgun(sender, recipients, subject, textBody, htmlBody, attachments)
	case ProviderSES:
		e = sendViaSES(sender, recipients, subject, textBody, htmlBody, attachments)
	default:
		err := fmt.Errorf("unknown provider '%s'", provider)
		e = xerr.NewError(err, "unsupported email provider", string(provider))
	}

	if e == nil {
		tl.Log(tl.Info1, palette.Green, "%s '%s' to %s", "Sent", subject, recipients)
	}
	return e
}

/*
splitAddress splits "Display Name <box@domain>" into its parts; a bare
address comes back with an empty display name.
*/
func splitAddress(address string) (displayName string, plainAddress string) {
	parsed, parseErr := mail.ParseAddress(address)
	if parseErr != nil {
		return "", address
	}
	return parsed.Name, parsed.Address
}
