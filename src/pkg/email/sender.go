package email

import (
	"github.com/tuumbleweed/xerr"
)

/*
ProviderSender binds a provider choice and the send kill switch into a
single-method sender, which is the shape batch callers consume.
*/
type ProviderSender struct {
	Provider   Provider
	SendEmails bool
}

func (s ProviderSender) Send(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []Attachment) *xerr.Error {
	enabled := s.SendEmails
	return SendMessage(s.Provider, &enabled, sender, recipients, subject, textBody, htmlBody, attachments)
}
