package email

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"
)

// sendViaSendgrid sends through the SendGrid v3 API (SENDGRID_API_KEY).
func sendViaSendgrid(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []Attachment) (e *xerr.Error) {
	senderName, senderAddress := splitAddress(sender)

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(senderName, senderAddress))
	message.Subject = subject

	personalization := mail.NewPersonalization()
	for _, recipient := range recipients {
		personalization.AddTos(mail.NewEmail("", recipient))
	}
	message.AddPersonalizations(personalization)

	if textBody != "" {
		message.AddContent(mail.NewContent("text/plain", textBody))
	}
	message.AddContent(mail.NewContent("text/html", htmlBody))

	for _, attachment := range attachments {
		encoded := mail.NewAttachment()
		encoded.SetContent(base64.StdEncoding.EncodeToString(attachment.Content))
		encoded.SetFilename(attachment.Filename)
		if attachment.ContentType != "" {
			encoded.SetType(attachment.ContentType)
		}
		if attachment.Inline {
			encoded.SetDisposition("inline")
			encoded.SetContentID(attachment.ContentID)
		} else {
			encoded.SetDisposition("attachment")
		}
		message.AddAttachment(encoded)
	}

	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, sendErr := client.Send(message)
	if sendErr != nil {
		return xerr.NewError(sendErr, "HTTP error during sendgrid send", recipients)
	}

	logSendgridResponse(response)
	if response.StatusCode >= 300 {
		err := fmt.Errorf("status is '%d'", response.StatusCode)
		return xerr.NewError(err, "API error from sendgrid", response.Body)
	}

	return nil
}

func logSendgridResponse(response *rest.Response) {
	tl.Log(tl.Detailed, palette.CyanDim, "Sendgrid responded with status '%d'", response.StatusCode)
	if response.Body != "" {
		tl.Log(tl.Debug, palette.CyanDim, "Sendgrid response body: '%s'", response.Body)
	}
}
