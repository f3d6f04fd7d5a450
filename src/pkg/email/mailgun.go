package email

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"
)

const mailgunSendTimeout = 30 * time.Second

// sendViaMailgun sends through the Mailgun messages API
// (MAILGUN_DOMAIN, MAILGUN_API_KEY).
func sendViaMailgun(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []Attachment) (e *xerr.Error) {
	domain := os.Getenv("MAILGUN_DOMAIN")
	apiKey := os.Getenv("MAILGUN_API_KEY")

	mg := mailgun.NewMailgun(domain, apiKey)

	message := mg.NewMessage(sender, subject, textBody, recipients...)
	message.SetHTML(htmlBody)

	for _, attachment := range attachments {
		if attachment.Inline {
			message.AddReaderInline(attachment.Filename, io.NopCloser(bytes.NewReader(attachment.Content)))
			continue
		}
		message.AddBufferAttachment(attachment.Filename, attachment.Content)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mailgunSendTimeout)
	defer cancel()

	responseMessage, messageID, sendErr := mg.Send(ctx, message)
	if sendErr != nil {
		return xerr.NewError(sendErr, "API error from mailgun", recipients)
	}

	tl.Log(tl.Detailed, palette.CyanDim, "Mailgun accepted message id='%s': '%s'", messageID, responseMessage)
	return nil
}
