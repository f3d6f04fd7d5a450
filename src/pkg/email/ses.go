package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"
)

const sesSendTimeout = 30 * time.Second

/*
sendViaSES sends through Amazon SES v2 using the default AWS credential
chain (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_REGION).

SES "Simple" content cannot carry attachments, so the message is always
assembled as a raw MIME document.
*/
func sendViaSES(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []Attachment) (e *xerr.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), sesSendTimeout)
	defer cancel()

	awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx)
	if cfgErr != nil {
		return xerr.NewError(cfgErr, "Failed to load AWS configuration", nil)
	}
	client := sesv2.NewFromConfig(awsCfg)

	rawMessage, e := buildRawMIMEMessage(sender, recipients, subject, textBody, htmlBody, attachments)
	if e != nil {
		return e
	}

	output, sendErr := client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination:      &sestypes.Destination{ToAddresses: recipients},
		Content: &sestypes.EmailContent{
			Raw: &sestypes.RawMessage{Data: rawMessage},
		},
	})
	if sendErr != nil {
		return xerr.NewError(sendErr, "API error from SES", recipients)
	}

	tl.Log(tl.Detailed, palette.CyanDim, "SES accepted message id='%s'", aws.ToString(output.MessageId))
	return nil
}

/*
buildRawMIMEMessage assembles multipart/mixed with a nested
multipart/alternative (text + html) followed by the attachment parts.
*/
func buildRawMIMEMessage(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []Attachment) (raw []byte, e *xerr.Error) {
	var buffer bytes.Buffer
	mixed := multipart.NewWriter(&buffer)

	buffer.WriteString("From: " + sender + "\r\n")
	buffer.WriteString("To: " + strings.Join(recipients, ", ") + "\r\n")
	buffer.WriteString("Subject: " + subject + "\r\n")
	buffer.WriteString("MIME-Version: 1.0\r\n")
	buffer.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary()))

	// Body: text and html as alternatives.
	var altBuffer bytes.Buffer
	alternative := multipart.NewWriter(&altBuffer)

	if textBody != "" {
		textPart, partErr := alternative.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/plain; charset=UTF-8"},
		})
		if partErr != nil {
			return nil, xerr.NewError(partErr, "Failed to create MIME text part", nil)
		}
		textPart.Write([]byte(textBody))
	}

	htmlPart, partErr := alternative.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if partErr != nil {
		return nil, xerr.NewError(partErr, "Failed to create MIME html part", nil)
	}
	htmlPart.Write([]byte(htmlBody))
	alternative.Close()

	bodyPart, partErr := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alternative.Boundary())},
	})
	if partErr != nil {
		return nil, xerr.NewError(partErr, "Failed to create MIME body part", nil)
	}
	bodyPart.Write(altBuffer.Bytes())

	for _, attachment := range attachments {
		contentType := attachment.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		header := textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", contentType, attachment.Filename)},
			"Content-Transfer-Encoding": {"base64"},
		}
		if attachment.Inline {
			header.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", attachment.Filename))
			header.Set("Content-ID", "<"+attachment.ContentID+">")
		} else {
			header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.Filename))
		}

		attachmentPart, partErr := mixed.CreatePart(header)
		if partErr != nil {
			return nil, xerr.NewError(partErr, "Failed to create MIME attachment part", attachment.Filename)
		}
		attachmentPart.Write([]byte(base64.StdEncoding.EncodeToString(attachment.Content)))
	}

	closeErr := mixed.Close()
	if closeErr != nil {
		return nil, xerr.NewError(closeErr, "Failed to finalize MIME message", nil)
	}

	return buffer.Bytes(), nil
}
