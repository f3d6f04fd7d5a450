package digest

import (
	"bytes"
	"html"
)

/*
EmailHTMLProps is everything the email body needs. The totals arrive
pre-formatted; the composer is a pure (props) -> string function with
no formatting decisions of its own.

ChartURL points at the remote chart render; the email never embeds the
fetched PNG bytes, so it still shows a chart even when the run-side
fetch failed.
*/
type EmailHTMLProps struct {
	DisplayName    string
	LogoURL        string // absolute URL or cid: reference
	ChartURL       string
	TotalIncome    string
	TotalExpenses  string
	Savings        string
	AIText         string
	SiteURL        string
	ManageURL      string // optional; falls back to {SiteURL}/app/preferences
	UnsubscribeURL string // optional; falls back to {SiteURL}/unsubscribe
	Preheader      string
}

const emailFontStack = "system-ui,-apple-system,Segoe UI,Roboto,Arial,sans-serif"

/*
GenerateEmailHTML renders the digest email body: a self-contained
document with inline styles only, for email-client compatibility.

Every data-sourced string is escaped before interpolation; stored
suggestion text or display names must never become live markup.
*/
func GenerateEmailHTML(props EmailHTMLProps) string {
	manageURL := props.ManageURL
	if manageURL == "" {
		manageURL = props.SiteURL + "/app/preferences"
	}
	unsubscribeURL := props.UnsubscribeURL
	if unsubscribeURL == "" {
		unsubscribeURL = props.SiteURL + "/unsubscribe"
	}
	preheader := props.Preheader
	if preheader == "" {
		preheader = "Your PennyWize digest is ready"
	}

	yellow := "#FFD54D"
	pink := "#E91E63"
	green := "#14B85A"
	black := "#111111"

	var buffer bytes.Buffer

	buffer.WriteString("<!doctype html>")
	buffer.WriteString("<html>")
	buffer.WriteString("<head>")
	buffer.WriteString(`<meta charset="utf-8">`)
	buffer.WriteString(`<title>` + html.EscapeString(preheader) + `</title>`)
	buffer.WriteString(`<meta name="color-scheme" content="light only">`)
	buffer.WriteString("</head>")

	buffer.WriteString(`<body style="margin:0;padding:0;background-color:#fff8e1;">`)

	// Hidden preheader: inbox preview text without visible content.
	buffer.WriteString(`<div style="display:none;visibility:hidden;font-size:1px;line-height:1px;max-height:0;max-width:0;opacity:0;overflow:hidden;">` + html.EscapeString(preheader) + `</div>`)

	buffer.WriteString(`<div style="width:100%;max-width:600px;margin:0 auto;background:#ffffff;border-radius:12px;overflow:hidden;border:1px solid #f1f1f1;">`)

	// Header band.
	buffer.WriteString(`<div style="padding:20px 24px;background:` + yellow + `;">`)
	buffer.WriteString(`<img src="` + props.LogoURL + `" alt="PennyWize" width="180" style="display:block" />`)
	buffer.WriteString(`</div>`)

	// Greeting.
	buffer.WriteString(`<div style="padding:20px 24px 0;">`)
	buffer.WriteString(`<p style="margin:0;font-family:` + emailFontStack + `;font-size:22px;font-weight:800;color:` + black + `;">Hi ` + html.EscapeString(props.DisplayName) + `,</p>`)
	buffer.WriteString(`<p style="margin:6px 0 0;font-family:` + emailFontStack + `;font-size:14px;color:#374151;">Here&rsquo;s your financial digest:</p>`)
	buffer.WriteString(`</div>`)

	// KPI chips.
	buffer.WriteString(`<div style="padding:16px 24px 0;">`)
	buffer.WriteString(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tbody><tr>`)
	buffer.WriteString(kpiChip("Income", props.TotalIncome, green))
	buffer.WriteString(`<td style="width:12px"></td>`)
	buffer.WriteString(kpiChip("Expenses", props.TotalExpenses, pink))
	buffer.WriteString(`<td style="width:12px"></td>`)
	buffer.WriteString(kpiChip("Savings", props.Savings, black))
	buffer.WriteString(`</tr></tbody></table>`)
	buffer.WriteString(`</div>`)

	// Chart.
	buffer.WriteString(`<div style="padding:16px 24px 0;">`)
	buffer.WriteString(`<img src="` + props.ChartURL + `" width="552" alt="Income vs. Expenses" style="width:100%;height:auto;border-radius:10px;border:1px solid #eee;" />`)
	buffer.WriteString(`</div>`)

	// AI Suggestions, whitespace preserved.
	buffer.WriteString(`<div style="padding:16px 24px;">`)
	buffer.WriteString(`<p style="margin:0;font-family:` + emailFontStack + `;font-size:16px;font-weight:800;color:` + black + `;">AI Suggestions</p>`)
	buffer.WriteString(`<pre style="white-space:pre-wrap;font-family:` + emailFontStack + `;font-size:14px;color:#111;margin:8px 0 0;">` + html.EscapeString(props.AIText) + `</pre>`)
	buffer.WriteString(`</div>`)

	buffer.WriteString(`<hr style="border:0;border-top:1px solid #eee;margin:0" />`)

	// Footer.
	buffer.WriteString(`<div style="padding:16px 24px 24px;">`)
	buffer.WriteString(`<p style="margin:0 0 6px 0;font-family:` + emailFontStack + `;font-size:12px;color:#6b7280;">Sent by PennyWize</p>`)
	buffer.WriteString(`<p style="margin:0;font-family:` + emailFontStack + `;font-size:12px;color:#6b7280;">`)
	buffer.WriteString(`<a href="` + manageURL + `" style="color:#6b7280;text-decoration:underline;">Manage preferences</a>`)
	buffer.WriteString(` &middot; `)
	buffer.WriteString(`<a href="` + unsubscribeURL + `" style="color:#6b7280;text-decoration:underline;">Unsubscribe</a>`)
	buffer.WriteString(`</p>`)
	buffer.WriteString(`</div>`)

	buffer.WriteString(`</div>`)
	buffer.WriteString(`</body>`)
	buffer.WriteString(`</html>`)

	return buffer.String()
}

func kpiChip(label string, value string, valueColor string) string {
	return `<td style="background:#f7f7f7;padding:12px;border-radius:10px;width:33.33%;text-align:center;font-family:` + emailFontStack + `;font-size:13px;color:#111111;font-weight:600;">` +
		html.EscapeString(label) + `<br/><span style="color:` + valueColor + `;font-weight:800">` + html.EscapeString(value) + `</span></td>`
}
