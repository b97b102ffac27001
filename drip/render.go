package drip

import (
	"strings"

	"rankitpro/models"
)

// LinkBuilder produces the signed public links placed in messages
type LinkBuilder interface {
	ReviewLink(requestID uint) string
	UnsubscribeLink(requestID uint) string
}

// render fills the stage's subject and body for one drip. Unknown
// placeholders are left as they are.
func render(cfg *models.ReviewDripConfig, d *models.ReviewDrip, s Stage, links LinkBuilder) (string, string) {
	st := settingsFor(cfg, s)

	reviewLink, unsubscribeLink := "", ""
	if links != nil {
		reviewLink = links.ReviewLink(d.ReviewRequestID)
		unsubscribeLink = links.UnsubscribeLink(d.ReviewRequestID)
	}

	r := strings.NewReplacer(
		"{{customer_name}}", d.CustomerName,
		"{{first_name}}", firstName(d.CustomerName),
		"{{company_name}}", cfg.CompanyName,
		"{{review_link}}", reviewLink,
		"{{unsubscribe_link}}", unsubscribeLink,
	)

	subject := r.Replace(st.subject)
	if subject == "" && cfg.CompanyName != "" {
		subject = "How did we do? " + cfg.CompanyName
	}

	body := r.Replace(st.message)
	if reviewLink != "" && !strings.Contains(st.message, "{{review_link}}") {
		body = strings.TrimRight(body, "\n") + "\n\n" + reviewLink
	}
	return subject, body
}

// withUnsubscribe appends the opt-out footer unless the template placed it
func withUnsubscribe(body, template, link, channel string) string {
	if link == "" || strings.Contains(template, "{{unsubscribe_link}}") {
		return body
	}
	if channel == models.ChannelSMS {
		return body + "\nOpt out: " + link
	}
	return body + "\n\nTo stop receiving these messages: " + link
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
