package domain

import "strings"

// RenderMessage substitutes recipient fields into a step's message
// template. Supported placeholders are {{firstName}}, {{lastName}} and
// {{company}}; anything else is left in the text untouched so a typo in a
// template is visible in the output rather than silently eaten.
func RenderMessage(template string, r Recipient) string {
	msg := template
	msg = strings.ReplaceAll(msg, "{{firstName}}", r.FirstName)
	msg = strings.ReplaceAll(msg, "{{lastName}}", r.LastName)
	msg = strings.ReplaceAll(msg, "{{company}}", r.Company)
	return msg
}
