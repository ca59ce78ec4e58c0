package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type Template string

const (
	TemplateQuotePriced      Template = "quote_priced"
	TemplateQuoteRejected    Template = "quote_rejected"
	TemplateBookingConfirmed Template = "booking_confirmed"
	TemplateBookingStatus    Template = "booking_status"
	TemplateVendorAssigned   Template = "vendor_assigned"
)

type Data map[string]any

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var registry = map[Template]compiled{
	TemplateQuotePriced: compile(TemplateQuotePriced,
		`Your quote #{{.QuoteID}} is ready`,
		`Hi {{.Name}},

Your {{.Service}} quote #{{.QuoteID}} has been priced at {{.Price}}.
{{with .Notes}}
Notes from our team: {{.}}
{{end}}
Review and accept it here: {{.Link}}`,
		`<p>Hi {{.Name}},</p>
<p>Your {{.Service}} quote <strong>#{{.QuoteID}}</strong> has been priced at <strong>{{.Price}}</strong>.</p>
{{with .Notes}}<p>Notes from our team: {{.}}</p>{{end}}
<p><a href="{{.Link}}">Review and accept your quote</a></p>`),

	TemplateQuoteRejected: compile(TemplateQuoteRejected,
		`Update on your quote #{{.QuoteID}}`,
		`Hi {{.Name}},

Your quote #{{.QuoteID}} has been closed and will not proceed. Contact us if you would like a new quote.`,
		`<p>Hi {{.Name}},</p>
<p>Your quote <strong>#{{.QuoteID}}</strong> has been closed and will not proceed. Contact us if you would like a new quote.</p>`),

	TemplateBookingConfirmed: compile(TemplateBookingConfirmed,
		`Booking {{.BookingNumber}} confirmed`,
		`Hi {{.Name}},

We received your payment of {{.Amount}} for invoice {{.InvoiceNumber}}.
Your booking {{.BookingNumber}} is scheduled from {{.StartDate}} to {{.EndDate}} at {{.Location}}.

Track it here: {{.Link}}`,
		`<p>Hi {{.Name}},</p>
<p>We received your payment of <strong>{{.Amount}}</strong> for invoice {{.InvoiceNumber}}.</p>
<p>Your booking <strong>{{.BookingNumber}}</strong> is scheduled from {{.StartDate}} to {{.EndDate}} at {{.Location}}.</p>
<p><a href="{{.Link}}">Track your booking</a></p>`),

	TemplateBookingStatus: compile(TemplateBookingStatus,
		`Booking {{.BookingNumber}}: {{.Status}}`,
		`Hi {{.Name}},

Your booking {{.BookingNumber}} is now: {{.Status}}.

Details: {{.Link}}`,
		`<p>Hi {{.Name}},</p>
<p>Your booking <strong>{{.BookingNumber}}</strong> is now: <strong>{{.Status}}</strong>.</p>
<p><a href="{{.Link}}">View booking</a></p>`),

	TemplateVendorAssigned: compile(TemplateVendorAssigned,
		`A vendor is assigned to booking {{.BookingNumber}}`,
		`Hi {{.Name}},

{{.VendorName}} will handle your booking {{.BookingNumber}}.{{with .VendorPhone}} Phone: {{.}}.{{end}}

Details: {{.Link}}`,
		`<p>Hi {{.Name}},</p>
<p><strong>{{.VendorName}}</strong> will handle your booking <strong>{{.BookingNumber}}</strong>.{{with .VendorPhone}} Phone: {{.}}.{{end}}</p>
<p><a href="{{.Link}}">View booking</a></p>`),
}

func compile(name Template, subject, text, html string) compiled {
	n := string(name)
	return compiled{
		subject: texttemplate.Must(texttemplate.New(n + ".subject").Option("missingkey=zero").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(n + ".text").Option("missingkey=zero").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(n + ".html").Option("missingkey=zero").Parse(html)),
	}
}

// Compose renders the named template for recipient to.
func Compose(to string, name Template, data Data) (Message, error) {
	tpl, ok := registry[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}

	var subject, text, html bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}

	return Message{
		To:      to,
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
