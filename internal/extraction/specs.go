package extraction

// Canonical field names shared between the mappers and the session layer.
const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldPhone    = "phone"
	FieldAddress  = "address"
	FieldCompany  = "company_name"
	FieldNotes    = "notes"
	FieldNumber   = "number"
	FieldClientID = "client_id"
	FieldIssued   = "issued_date"
	FieldDue      = "due_date"
	FieldSubtotal = "subtotal"
	FieldTax      = "tax"
	FieldDiscount = "discount"
	FieldTotal    = "total"
)

var clientRolePrefixes = []string{"client", "customer", "recipient", "buyer"}

// clientFieldSpecs is the canonical field list for client candidates. The
// alias order matters: it encodes which raw keys are most trustworthy.
var clientFieldSpecs = []FieldSpec{
	{
		Name:     FieldName,
		Required: true,
		Aliases: []string{
			"client_name", "recipient", "customer_name", "buyer_name",
			"bill_to_name", "bill_to", "sold_to_name", "sold_to",
			"customer", "client", "recipient_name", "billed_to", "billing_name",
		},
		Prefixes: clientRolePrefixes,
		Suffixes: []string{"name"},
	},
	{
		Name: FieldEmail,
		Aliases: []string{
			"client_email", "recipient_email", "customer_email",
			"buyer_email", "bill_to_email", "email",
		},
		Prefixes: clientRolePrefixes,
		Suffixes: []string{"email", "e-mail"},
	},
	{
		Name: FieldPhone,
		Aliases: []string{
			"client_phone", "recipient_phone", "customer_phone",
			"buyer_phone", "bill_to_phone", "phone", "telephone", "tel",
		},
		Prefixes: clientRolePrefixes,
		Suffixes: []string{"phone", "telephone", "tel", "mobile"},
	},
	{
		Name: FieldAddress,
		Aliases: []string{
			"client_address", "recipient_address", "customer_address",
			"buyer_address", "bill_to_address", "billing_address",
			"address", "shipping_address",
		},
		Prefixes: []string{"client", "customer", "recipient", "buyer", "bill", "billing"},
		Suffixes: []string{"address", "location", "street"},
	},
	{
		Name: FieldCompany,
		Aliases: []string{
			"client_company", "recipient_company", "customer_company",
			"buyer_company", "bill_to_company", "company",
			"organization", "business", "corporation",
		},
		Prefixes: clientRolePrefixes,
		Suffixes: []string{"company", "organization", "business", "corporation"},
	},
}

// invoiceFieldSpecs is the canonical field list for invoice candidates.
// The client reference and the notes/date defaults are handled by the
// mapper itself; amounts go through numeric reconciliation afterwards.
var invoiceFieldSpecs = []FieldSpec{
	{
		Name: FieldNumber,
		Aliases: []string{
			"invoice_number", "number", "invoice_id", "invoice_no",
			"invoice_ref", "reference_number", "ref_number", "ref_no",
			"reference", "invoice",
		},
		Prefixes: []string{"invoice", "inv"},
		Suffixes: []string{"number", "no", "id", "ref"},
	},
	{
		Name: FieldIssued,
		Aliases: []string{
			"date", "invoice_date", "issue_date", "issued_date",
			"date_of_issue", "date_issued",
		},
		Prefixes: []string{"invoice", "issue"},
		Suffixes: []string{"date"},
	},
	{
		Name: FieldDue,
		Aliases: []string{
			"due_date", "payment_due", "payment_date", "date_due",
			"due_by", "pay_by_date",
		},
		Prefixes: []string{"due", "payment"},
		Suffixes: []string{"date"},
	},
	{
		Name: FieldNotes,
		Aliases: []string{
			"notes", "comments", "description", "memo",
			"additional_info", "additional_information", "message",
		},
		Suffixes: []string{"notes", "comments", "description", "memo", "message"},
	},
	{
		Name:     FieldSubtotal,
		Aliases:  []string{"subtotal", "sub_total", "net_amount", "net"},
		Suffixes: []string{"subtotal", "sub_total", "net_amount", "net"},
	},
	{
		Name:     FieldTax,
		Aliases:  []string{"tax_amount", "tax", "vat", "gst", "sales_tax"},
		Suffixes: []string{"tax", "vat", "gst", "sales_tax"},
	},
	{
		Name:     FieldDiscount,
		Aliases:  []string{"discount", "discount_amount", "discount_total"},
		Suffixes: []string{"discount", "reduction", "deduction"},
	},
	{
		Name:     FieldTotal,
		Aliases:  []string{"total_amount", "total", "amount", "grand_total", "final_amount"},
		Suffixes: []string{"total", "amount", "grand_total", "final_amount"},
	},
}

// ClientFieldSpecs returns the canonical client field list.
func ClientFieldSpecs() []FieldSpec { return clientFieldSpecs }

// InvoiceFieldSpecs returns the canonical invoice field list.
func InvoiceFieldSpecs() []FieldSpec { return invoiceFieldSpecs }

// amountFields are the invoice fields that always carry decimal values.
var amountFields = map[string]bool{
	FieldSubtotal: true,
	FieldTax:      true,
	FieldDiscount: true,
	FieldTotal:    true,
}

// IsAmountField reports whether a canonical invoice field holds money.
func IsAmountField(name string) bool { return amountFields[name] }
