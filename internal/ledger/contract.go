package ledger

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// Placeholders left in a contract draft.
const (
	PlaceholderContractNo = "[CONTRACT-NO]"
	PlaceholderBuyer      = "[BUYER-NAME]"
	PlaceholderProduct    = "[PRODUCT-NAME]"
	placeholderPhone      = "[PHONE]"
	placeholderAddress    = "[ADDRESS]"

	totalLinePrefix = "Total amount: "
)

var contractTemplate = template.Must(template.New("contract").Parse(
	`INSTALLMENT SALE CONTRACT
Contract no: {{.ContractNo}}

Made on {{.LongDate}} ({{.ShortDate}}) between:

First party (seller): the Seller
Second party (buyer): {{.Buyer}}
Phone: {{.Phone}}
Address: {{.Address}}

1. Subject
The seller sells and the buyer buys the following product: {{.Product}}, under the terms below.

2. Price and payment
- ` + totalLinePrefix + `{{.Total}}
{{- if .Scheduled}}
- Payment: equal monthly installments
- Number of installments: {{.Count}}
- Installment amount: {{.PerInstallment}}
- First installment due: {{.FirstDue}}
{{- else}}
- Payment: single payment on delivery
{{- end}}
- Paid in advance: {{.Paid}}
- Remaining: {{.Remaining}}
{{- if .Scheduled}}
- Installments are paid monthly on the dates of the attached schedule.
{{- end}}

3. Buyer obligations
1. The buyer pays every installment on its due date.
2. If any installment is more than {{.LateDays}} days overdue, the seller may:
   - demand the whole remaining amount at once
   - add late interest of 2% per month on the overdue amount
   - take legal action to recover the debt

4. Seller obligations
1. The seller delivers the product as agreed.
2. The seller keeps all records of this contract.
3. The seller records every payment in the ledger.

5. General
1. This contract binds both parties.
2. Any change to this contract must be made in writing by both parties.
3. This contract is in force from signature until every amount due is paid.

6. Signature
Both parties have read and accepted every clause of this contract on {{.LongDate}}.
`))

type contractData struct {
	ContractNo     string
	LongDate       string
	ShortDate      string
	Buyer          string
	Phone          string
	Address        string
	Product        string
	Total          string
	Scheduled      bool
	Count          int
	PerInstallment string
	FirstDue       string
	Paid           string
	Remaining      string
	LateDays       int
}

// contractTerms are the figures a generated contract states.
type contractTerms struct {
	Customer          *models.Customer
	Product           string
	Total             decimal.Decimal
	Paid              decimal.Decimal
	InstallmentsCount int
	FirstInstallment  decimal.Decimal
	FirstDue          time.Time
	LateDays          int
}

// generateContract renders a contract draft. The contract number stays a placeholder
// until the sale id is known.
func (s *Service) generateContract(t contractTerms) (string, error) {
	data := contractData{
		ContractNo: PlaceholderContractNo,
		LongDate:   t.FirstDue.Format("2 January 2006"),
		ShortDate:  t.FirstDue.Format("02/01/2006"),
		Buyer:      PlaceholderBuyer,
		Phone:      placeholderPhone,
		Address:    placeholderAddress,
		Product:    t.Product,
		Total:      s.Money(t.Total),
		Scheduled:  t.InstallmentsCount > 0,
		Count:      t.InstallmentsCount,
		FirstDue:   t.FirstDue.Format("2 January 2006"),
		Paid:       s.Money(t.Paid),
		Remaining:  s.Money(t.Total.Sub(t.Paid)),
		LateDays:   t.LateDays,
	}
	if t.Customer != nil {
		data.Buyer = t.Customer.Name
		data.Phone = t.Customer.Phone
		if t.Customer.Address != "" {
			data.Address = t.Customer.Address
		}
	}
	if data.Product == "" {
		data.Product = PlaceholderProduct
	}
	if data.Scheduled {
		data.PerInstallment = s.Money(t.FirstInstallment)
	}

	var buf bytes.Buffer
	if err := contractTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ContractDraft renders the blank contract offered before a sale is filled in.
func (s *Service) ContractDraft(ctx context.Context) (string, error) {
	return s.generateContract(contractTerms{
		Total:    decimal.Zero,
		Paid:     decimal.Zero,
		FirstDue: s.clock(),
		LateDays: s.lateDays(ctx),
	})
}

// needsGeneratedContract reports whether text is missing, still a draft, or states a
// total other than total.
func (s *Service) needsGeneratedContract(text string, total decimal.Decimal) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if strings.Contains(text, PlaceholderBuyer) || strings.Contains(text, PlaceholderProduct) {
		return true
	}
	return strings.Contains(text, totalLinePrefix) && !strings.Contains(text, totalLinePrefix+s.Money(total))
}
