package esewa

import (
	"bytes"
	"fmt"
	"html/template"

	"paygate/internal/domain"
)

// FormData holds the fields of an ePay v1 checkout form.
// Tax, service and delivery charges are always zero for this merchant.
type FormData struct {
	Action         string
	TotalAmount    domain.Amount
	Amount         domain.Amount
	TaxAmount      domain.Amount
	ServiceCharge  domain.Amount
	DeliveryCharge domain.Amount
	MerchantID     string
	ProductID      string
	SuccessURL     string
	FailureURL     string
}

var formTemplate = template.Must(template.New("esewa-form").Parse(`
<form action="{{.Action}}" method="POST" id="esewa-payment-form">
  <input type="hidden" name="tAmt" value="{{.TotalAmount}}">
  <input type="hidden" name="amt" value="{{.Amount}}">
  <input type="hidden" name="txAmt" value="{{.TaxAmount}}">
  <input type="hidden" name="psc" value="{{.ServiceCharge}}">
  <input type="hidden" name="pdc" value="{{.DeliveryCharge}}">
  <input type="hidden" name="scd" value="{{.MerchantID}}">
  <input type="hidden" name="pid" value="{{.ProductID}}">
  <input type="hidden" name="su" value="{{.SuccessURL}}">
  <input type="hidden" name="fu" value="{{.FailureURL}}">
  <button type="submit" class="esewa-btn">Pay with eSewa</button>
</form>
<script>
  document.getElementById('esewa-payment-form').submit();
</script>
`))

// RenderForm renders an auto-submitting checkout form. All values are HTML-escaped.
func RenderForm(data FormData) (string, error) {
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render esewa form: %w", err)
	}
	return buf.String(), nil
}
