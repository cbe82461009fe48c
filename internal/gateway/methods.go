package gateway

import "strings"

// Payment method labels
const (
	MethodMomo    = "MOMO"
	MethodZaloPay = "ZALOPAY"
	MethodVNPay   = "VNPAY"
	MethodBank    = "BANK_TRANSFER"
	MethodGateway = "GATEWAY"
)

type methodRule struct {
	keyword string
	label   string
}

// methodRules are evaluated top to bottom, first match wins. Wallet-app
// markers come before the generic bank-transfer markers because transfer
// descriptions routed through a wallet mention both.
var methodRules = []methodRule{
	{"MOMO", MethodMomo},
	{"ZALOPAY", MethodZaloPay},
	{"ZALO", MethodZaloPay},
	{"VNPAY", MethodVNPay},
	{"BANK", MethodBank},
	{"TRANSFER", MethodBank},
	{"CHUYEN KHOAN", MethodBank},
}

// DetectMethod derives the payment method from the raw gateway hint string.
// Unmatched hints fall back to the generic gateway label.
func DetectMethod(hint string) string {
	upper := strings.ToUpper(hint)
	for _, rule := range methodRules {
		if strings.Contains(upper, rule.keyword) {
			return rule.label
		}
	}
	return MethodGateway
}
