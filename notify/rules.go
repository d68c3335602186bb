/*
rules.go - Built-in extraction rules per source app

Each rule targets one notification shape of one app. Amount patterns
swallow the currency symbol and tolerate locale variants (comma or
period decimal separators, thousands grouping); ledger.ParseMoney does
the actual disambiguation.
*/
package notify

import (
	"regexp"

	"github.com/warp/finance-engine/ledger"
)

// amountText matches an amount with optional grouping and decimals,
// e.g. "1,234.56", "1.234,56", "22", ".99".
const amountText = `([0-9][0-9.,]*|\.[0-9]{1,2})`

// currency matches the symbols and codes the built-in rules expect to
// precede an amount.
const currency = `(?:INR|Rs\.?|USD|EUR|\$|€|£)\s*`

// BuiltinRules returns the default rule set, in match order. More
// specific rules come first; the generic bank-alert rules are last.
func BuiltinRules() []Rule {
	return []Rule{
		// Card spend: "You spent $12.50 at Coffee House using card ending 1234"
		&PatternRule{
			RuleName:    "card-spend",
			SourceApps:  []string{"com.vertex.cardwallet"},
			MustContain: []string{"spent"},
			Amount:      regexp.MustCompile(`(?i)spent\s+` + currency + amountText),
			Direction:   ledger.Debit,
			Counterparty: regexp.MustCompile(
				`(?i)\bat\s+(.+?)(?:\s+using|\s+on\s|[.!]|$)`),
		},

		// UPI-style payment app: "You paid ₹550.00 to Corner Grocery" /
		// "You received ₹2,000 from Asha R".
		&PatternRule{
			RuleName:    "upi-paid",
			SourceApps:  []string{"com.flowpay.app"},
			MustContain: []string{"paid"},
			Amount:      regexp.MustCompile(`(?i)paid\s+(?:₹|` + currency + `)?` + amountText),
			Direction:   ledger.Debit,
			Counterparty: regexp.MustCompile(
				`(?i)\bto\s+(.+?)(?:\s+on\s|\s+via\s|[.!]|$)`),
		},
		&PatternRule{
			RuleName:    "upi-received",
			SourceApps:  []string{"com.flowpay.app"},
			MustContain: []string{"received"},
			Amount:      regexp.MustCompile(`(?i)received\s+(?:₹|` + currency + `)?` + amountText),
			Direction:   ledger.Credit,
			Counterparty: regexp.MustCompile(
				`(?i)\bfrom\s+(.+?)(?:\s+on\s|\s+via\s|[.!]|$)`),
		},

		// Bank account alerts: "A/c XX1234 debited by Rs 1,150.00 at ..."
		// and the matching credit shape. Direction is inferred from the
		// alert wording, so one bank app needs only these two rules.
		&PatternRule{
			RuleName:    "bank-debit-alert",
			SourceApps:  []string{"com.meridianbank.alerts"},
			MustContain: []string{"debited"},
			Amount:      regexp.MustCompile(`(?i)debited\s+(?:by\s+|for\s+)?` + currency + amountText),
			DebitWhen:   []string{"debited"},
			Counterparty: regexp.MustCompile(
				`(?i)(?:\bat|\bto(?:wards)?)\s+(.+?)(?:\s+on\s|\s+ref\b|[.!]|$)`),
		},
		&PatternRule{
			RuleName:    "bank-credit-alert",
			SourceApps:  []string{"com.meridianbank.alerts"},
			MustContain: []string{"credited"},
			Amount:      regexp.MustCompile(`(?i)credited\s+(?:by\s+|with\s+)?` + currency + amountText),
			CreditWhen:  []string{"credited"},
			Counterparty: regexp.MustCompile(
				`(?i)\bfrom\s+(.+?)(?:\s+on\s|\s+ref\b|[.!]|$)`),
		},
	}
}
