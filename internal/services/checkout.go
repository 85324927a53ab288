package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"storefront-api/internal/models"
	"storefront-api/pkg/utils"
)

// Serializer renders a resolved cart into an order message and the messaging
// handoff URL.
type Serializer struct {
	formatter   *utils.CurrencyFormatter
	phone       string
	urlTemplate string
}

func NewSerializer(formatter *utils.CurrencyFormatter, phone, urlTemplate string) *Serializer {
	return &Serializer{
		formatter:   formatter,
		phone:       phone,
		urlTemplate: urlTemplate,
	}
}

// Summary renders one line per available cart line, in cart order.
func (s *Serializer) Summary(lines []ResolvedLine) string {
	rendered := lo.FilterMap(lines, func(l ResolvedLine, _ int) (string, bool) {
		if !l.Available {
			return "", false
		}
		return fmt.Sprintf("%d × ₹%s = ₹%s - %s",
			l.Quantity, l.UnitPrice.String(), l.LineTotal.String(), l.Product.Name), true
	})
	return strings.Join(rendered, "\n")
}

func (s *Serializer) Message(summary, formattedTotal string) string {
	return "Order Details:\n" + summary + "\n\nTotal: " + formattedTotal
}

// HandoffURL fills the template with the configured phone number and the
// percent-encoded message.
func (s *Serializer) HandoffURL(message string) string {
	return strings.NewReplacer(
		"{phone}", url.PathEscape(s.phone),
		"{text}", EncodeComponent(message),
	).Replace(s.urlTemplate)
}

func (s *Serializer) Checkout(lines []ResolvedLine) models.CheckoutResponse {
	total := SumLines(lines)
	formatted := s.formatter.Format(total.InexactFloat64())
	summary := s.Summary(lines)
	message := s.Message(summary, formatted)

	return models.CheckoutResponse{
		Summary:        summary,
		Message:        message,
		Total:          total.InexactFloat64(),
		FormattedTotal: formatted,
		URL:            s.HandoffURL(message),
	}
}

// EncodeComponent percent-encodes every reserved character, with spaces as %20.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
