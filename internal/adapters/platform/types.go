package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// RawOrder is an order exactly as the platform returned it. Numbers are
// decoded as json.Number so large ids survive.
type RawOrder map[string]any

// RawProduct is a product listing entry as returned by the platform
type RawProduct map[string]any

// ID returns the platform order id
func (o RawOrder) ID() string { return str(field(o, "id")) }

// Number returns the human order number, falling back to the id
func (o RawOrder) Number() string {
	if n := str(field(o, "numero")); n != "" {
		return n
	}
	return o.ID()
}

// Items returns the raw line items, nil when absent
func (o RawOrder) Items() []map[string]any {
	list, _ := field(o, "itens").([]any)
	items := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// HasItems reports whether the listing entry carries line items
func (o RawOrder) HasItems() bool {
	return len(o.Items()) > 0
}

func (p RawProduct) ID() string   { return str(field(p, "id")) }
func (p RawProduct) SKU() string  { return str(field(p, "codigo")) }
func (p RawProduct) Name() string { return str(field(p, "nome")) }

func (p RawProduct) EAN() string {
	return firstStr(p, "gtin", "ean", "codigoBarras")
}

func (p RawProduct) Price() decimal.Decimal {
	return num(field(p, "preco"))
}

// normalizedOrder is validated before anything is stored
type normalizedOrder struct {
	ExternalID string           `validate:"required"`
	Number     string           `validate:"required"`
	Items      []normalizedItem `validate:"dive"`
}

type normalizedItem struct {
	Name string `validate:"required_without_all=SKU EAN"`
	SKU  string
	EAN  string
}

var validate = validator.New()

// ToExternalOrder normalizes a raw order into a storable row with the given
// canonical status. Missing required fields yield *errs.ValidationError.
func ToExternalOrder(raw RawOrder, accountID, userID int64, status string) (*storage.ExternalOrder, error) {
	items := make([]storage.OrderItem, 0)
	check := normalizedOrder{ExternalID: raw.ID(), Number: raw.Number()}

	for _, it := range raw.Items() {
		item := storage.OrderItem{
			ExternalProductID: str(field(it, "produto.id")),
			SKU:               firstStr(it, "codigo", "sku", "produto.codigo"),
			EAN:               firstStr(it, "gtin", "ean", "produto.gtin"),
			Name:              firstStr(it, "descricao", "nome", "produto.nome"),
			Quantity:          int(num(field(it, "quantidade")).IntPart()),
			UnitPrice:         num(field(it, "valor")),
		}
		items = append(items, item)
		check.Items = append(check.Items, normalizedItem{Name: item.Name, SKU: item.SKU, EAN: item.EAN})
	}

	if err := validate.Struct(check); err != nil {
		return nil, toValidationError(err)
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode items: %w", err)
	}

	return &storage.ExternalOrder{
		ExternalOrderID:   check.ExternalID,
		AccountID:         accountID,
		UserID:            userID,
		OrderNumber:       check.Number,
		Status:            status,
		CustomerName:      firstStr(raw, "contato.nome", "cliente.nome"),
		TotalAmount:       num(field(raw, "total")),
		ItemsJSON:         string(itemsJSON),
		PlatformCreatedAt: parseDate(str(field(raw, "data"))),
		Items:             items,
	}, nil
}

func toValidationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return &errs.ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q check", fe.Tag()),
		}
	}
	return &errs.ValidationError{Message: err.Error()}
}

// field walks a dotted path through nested maps
func field(m map[string]any, path string) any {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = obj[key]; !ok {
			return nil
		}
	}
	return cur
}

func firstStr(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := str(field(m, p)); s != "" {
			return s
		}
	}
	return ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func num(v any) decimal.Decimal {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(t), ",", "."))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) *time.Time {
	if s == "" || strings.HasPrefix(s, "0000") {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
