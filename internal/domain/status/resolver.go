// Package status turns the platform's inconsistent order status fields into
// one canonical label and decides which labels trigger a stock deduction.
//
// Example usage:
//
//	r := status.NewResolver()
//	label := r.Resolve(rawOrder)
//	if status.IsEligible(label) {
//		// deduct stock
//	}
package status

import "fmt"

// DefaultLabel is used when an order carries neither a label nor a code.
const DefaultLabel = "Aguardando processamento"

// CodeTable maps platform status codes to labels. Code 24 used to be
// reported as "Reagendado"; the platform UI shows it as "Verificado".
var CodeTable = map[int]string{
	0:  "Em aberto",
	1:  "Atendido",
	2:  "Cancelado",
	3:  "Em andamento",
	4:  "Venda agenciada",
	5:  "Verificado",
	6:  "Em aberto",
	7:  "Em digitação",
	8:  "Aguardando pagamento",
	9:  "Atendido",
	10: "Pagamento aprovado",
	11: "Em separação",
	12: "Cancelado",
	13: "Faturado",
	14: "Pronto para envio",
	15: "Em andamento",
	16: "Enviado",
	17: "Entregue",
	18: "Venda agenciada",
	19: "Bloqueado",
	20: "Devolvido",
	21: "Em digitação",
	22: "Aguardando estoque",
	23: "Checado",
	24: "Verificado",
	25: "Aprovado",
	26: "Em trânsito",
	27: "Não entregue",
	28: "Reembolsado",
	29: "Em disputa",
	30: "Concluído",
}

// Resolver evaluates extractors in order and returns the first hit.
type Resolver struct {
	extractors []Extractor
	codes      map[int]string
	fallback   string
}

// Option configures a Resolver
type Option func(*Resolver)

// WithCodeTable replaces the code table
func WithCodeTable(codes map[int]string) Option {
	return func(r *Resolver) { r.codes = codes }
}

// WithExtractors replaces the extractor order
func WithExtractors(extractors ...Extractor) Option {
	return func(r *Resolver) { r.extractors = extractors }
}

// WithDefaultLabel replaces the label used when nothing is found
func WithDefaultLabel(label string) Option {
	return func(r *Resolver) { r.fallback = label }
}

// NewResolver creates a resolver using DefaultExtractors and CodeTable
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		extractors: DefaultExtractors,
		codes:      CodeTable,
		fallback:   DefaultLabel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical status of a raw order.
//
// Text fields always win over codes, wherever they appear in the extractor list.
// The first code found is translated through the table, or rendered as
// "Status {code}" when the table has no entry for it.
func (r *Resolver) Resolve(order map[string]any) string {
	if order == nil {
		return r.fallback
	}

	for _, e := range r.extractors {
		if tf, ok := e.(TextField); ok {
			if s := tf.text(order); s != "" {
				return s
			}
		}
	}

	for _, e := range r.extractors {
		if cf, ok := e.(CodeField); ok {
			if code, found := cf.code(order); found {
				if label, mapped := r.codes[code]; mapped {
					return label
				}
				return fmt.Sprintf("Status %d", code)
			}
		}
	}

	return r.fallback
}
