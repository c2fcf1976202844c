package status

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Extractor inspects one location of a raw platform order.
//
// A TextField yields a label directly. A CodeField yields a numeric status
// code that the resolver translates through its code table.
type Extractor interface {
	Path() string
	isExtractor()
}

// TextField reads a string at a dotted path such as "situacao.nome".
type TextField string

// CodeField reads a number (or numeric string) at a dotted path such as "situacao.id".
type CodeField string

func (f TextField) Path() string { return string(f) }
func (f CodeField) Path() string { return string(f) }
func (TextField) isExtractor()   {}
func (CodeField) isExtractor()   {}

// text returns the trimmed string at the path, or "" when absent.
// Only string leaves count. Purely numeric strings are codes, not labels.
func (f TextField) text(order map[string]any) string {
	v, ok := lookup(order, string(f))
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if _, err := strconv.Atoi(s); err == nil {
		return ""
	}
	return s
}

// code returns the integer at the path. Floats from encoding/json, json.Number
// and numeric strings are all accepted.
func (f CodeField) code(order map[string]any) (int, bool) {
	v, ok := lookup(order, string(f))
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// lookup walks a dotted path through nested JSON objects.
func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// DefaultExtractors is the lookup order used for platform orders: text labels
// on the nested status objects, then on the order itself, then numeric codes.
var DefaultExtractors = []Extractor{
	TextField("situacao.nome"),
	TextField("situacao.descricao"),
	TextField("situacao.valor"),
	TextField("situacao.texto"),
	TextField("situacao.status"),
	TextField("situacao.situacao.nome"),
	TextField("situacao.situacao.descricao"),
	TextField("status.nome"),
	TextField("status.descricao"),
	TextField("status.valor"),
	TextField("status.texto"),
	TextField("status.status"),
	TextField("status.status.nome"),
	TextField("situacaoNome"),
	TextField("situacaoDescricao"),
	TextField("statusNome"),
	TextField("statusDescricao"),
	TextField("situacao"),
	TextField("status"),

	CodeField("situacao.id"),
	CodeField("situacao.codigo"),
	CodeField("situacao.valor"),
	CodeField("status.id"),
	CodeField("status.codigo"),
	CodeField("situacaoId"),
	CodeField("idSituacao"),
	CodeField("codigoSituacao"),
	CodeField("situacao"),
	CodeField("status"),
}
