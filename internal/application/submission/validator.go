package submission

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	pkgsifen "github.com/jhoicas/sifen-core/pkg/sifen"
)

// Límites de la prevalidación local (sin llamada de red).
const (
	maxDocumentBytes  = 10 << 20 // rechazo duro
	warnDocumentBytes = 1 << 20  // advertencia, no bloquea
)

// Validator prevalidación estructural del documento antes de gastar una
// llamada de red. No valida las reglas de negocio de la SET: solo lo que
// garantiza un rechazo seguro del WS.
type Validator struct{}

// NewValidator crea el validador.
func NewValidator() *Validator { return &Validator{} }

// Validate devuelve las advertencias no fatales y, si el documento no puede
// enviarse, un ValidationError que corta antes de cualquier llamada de red.
func (v *Validator) Validate(xmlBytes []byte) ([]string, error) {
	if len(xmlBytes) == 0 {
		return nil, &domsifen.ValidationError{Issues: []string{"documento XML vacío"}}
	}
	if len(xmlBytes) > maxDocumentBytes {
		return nil, &domsifen.ValidationError{Issues: []string{
			fmt.Sprintf("documento de %d bytes supera el máximo de %d", len(xmlBytes), maxDocumentBytes),
		}}
	}

	var warnings []string
	if len(xmlBytes) > warnDocumentBytes {
		warnings = append(warnings,
			fmt.Sprintf("documento de %d bytes supera 1 MB; el WS puede demorar", len(xmlBytes)))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &domsifen.ValidationError{Issues: []string{"XML malformado: " + err.Error()}}
	}
	root := doc.Root()
	if root == nil {
		return nil, &domsifen.ValidationError{Issues: []string{"documento sin elemento raíz"}}
	}

	var issues []string

	// Namespace obligatorio del DE.
	if !hasNamespace(root, pkgsifen.NamespaceSIFEN) {
		issues = append(issues,
			fmt.Sprintf("falta el namespace obligatorio %s", pkgsifen.NamespaceSIFEN))
	}

	// Elementos de primer nivel obligatorios: raíz rDE con un DE, o DE directo.
	de := root
	if root.Tag != "DE" {
		if root.Tag != "rDE" {
			issues = append(issues,
				fmt.Sprintf("raíz %q no reconocida (se espera rDE o DE)", root.Tag))
		}
		de = findChild(root, "DE")
		if de == nil {
			issues = append(issues, "falta el elemento DE dentro de la raíz")
		}
	}

	if len(issues) > 0 {
		return warnings, &domsifen.ValidationError{Issues: issues}
	}

	// Monto total en cero: la SET suele observarlo; advertencia, no rechazo.
	if total := findDescendantText(de, "dTotGralOpe"); total != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(total)); err == nil && d.IsZero() {
			warnings = append(warnings, "dTotGralOpe es cero; verificar los montos del documento")
		}
	}

	return warnings, nil
}

func hasNamespace(root *etree.Element, ns string) bool {
	for _, attr := range root.Attr {
		if (attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns")) && attr.Value == ns {
			return true
		}
	}
	return false
}

func findChild(parent *etree.Element, tag string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func findDescendantText(root *etree.Element, tag string) string {
	if root == nil {
		return ""
	}
	var walk func(e *etree.Element) string
	walk = func(e *etree.Element) string {
		for _, child := range e.ChildElements() {
			if child.Tag == tag {
				return child.Text()
			}
			if found := walk(child); found != "" {
				return found
			}
		}
		return ""
	}
	return walk(root)
}
