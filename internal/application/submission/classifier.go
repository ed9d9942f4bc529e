// Package submission compone el núcleo de envío: prevalidación, orquestación
// de envíos individuales y por lote, y clasificación de códigos de respuesta
// de la SET en resultados accionables.
package submission

import (
	"errors"
	"sort"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
)

// Category categoría operativa de un código de respuesta.
type Category string

const (
	CategorySuccess        Category = "EXITO"
	CategoryValidation     Category = "VALIDACION"
	CategoryAuthentication Category = "AUTENTICACION"
	CategoryBusinessRules  Category = "REGLAS_NEGOCIO"
	CategorySystem         Category = "SISTEMA"
	CategoryNetwork        Category = "RED"
	CategoryUnknown        Category = "DESCONOCIDO"
)

// Severity severidad de la clasificación.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "ADVERTENCIA"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICO"
)

// Classification resultado accionable para un código de respuesta.
type Classification struct {
	Code               string
	Category           Category
	Severity           Severity
	UserMessage        string
	Recommendations    []string
	Retryable          bool
	RequiresUserAction bool
}

// Classifier tabla estática de códigos conocidos de la SET más la inferencia
// por primer dígito para códigos nunca vistos.
type Classifier struct {
	table map[string]Classification
}

// NewClassifier construye el clasificador con la tabla de códigos conocidos.
// Los códigos y su semántica son los definidos por la SET y se reproducen
// textualmente.
func NewClassifier() *Classifier {
	table := map[string]Classification{
		"0260": {
			Code: "0260", Category: CategorySuccess, Severity: SeverityInfo,
			UserMessage: "Documento electrónico aprobado por la SET.",
		},
		"1005": {
			Code: "1005", Category: CategorySuccess, Severity: SeverityWarning,
			UserMessage: "Documento aprobado con observaciones; revisar las observaciones devueltas.",
			Recommendations: []string{
				"Revisar las observaciones y corregir en emisiones futuras",
			},
		},
		"1000": {
			Code: "1000", Category: CategoryValidation, Severity: SeverityError,
			UserMessage: "El CDC declarado no corresponde al contenido del documento.",
			Recommendations: []string{
				"Recalcular el CDC a partir del contenido actual del documento",
				"Verificar que el documento no haya sido modificado después de calcular el CDC",
			},
			RequiresUserAction: true,
		},
		"1001": {
			Code: "1001", Category: CategoryValidation, Severity: SeverityError,
			UserMessage: "CDC duplicado: ya existe un documento con ese código de control.",
			Recommendations: []string{
				"Verificar el número de documento y el código de seguridad utilizados",
				"Consultar por CDC para recuperar el estado del documento ya enviado",
			},
			RequiresUserAction: true,
		},
		"1101": {
			Code: "1101", Category: CategoryAuthentication, Severity: SeverityError,
			UserMessage: "Timbrado inválido.",
			Recommendations: []string{
				"Verificar el número de timbrado declarado ante la SET",
			},
			RequiresUserAction: true,
		},
		"1110": {
			Code: "1110", Category: CategoryAuthentication, Severity: SeverityError,
			UserMessage: "Timbrado vencido.",
			Recommendations: []string{
				"Renovar el timbrado ante la SET antes de volver a emitir",
			},
			RequiresUserAction: true,
		},
		"1111": {
			Code: "1111", Category: CategoryAuthentication, Severity: SeverityError,
			UserMessage: "Timbrado inactivo.",
			Recommendations: []string{
				"Verificar el estado del timbrado en el portal de la SET",
			},
			RequiresUserAction: true,
		},
		"1250": {
			Code: "1250", Category: CategoryBusinessRules, Severity: SeverityError,
			UserMessage: "RUC del emisor inexistente.",
			Recommendations: []string{
				"Verificar el RUC del emisor y su dígito verificador",
			},
			RequiresUserAction: true,
		},
		"1255": {
			Code: "1255", Category: CategoryBusinessRules, Severity: SeverityError,
			UserMessage: "RUC del receptor inexistente.",
			Recommendations: []string{
				"Verificar el RUC del receptor con el padrón de la SET",
			},
			RequiresUserAction: true,
		},
		"0141": {
			Code: "0141", Category: CategoryValidation, Severity: SeverityError,
			UserMessage: "Firma digital inválida.",
			Recommendations: []string{
				"Verificar la vigencia y usos del certificado de firma",
				"Re-firmar el documento sin modificarlo después de la firma",
			},
			RequiresUserAction: true,
		},
		"5000": {
			Code: "5000", Category: CategorySystem, Severity: SeverityCritical,
			UserMessage: "Error interno del sistema SIFEN.",
			Recommendations: []string{
				"Reintentar el envío; si persiste, verificar el estado del servicio de la SET",
			},
			Retryable: true,
		},
		"5001": {
			Code: "5001", Category: CategorySystem, Severity: SeverityCritical,
			UserMessage: "Servicio SIFEN temporalmente no disponible.",
			Recommendations: []string{"Reintentar con backoff"},
			Retryable:       true,
		},
		"5002": {
			Code: "5002", Category: CategorySystem, Severity: SeverityCritical,
			UserMessage: "Error de base de datos del sistema SIFEN.",
			Recommendations: []string{"Reintentar con backoff"},
			Retryable:       true,
		},
		"5003": {
			Code: "5003", Category: CategorySystem, Severity: SeverityCritical,
			UserMessage: "Tiempo de procesamiento agotado en el sistema SIFEN.",
			Recommendations: []string{"Reintentar con backoff"},
			Retryable:       true,
		},
	}
	return &Classifier{table: table}
}

// Classify devuelve la clasificación del código; para códigos no tabulados
// infiere por el primer dígito (0→autenticación/éxito, 1→validación,
// 2-4→reglas de negocio, 5→sistema crítico reintentable). Nunca devuelve
// clasificación nula.
func (c *Classifier) Classify(code string) Classification {
	if cls, ok := c.table[code]; ok {
		return cls
	}
	return classifyUnknown(code)
}

func classifyUnknown(code string) Classification {
	cls := Classification{
		Code:        code,
		Category:    CategoryUnknown,
		Severity:    SeverityError,
		UserMessage: "Código de respuesta no catalogado; revisar el mensaje crudo de la SET.",
		Recommendations: []string{
			"Consultar el Manual Técnico SIFEN para el detalle del código",
		},
	}
	if code == "" {
		return cls
	}
	switch code[0] {
	case '0':
		cls.Category = CategoryAuthentication
		cls.Severity = SeverityWarning
	case '1':
		cls.Category = CategoryValidation
		cls.RequiresUserAction = true
	case '2', '3', '4':
		cls.Category = CategoryBusinessRules
		cls.RequiresUserAction = true
	case '5':
		cls.Category = CategorySystem
		cls.Severity = SeverityCritical
		cls.Retryable = true
	}
	return cls
}

// IsRetryable implementa retry.RetryabilityDecider: si el error transporta un
// código de respuesta de la SET, decide con la tabla; si no, no decide y el
// coordinador cae a su heurística por tipo.
func (c *Classifier) IsRetryable(err error) (retryable, decided bool) {
	var coder domsifen.ResponseCoder
	if errors.As(err, &coder) {
		return c.Classify(coder.ResponseCode()).Retryable, true
	}
	return false, false
}

// PatternAnalysis agregado sobre un historial de códigos de fallo; para
// tableros operativos, no para decisiones por llamada.
type PatternAnalysis struct {
	DominantCategory Category
	DominantSeverity Severity
	Counts           map[Category]int
	Recommendations  []string
}

// AnalyzePattern computa la categoría y severidad dominantes de un conjunto
// de códigos históricos y consolida las recomendaciones.
func (c *Classifier) AnalyzePattern(codes []string) PatternAnalysis {
	analysis := PatternAnalysis{Counts: make(map[Category]int)}
	if len(codes) == 0 {
		analysis.DominantCategory = CategoryUnknown
		analysis.DominantSeverity = SeverityInfo
		return analysis
	}

	sevRank := map[Severity]int{SeverityInfo: 0, SeverityWarning: 1, SeverityError: 2, SeverityCritical: 3}
	recSeen := map[string]bool{}
	maxSev := SeverityInfo

	for _, code := range codes {
		cls := c.Classify(code)
		analysis.Counts[cls.Category]++
		if sevRank[cls.Severity] > sevRank[maxSev] {
			maxSev = cls.Severity
		}
		for _, r := range cls.Recommendations {
			if !recSeen[r] {
				recSeen[r] = true
				analysis.Recommendations = append(analysis.Recommendations, r)
			}
		}
	}

	// Dominante: mayor conteo; empate se resuelve por orden alfabético para
	// que el resultado sea determinista.
	categories := make([]Category, 0, len(analysis.Counts))
	for cat := range analysis.Counts {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		if analysis.Counts[categories[i]] != analysis.Counts[categories[j]] {
			return analysis.Counts[categories[i]] > analysis.Counts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	analysis.DominantCategory = categories[0]
	analysis.DominantSeverity = maxSev
	return analysis
}
