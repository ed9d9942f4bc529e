// Package sifen define el vocabulario de dominio del núcleo de envío SIFEN:
// resultados, estados de documento y la taxonomía de errores estructurados.
// No depende de infraestructura; el caller persiste usando estos tipos.
package sifen

import "time"

// DocumentStatus estado de un documento electrónico según la respuesta de la SET.
type DocumentStatus string

const (
	StatusApproved                 DocumentStatus = "APROBADO"
	StatusApprovedWithObservations DocumentStatus = "APROBADO_CON_OBSERVACIONES"
	StatusRejected                 DocumentStatus = "RECHAZADO"
	StatusTechnicalError           DocumentStatus = "ERROR_TECNICO"
	StatusPending                  DocumentStatus = "PENDIENTE"
)

// ResponseDetail un error u observación puntual devuelto por la SET.
type ResponseDetail struct {
	Code    string
	Message string
}

// DocumentSummary entrada de la lista de documentos en consultas por RUC.
type DocumentSummary struct {
	CDC       string
	Status    DocumentStatus
	IssueDate string
	Protocol  string
}

// Outcome resultado estructurado de un ciclo petición/respuesta con la SET.
// Es inmutable una vez producido por el parser y enriquecido por el
// clasificador; el caller decide con él la transición de estado de negocio.
type Outcome struct {
	Success        bool
	Code           string // dCodRes tal cual lo devuelve la SET
	Message        string // dMsgRes crudo
	CDC            string // solo si la SET devolvió un CDC de 44 dígitos bien formado
	ProtocolNumber string // dProtAut / número de lote
	Status         DocumentStatus
	Errors         []ResponseDetail
	Observations   []ResponseDetail
	Documents      []DocumentSummary // solo consultas por RUC

	// Paginación de consultas (vacío en envíos).
	Page       int
	TotalPages int

	Elapsed time.Duration
}

// SubmissionResult resultado de un Submit individual: el Outcome más el
// contexto operativo (reintentos, advertencias de prevalidación, mensaje
// enriquecido y recomendaciones del clasificador).
type SubmissionResult struct {
	Outcome            *Outcome
	RetryCount         int
	Elapsed            time.Duration
	ValidationWarnings []string
	EnrichedMessage    string
	Recommendations    []string
}

// Códigos sintéticos a nivel de lote.
const (
	BatchCodeAllSuccess = "LOTE_OK"
	BatchCodePartial    = "LOTE_PARCIAL"
	BatchCodeAllFailed  = "LOTE_ERROR"
)

// DocumentResult resultado de un documento dentro de un lote.
type DocumentResult struct {
	Index  int
	Result *SubmissionResult
	Err    error
}

// BatchSendResult agregado de un SubmitBatch. Success es true solo si ningún
// documento falló.
type BatchSendResult struct {
	BatchID      string
	Code         string // LOTE_OK, LOTE_PARCIAL o LOTE_ERROR
	Success      bool
	SuccessCount int
	FailureCount int
	Results      []DocumentResult
	Elapsed      time.Duration
}
