package sifen

import (
	"fmt"
	"time"
)

// Razones de fallo al cargar/validar el certificado.
type CertificateFailureReason string

const (
	CertificateNotFound CertificateFailureReason = "NO_ENCONTRADO"
	CertificateLoad     CertificateFailureReason = "ERROR_CARGA" // password incorrecto, bundle corrupto, llave no RSA
	CertificateInvalid  CertificateFailureReason = "INVALIDO"    // vencido, uso de llave insuficiente, RUC inválido
)

// CertificateError fallo de carga o validación del certificado.
// Nunca se reintenta: un problema de llave o contenido no se cura solo.
type CertificateError struct {
	Reason CertificateFailureReason
	Path   string
	Err    error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("sifen: certificado (%s) %s: %v", e.Reason, e.Path, e.Err)
}

func (e *CertificateError) Unwrap() error { return e.Err }

// SigningError XML de entrada malformado o llave no soportada. Fatal.
type SigningError struct {
	Step string // parse, canonicalize, sign, inject
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sifen: firma (%s): %v", e.Step, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// ValidationError el contenido de la petición no pasa la prevalidación del
// orquestador. Corta el circuito antes de cualquier llamada de red y requiere
// corrección del caller; nunca se reintenta.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sifen: documento inválido: %v", e.Issues)
}

// ConnectionError fallo de transporte (DNS, TCP, TLS). Reintentable.
type ConnectionError struct {
	Endpoint string // nombre lógico del endpoint, nunca la URL con datos sensibles
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sifen: conexión al endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Fases de timeout diferenciadas para diagnóstico.
type TimeoutPhase string

const (
	TimeoutConnect TimeoutPhase = "connect"
	TimeoutRead    TimeoutPhase = "read"
	TimeoutTotal   TimeoutPhase = "total"
)

// TimeoutError vencimiento de plazo en la fase indicada. Reintentable.
type TimeoutError struct {
	Phase   TimeoutPhase
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sifen: timeout de %s tras %s: %v", e.Phase, e.Elapsed, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Timeout() bool { return true }

// ServerError respuesta 5xx o fault equivalente del WS. Reintentable.
type ServerError struct {
	StatusCode int
	Status     string
	Preview    string // cuerpo truncado y enmascarado, solo para diagnóstico
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sifen: error del servidor SIFEN (%d %s)", e.StatusCode, e.Status)
}

// ParsingError respuesta de la SET malformada o vacía. Fatal; el Preview va
// truncado y con datos sensibles enmascarados.
type ParsingError struct {
	Preview string
	Err     error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("sifen: respuesta no parseable: %v (preview: %s)", e.Err, e.Preview)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// ResponseCoder lo implementan los errores que transportan un código de
// respuesta de la SET; el coordinador de reintentos lo consulta para decidir
// la reintentabilidad vía el clasificador.
type ResponseCoder interface {
	ResponseCode() string
}

// RejectionError respuesta bien formada pero con código de rechazo que el
// clasificador marcó como no exitoso. Transporta el código para clasificación.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("sifen: documento rechazado [%s]: %s", e.Code, e.Message)
}

func (e *RejectionError) ResponseCode() string { return e.Code }
