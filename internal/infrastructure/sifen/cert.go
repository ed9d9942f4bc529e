// Package sifen implementa la infraestructura del núcleo de envío SIFEN:
// carga de certificados PKCS#12, CSC, firma, cliente SOAP y parser de
// respuestas de la SET.
package sifen

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pkcs12"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	"github.com/jhoicas/sifen-core/pkg/logger"
)

// Certificate es la vista inmutable del certificado cargado. Se construye una
// sola vez en LoadStore; la validez se re-evalúa por uso (ver Validate).
type Certificate struct {
	Serial     string // serial en hexadecimal mayúsculas
	SubjectDN  string
	IssuerDN   string
	NotBefore  time.Time
	NotAfter   time.Time
	PublicKey  *rsa.PublicKey
	RUC        string // RUC del titular con dígito verificador (ej: "80012345-0"); vacío si no extraíble
	Thumbprint string // SHA-256 del DER, hexadecimal

	x509cert *x509.Certificate
}

// X509 expone el certificado subyacente (solo lectura).
func (c *Certificate) X509() *x509.Certificate { return c.x509cert }

// SigningKey envuelve la llave privada RSA. Es de solo lectura después de la
// carga y segura para firmas concurrentes; Release corta la referencia al
// cerrar el proceso. La llave jamás se serializa en logs.
type SigningKey struct {
	mu  sync.RWMutex
	key *rsa.PrivateKey
}

// RSA devuelve la llave privada, o nil si ya fue liberada.
func (k *SigningKey) RSA() *rsa.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

// Release libera la referencia a la llave. Idempotente.
func (k *SigningKey) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.key = nil
}

// CertificateInfoProvider lo satisface cualquier almacén de certificados
// concreto; los consumidores dependen de esta interfaz y no del store.
type CertificateInfoProvider interface {
	CertificateInfo() *Certificate
}

// CertificateStore carga y posee el par certificado + llave privada de un
// bundle PKCS#12. Dueño exclusivo de ambos durante la vida del proceso.
type CertificateStore struct {
	cert *Certificate
	key  *SigningKey
	log  *logger.Logger

	// Ventana de gracia: el certificado debe seguir vigente al menos este
	// lapso para considerarse usable (default 72h).
	graceWindow time.Duration

	// Cache corto del reporte de validación: la vigencia se re-evalúa por
	// uso, pero no más de una vez cada reportTTL.
	mu           sync.Mutex
	lastReport   *ValidationReport
	lastReportAt time.Time
}

const defaultGraceWindow = 72 * time.Hour

// LoadStore abre el bundle PKCS#12 y construye el almacén.
// Falla con CertificateError (NO_ENCONTRADO o ERROR_CARGA): password
// incorrecto, bundle corrupto o llave que no sea RSA.
func LoadStore(path, password string, log *logger.Logger) (*CertificateStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	if path == "" {
		return nil, &domsifen.CertificateError{
			Reason: domsifen.CertificateNotFound, Path: path,
			Err: fmt.Errorf("ruta del bundle vacía"),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		reason := domsifen.CertificateLoad
		if os.IsNotExist(err) {
			reason = domsifen.CertificateNotFound
		}
		return nil, &domsifen.CertificateError{Reason: reason, Path: path, Err: err}
	}

	priv, x509cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, &domsifen.CertificateError{
			Reason: domsifen.CertificateLoad, Path: path,
			Err: fmt.Errorf("decodificar PKCS#12: %w", err),
		}
	}

	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, &domsifen.CertificateError{
			Reason: domsifen.CertificateLoad, Path: path,
			Err: fmt.Errorf("la llave privada debe ser RSA, se recibió %T", priv),
		}
	}
	rsaPub, ok := x509cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, &domsifen.CertificateError{
			Reason: domsifen.CertificateLoad, Path: path,
			Err: fmt.Errorf("la llave pública del certificado debe ser RSA, se recibió %T", x509cert.PublicKey),
		}
	}

	thumb := sha256.Sum256(x509cert.Raw)
	cert := &Certificate{
		Serial:     strings.ToUpper(hex.EncodeToString(x509cert.SerialNumber.Bytes())),
		SubjectDN:  x509cert.Subject.String(),
		IssuerDN:   x509cert.Issuer.String(),
		NotBefore:  x509cert.NotBefore,
		NotAfter:   x509cert.NotAfter,
		PublicKey:  rsaPub,
		RUC:        extractRUC(x509cert),
		Thumbprint: hex.EncodeToString(thumb[:]),
		x509cert:   x509cert,
	}

	log.Info().
		Str("serial", logger.Mask(cert.Serial)).
		Str("ruc", logger.Mask(cert.RUC)).
		Time("not_after", cert.NotAfter).
		Msg("certificado cargado")

	return &CertificateStore{
		cert:        cert,
		key:         &SigningKey{key: rsaKey},
		log:         log,
		graceWindow: defaultGraceWindow,
	}, nil
}

// SetGraceWindow ajusta la ventana de gracia de vigencia (default 72h).
func (s *CertificateStore) SetGraceWindow(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graceWindow = d
	s.lastReport = nil
}

// CertificateInfo implementa CertificateInfoProvider.
func (s *CertificateStore) CertificateInfo() *Certificate { return s.cert }

// Key devuelve la llave de firma.
func (s *CertificateStore) Key() *SigningKey { return s.key }

// Close libera la llave privada. El certificado queda inutilizable para firmar.
func (s *CertificateStore) Close() {
	s.key.Release()
}

// extractRUC obtiene el RUC del titular. Los certificados de persona jurídica
// lo traen en el atributo serialNumber del subject (forma "RUC80012345-0");
// los de persona física en una entrada del Subject Alternative Name. El
// atributo del subject tiene prioridad si ambos están presentes.
func extractRUC(cert *x509.Certificate) string {
	if ruc := normalizeRUC(cert.Subject.SerialNumber); ruc != "" {
		return ruc
	}
	for _, name := range cert.DNSNames {
		if ruc := normalizeRUC(name); ruc != "" {
			return ruc
		}
	}
	for _, u := range cert.URIs {
		if ruc := normalizeRUC(u.Opaque); ruc != "" {
			return ruc
		}
		if ruc := normalizeRUC(strings.TrimPrefix(u.String(), "urn:")); ruc != "" {
			return ruc
		}
	}
	return ""
}

// normalizeRUC acepta "RUC80012345-0", "80012345-0" o "800123450" y devuelve
// la forma canónica "80012345-0"; cadena vacía si no tiene forma de RUC.
func normalizeRUC(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimPrefix(s, "RUC")
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		} else if s[i] != '-' {
			return ""
		}
	}
	if len(digits) != 9 {
		return ""
	}
	return string(digits[:8]) + "-" + string(digits[8])
}
