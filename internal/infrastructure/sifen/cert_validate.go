package sifen

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	pkgsifen "github.com/jhoicas/sifen-core/pkg/sifen"
)

// ValidationReport resultado de la validación de política del certificado.
// Errors inutiliza el certificado para firmar; Warnings se informan pero no
// bloquean.
type ValidationReport struct {
	Valid     bool
	Errors    []string
	Warnings  []string
	CheckedAt time.Time
}

// reportTTL: la vigencia se re-evalúa por uso, pero el reporte se cachea este
// lapso para no recomputar la política en cada firma.
const reportTTL = 30 * time.Second

// recognizedIssuers prestadores de servicios de certificación habilitados por
// el MIC para firma cuantificada en Paraguay. Emisor fuera de la lista es
// advertencia, no error.
var recognizedIssuers = []string{
	"DOCUMENTA S.A.",
	"EFIRMA S.A.",
	"VIT S.A.",
	"CODE 100 S.A.",
}

// Validate evalúa la política criptográfica de la SET sobre el certificado
// cargado: vigencia con ventana de gracia, RSA 2048/4096, uso de llave de
// firma digital, EKU de autenticación de cliente (advertencia), emisor
// reconocido (advertencia) y RUC extraíble con dígito verificador correcto.
func (s *CertificateStore) Validate() *ValidationReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.lastReport != nil && now.Sub(s.lastReportAt) < reportTTL {
		return s.lastReport
	}

	report := &ValidationReport{CheckedAt: now}
	cert := s.cert

	// Vigencia: debe estar dentro de la ventana y seguir vigente al menos
	// durante la ventana de gracia.
	switch {
	case now.Before(cert.NotBefore):
		report.Errors = append(report.Errors,
			fmt.Sprintf("el certificado aún no es válido (válido desde %s)", cert.NotBefore.Format(time.RFC3339)))
	case now.After(cert.NotAfter):
		report.Errors = append(report.Errors,
			fmt.Sprintf("el certificado venció el %s", cert.NotAfter.Format(time.RFC3339)))
	case now.Add(s.graceWindow).After(cert.NotAfter):
		report.Errors = append(report.Errors,
			fmt.Sprintf("el certificado vence dentro de la ventana de gracia de %s (%s)",
				s.graceWindow, cert.NotAfter.Format(time.RFC3339)))
	}

	// Algoritmo y tamaño de llave.
	if cert.PublicKey == nil {
		report.Errors = append(report.Errors, "el certificado no tiene llave pública RSA")
	} else {
		bits := cert.PublicKey.N.BitLen()
		if bits != 2048 && bits != 4096 {
			report.Errors = append(report.Errors,
				fmt.Sprintf("tamaño de llave RSA no permitido: %d bits (se exige 2048 o 4096)", bits))
		}
	}

	// Usos de llave.
	x := cert.x509cert
	if x.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		report.Errors = append(report.Errors, "el certificado no declara el uso de llave digitalSignature")
	}
	if !hasExtKeyUsage(x, x509.ExtKeyUsageClientAuth) {
		report.Warnings = append(report.Warnings,
			"el certificado no declara extended key usage clientAuth; puede ser rechazado por el WS")
	}

	// Emisor reconocido.
	if !isRecognizedIssuer(cert.IssuerDN) {
		report.Warnings = append(report.Warnings,
			"el emisor del certificado no está en la lista de prestadores reconocidos")
	}

	// RUC del titular.
	if cert.RUC == "" {
		report.Errors = append(report.Errors,
			"no se pudo extraer el RUC del subject ni del subject alternative name")
	} else if err := pkgsifen.ValidateRUCCheckDigit(cert.RUC); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	report.Valid = len(report.Errors) == 0

	s.lastReport = report
	s.lastReportAt = now
	return report
}

func hasExtKeyUsage(cert *x509.Certificate, usage x509.ExtKeyUsage) bool {
	for _, u := range cert.ExtKeyUsage {
		if u == usage {
			return true
		}
	}
	return false
}

func isRecognizedIssuer(issuerDN string) bool {
	upper := strings.ToUpper(issuerDN)
	for _, issuer := range recognizedIssuers {
		if strings.Contains(upper, issuer) {
			return true
		}
	}
	return false
}
