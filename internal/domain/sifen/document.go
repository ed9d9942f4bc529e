package sifen

import "time"

// SignedDocument XML firmado con su bloque de firma embebido. Inmutable una
// vez creado: cualquier mutación del documento subyacente invalida la firma y
// exige re-firmar.
type SignedDocument struct {
	XML               []byte // documento completo con ds:Signature como último hijo de la raíz
	DigestValue       string // digest SHA-256 del documento canónico, Base64
	SignatureValue    string // firma RSA del SignedInfo canónico, Base64
	CertificateSerial string // serial del certificado firmante, hexadecimal
	SignedAt          time.Time
}

// SubmissionRequest un documento firmado listo para enviar.
type SubmissionRequest struct {
	Document          *SignedDocument
	CertificateSerial string
	Metadata          map[string]string // opcional, trazabilidad del caller
}

// BatchMaxSize tope duro de documentos por lote; se verifica antes de
// cualquier llamada de red.
const BatchMaxSize = 50
