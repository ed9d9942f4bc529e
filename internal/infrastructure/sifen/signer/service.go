// Servicio de firma digital enveloped XMLDSig para documentos electrónicos
// SIFEN. Inyecta <ds:Signature> como último hijo de la raíz del documento.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	"github.com/jhoicas/sifen-core/pkg/logger"
)

// Service implementa la firma y verificación enveloped XMLDSig:
// canonicalización exclusiva, digest SHA-256, firma RSA PKCS#1 v1.5.
type Service struct {
	log *logger.Logger
}

// NewService crea el servicio de firma.
func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{log: log}
}

// Sign firma el documento XML y devuelve el documento con la firma embebida.
// Pasos: canonicalizar el documento (exclusive C14N), digest SHA-256, armar y
// canonicalizar el SignedInfo, firmarlo con RSA-SHA256 (PKCS#1 v1.5) e
// inyectar el bloque ds:Signature como último hijo de la raíz, preservando la
// declaración XML UTF-8.
func (s *Service) Sign(xmlBytes []byte, cert *x509.Certificate, key *rsa.PrivateKey) (*domsifen.SignedDocument, error) {
	if len(xmlBytes) == 0 {
		return nil, &domsifen.SigningError{Step: "parse", Err: fmt.Errorf("XML vacío")}
	}
	if key == nil {
		return nil, &domsifen.SigningError{Step: "sign", Err: fmt.Errorf("llave privada no disponible (liberada?)")}
	}
	if cert == nil {
		return nil, &domsifen.SigningError{Step: "sign", Err: fmt.Errorf("certificado no disponible")}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &domsifen.SigningError{Step: "parse", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &domsifen.SigningError{Step: "parse", Err: fmt.Errorf("documento sin elemento raíz")}
	}

	// 1) Digest del documento completo (Reference URI="", transform enveloped:
	// el documento aún no contiene la firma). Se canonicaliza la forma
	// re-serializada por etree para que Verify, que pasa por el mismo
	// round-trip al quitar la firma, recompute exactamente los mismos bytes.
	reserialized, err := doc.WriteToBytes()
	if err != nil {
		return nil, &domsifen.SigningError{Step: "canonicalize", Err: err}
	}
	canonicalDoc, err := canonicalize(reserialized)
	if err != nil {
		return nil, &domsifen.SigningError{Step: "canonicalize", Err: err}
	}
	docDigest := sha256.Sum256(canonicalDoc)
	digestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo canónico y firma RSA.
	signedInfoXML := buildSignedInfo(digestB64)
	canonicalSignedInfo, err := canonicalize([]byte(signedInfoXML))
	if err != nil {
		return nil, &domsifen.SigningError{Step: "canonicalize", Err: err}
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, key, crypto.SHA256, signedInfoDigest[:])
	if err != nil {
		return nil, &domsifen.SigningError{Step: "sign", Err: err}
	}
	signatureB64 := base64.StdEncoding.EncodeToString(signatureValue)

	// 3) Bloque completo con KeyInfo/X509Certificate.
	certB64 := base64.StdEncoding.EncodeToString(cert.Raw)
	signatureXML := buildSignature(signedInfoXML, signatureB64, certB64)

	// 4) Inyectar como último hijo de la raíz.
	signed, err := injectSignature(doc, signatureXML)
	if err != nil {
		return nil, err
	}

	return &domsifen.SignedDocument{
		XML:               signed,
		DigestValue:       digestB64,
		SignatureValue:    signatureB64,
		CertificateSerial: strings.ToUpper(fmt.Sprintf("%x", cert.SerialNumber)),
		SignedAt:          time.Now(),
	}, nil
}

// Verify comprueba la firma enveloped de un documento. Devuelve false ante
// cualquier discrepancia (digest, firma, nodo ausente); solo devuelve error
// si el XML está estructuralmente malformado.
func (s *Service) Verify(signedXML []byte, pub *rsa.PublicKey) (bool, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return false, &domsifen.SigningError{Step: "parse", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return false, &domsifen.SigningError{Step: "parse", Err: fmt.Errorf("documento sin elemento raíz")}
	}

	sig := findChildByLocalTag(root, "Signature")
	if sig == nil || pub == nil {
		return false, nil
	}

	signedInfo := findChildByLocalTag(sig, "SignedInfo")
	digestValue := findDescendantText(sig, "DigestValue")
	signatureValue := findChildByLocalTag(sig, "SignatureValue")
	if signedInfo == nil || digestValue == "" || signatureValue == nil {
		return false, nil
	}

	// 1) Recalcular el digest del documento sin el bloque de firma.
	root.RemoveChild(sig)
	stripped, err := doc.WriteToBytes()
	if err != nil {
		return false, nil
	}
	canonicalDoc, err := canonicalize(stripped)
	if err != nil {
		return false, nil
	}
	recomputed := sha256.Sum256(canonicalDoc)
	expected, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestValue))
	if err != nil || !bytes.Equal(recomputed[:], expected) {
		return false, nil
	}

	// 2) Verificar la firma sobre el SignedInfo canónico.
	signedInfoDoc := etree.NewDocument()
	signedInfoDoc.SetRoot(signedInfo.Copy())
	signedInfoXML, err := signedInfoDoc.WriteToBytes()
	if err != nil {
		return false, nil
	}
	canonicalSignedInfo, err := canonicalize(signedInfoXML)
	if err != nil {
		return false, nil
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo)

	sigBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureValue.Text()))
	if err != nil {
		return false, nil
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedInfoDigest[:], sigBytes); err != nil {
		return false, nil
	}
	return true, nil
}

// canonicalize aplica canonicalización exclusiva (exc-c14n) sobre los bytes XML.
func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// buildSignedInfo arma el SignedInfo con el orden de hijos exigido:
// CanonicalizationMethod, SignatureMethod, Reference (Transforms, DigestMethod,
// DigestValue). La Reference con URI="" cubre el documento completo.
func buildSignedInfo(digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgExcC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms>`)
	sb.WriteString(`<ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgExcC14N + `"/>`)
	sb.WriteString(`</ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + digestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// injectSignature agrega el bloque de firma como último hijo de la raíz y
// garantiza la declaración XML UTF-8 en la salida.
func injectSignature(doc *etree.Document, signatureXML string) ([]byte, error) {
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, &domsifen.SigningError{Step: "inject", Err: err}
	}
	sigRoot := sigDoc.Root()
	if sigRoot == nil {
		return nil, &domsifen.SigningError{Step: "inject", Err: fmt.Errorf("bloque de firma sin raíz")}
	}
	doc.Root().AddChild(sigRoot)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, &domsifen.SigningError{Step: "inject", Err: err}
	}
	if !bytes.HasPrefix(out, []byte("<?xml")) {
		out = append([]byte(`<?xml version="1.0" encoding="UTF-8"?>`+"\n"), out...)
	}
	return out, nil
}

// findChildByLocalTag busca un hijo directo por nombre local, ignorando el
// prefijo de namespace (los documentos de la SET llegan con y sin prefijo ds:).
func findChildByLocalTag(parent *etree.Element, local string) *etree.Element {
	for _, child := range parent.ChildElements() {
		tag := child.Tag
		if idx := strings.Index(tag, ":"); idx != -1 {
			tag = tag[idx+1:]
		}
		if tag == local {
			return child
		}
	}
	return nil
}

func findDescendantText(root *etree.Element, local string) string {
	var walk func(e *etree.Element) string
	walk = func(e *etree.Element) string {
		for _, child := range e.ChildElements() {
			tag := child.Tag
			if idx := strings.Index(tag, ":"); idx != -1 {
				tag = tag[idx+1:]
			}
			if tag == local {
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
