package sifen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// URLs base de consulta pública ekuatia (representación gráfica KuDE).
const (
	qrBaseURLTest = "https://ekuatia.set.gov.py/consultas-test/qr"
	qrBaseURLProd = "https://ekuatia.set.gov.py/consultas/qr"
)

// QRParams datos mínimos para el enlace QR del KuDE.
// El CSC nunca viaja en claro: solo participa del cHashQR y se referencia por
// su identificador IdCSC (4 dígitos asignados por la SET).
type QRParams struct {
	Environment  string          // EnvironmentTest o EnvironmentProd
	CDC          string          // 44 dígitos
	IssueDate    string          // AAAA-MM-DD
	ReceiverRUC  string          // RUC o documento del receptor
	Total        decimal.Decimal // dTotGralOpe
	TotalIVA     decimal.Decimal // dTotIVA
	ItemCount    int             // cItems
	DigestValue  string          // DigestValue de la firma, en hexadecimal
	CSCID        string          // IdCSC, 4 dígitos
	CSC          string          // código de seguridad, solo para el hash
}

// BuildQRLink arma el enlace de consulta pública del documento. El parámetro
// final cHashQR es SHA-256(query + CSC) en hexadecimal, de modo que la SET
// puede verificar la autenticidad del enlace sin exponer el CSC.
func BuildQRLink(p QRParams) (string, error) {
	if err := ValidateCDC(p.CDC); err != nil {
		return "", err
	}
	if p.CSC == "" {
		return "", fmt.Errorf("sifen: el CSC es obligatorio para calcular cHashQR")
	}
	cscID := p.CSCID
	if cscID == "" {
		cscID = "0001"
	}

	// La fecha de emisión viaja codificada en hexadecimal (Manual Técnico, KuDE).
	fecHex := hex.EncodeToString([]byte(p.IssueDate))

	params := []string{
		"nVersion=150",
		"Id=" + p.CDC,
		"dFeEmiDE=" + fecHex,
		"dRucRec=" + url.QueryEscape(p.ReceiverRUC),
		"dTotGralOpe=" + p.Total.StringFixed(0),
		"dTotIVA=" + p.TotalIVA.StringFixed(0),
		fmt.Sprintf("cItems=%d", p.ItemCount),
		"DigestValue=" + p.DigestValue,
		"IdCSC=" + cscID,
	}
	query := strings.Join(params, "&")

	hash := sha256.Sum256([]byte(query + p.CSC))

	base := qrBaseURLTest
	if p.Environment == EnvironmentProd {
		base = qrBaseURLProd
	}
	return base + "?" + query + "&cHashQR=" + hex.EncodeToString(hash[:]), nil
}

// RenderQRPNG genera el PNG del código QR para imprimir en el KuDE.
// size es el lado en píxeles (la SET recomienda al menos 256).
func RenderQRPNG(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("sifen: generar QR: %w", err)
	}
	return png, nil
}
