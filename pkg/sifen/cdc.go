// Package sifen: helpers puros del dominio SIFEN (Paraguay): RUC, CDC de 44
// dígitos, catálogos y representación QR. Sin dependencias de infraestructura.
package sifen

import (
	"fmt"
	"time"
)

// Longitudes posicionales del CDC (Código de Control del Documento, 44 dígitos).
const (
	CDCLength     = 44
	cdcBaseLength = 43 // los 43 primeros dígitos; el 44.º es el dígito verificador
)

// CDCFields contiene los campos posicionales del CDC en el orden exigido por la SET:
//
//	TipoDE(2) + RUC(8) + DV-RUC(1) + Establecimiento(3) + PuntoExpedicion(3) +
//	NumeroDocumento(7) + TipoContribuyente(1) + FechaEmision(8,AAAAMMDD) +
//	TipoEmision(1) + CodigoSeguridad(9) + DV-CDC(1)
type CDCFields struct {
	DocumentType    string    // 2 dígitos, catálogo tipos de DE (01=Factura electrónica)
	RUC             string    // 8 dígitos base del RUC emisor
	RUCCheckDigit   byte      // dígito verificador del RUC
	Establishment   string    // 3 dígitos
	EmissionPoint   string    // 3 dígitos
	DocumentNumber  string    // 7 dígitos
	TaxpayerType    byte      // 1=persona física, 2=persona jurídica
	IssueDate       time.Time // se serializa como AAAAMMDD
	EmissionType    byte      // 1=normal, 2=contingencia
	SecurityCode    string    // CSC de 9 dígitos
}

// ComposeCDC arma el CDC de 44 dígitos a partir de los campos posicionales,
// calculando el dígito verificador final. El CDC declarado en el XML debe
// recomputarse cada vez que cambia el contenido del documento: un CDC que no
// coincide con el contenido es rechazo duro de la SET (código 1000).
func ComposeCDC(f CDCFields) (string, error) {
	if err := checkExactDigits("TipoDE", f.DocumentType, 2); err != nil {
		return "", err
	}
	if err := checkExactDigits("RUC", f.RUC, 8); err != nil {
		return "", err
	}
	if f.RUCCheckDigit < '0' || f.RUCCheckDigit > '9' {
		return "", fmt.Errorf("sifen: dígito verificador del RUC debe ser numérico")
	}
	if err := checkExactDigits("Establecimiento", f.Establishment, 3); err != nil {
		return "", err
	}
	if err := checkExactDigits("PuntoExpedicion", f.EmissionPoint, 3); err != nil {
		return "", err
	}
	if err := checkExactDigits("NumeroDocumento", f.DocumentNumber, 7); err != nil {
		return "", err
	}
	if f.TaxpayerType != '1' && f.TaxpayerType != '2' {
		return "", fmt.Errorf("sifen: TipoContribuyente debe ser 1 o 2, recibido %q", string(f.TaxpayerType))
	}
	if f.IssueDate.IsZero() {
		return "", fmt.Errorf("sifen: FechaEmision es obligatoria para el CDC")
	}
	if f.EmissionType < '1' || f.EmissionType > '9' {
		return "", fmt.Errorf("sifen: TipoEmision debe ser un dígito 1-9, recibido %q", string(f.EmissionType))
	}
	if err := checkExactDigits("CodigoSeguridad", f.SecurityCode, 9); err != nil {
		return "", err
	}

	base := f.DocumentType +
		f.RUC +
		string(f.RUCCheckDigit) +
		f.Establishment +
		f.EmissionPoint +
		f.DocumentNumber +
		string(f.TaxpayerType) +
		f.IssueDate.Format("20060102") +
		string(f.EmissionType) +
		f.SecurityCode

	dv, err := ComputeCDCCheckDigit(base)
	if err != nil {
		return "", err
	}
	return base + string(dv), nil
}

// ComputeCDCCheckDigit calcula el dígito verificador del CDC sobre los 43
// primeros dígitos: módulo 11 base máxima 11, pesos cíclicos 2..11 aplicados
// de derecha a izquierda; dv = 0 si resto < 2, si no 11 - resto.
func ComputeCDCCheckDigit(base string) (byte, error) {
	if err := checkExactDigits("base del CDC", base, cdcBaseLength); err != nil {
		return 0, err
	}
	var sum, weight int
	weight = 2
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		weight++
		if weight > 11 {
			weight = 2
		}
	}
	remainder := sum % 11
	if remainder < 2 {
		return '0', nil
	}
	return byte('0' + (11 - remainder)), nil
}

// ValidateCDC verifica que el CDC tenga exactamente 44 dígitos numéricos, que
// el dígito verificador final sea correcto y que el dígito verificador del RUC
// embebido también lo sea.
func ValidateCDC(cdc string) error {
	if err := checkExactDigits("CDC", cdc, CDCLength); err != nil {
		return err
	}
	dv, err := ComputeCDCCheckDigit(cdc[:cdcBaseLength])
	if err != nil {
		return err
	}
	if cdc[cdcBaseLength] != dv {
		return fmt.Errorf("sifen: dígito verificador del CDC inválido: esperado %c, recibido %c", dv, cdc[cdcBaseLength])
	}
	if err := ValidateRUCCheckDigit(cdc[2:11]); err != nil {
		return fmt.Errorf("sifen: RUC embebido en el CDC inválido: %w", err)
	}
	return nil
}

// IsWellFormedCDC indica si la cadena tiene la forma de un CDC (44 dígitos
// numéricos), sin verificar los dígitos de control. Útil para descartar
// valores basura en respuestas de la SET antes de exponerlos al caller.
func IsWellFormedCDC(cdc string) bool {
	if len(cdc) != CDCLength {
		return false
	}
	for i := 0; i < len(cdc); i++ {
		if cdc[i] < '0' || cdc[i] > '9' {
			return false
		}
	}
	return true
}

// ParseCDC descompone un CDC válido en sus campos posicionales.
func ParseCDC(cdc string) (*CDCFields, error) {
	if err := ValidateCDC(cdc); err != nil {
		return nil, err
	}
	issue, err := time.Parse("20060102", cdc[25:33])
	if err != nil {
		return nil, fmt.Errorf("sifen: fecha de emisión del CDC inválida: %w", err)
	}
	return &CDCFields{
		DocumentType:   cdc[0:2],
		RUC:            cdc[2:10],
		RUCCheckDigit:  cdc[10],
		Establishment:  cdc[11:14],
		EmissionPoint:  cdc[14:17],
		DocumentNumber: cdc[17:24],
		TaxpayerType:   cdc[24],
		IssueDate:      issue,
		EmissionType:   cdc[33],
		SecurityCode:   cdc[34:43],
	}, nil
}

func checkExactDigits(field, value string, n int) error {
	if len(value) != n {
		return fmt.Errorf("sifen: %s debe tener exactamente %d dígitos, se recibieron %d", field, n, len(value))
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return fmt.Errorf("sifen: %s debe ser numérico: %q", field, value)
		}
	}
	return nil
}
