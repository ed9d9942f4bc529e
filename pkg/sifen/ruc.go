package sifen

import (
	"fmt"
	"unicode"
)

// factores para el cálculo del dígito verificador del RUC (módulo 11, SET Paraguay).
// Se aplican a los 8 dígitos de la base, de izquierda a derecha.
var rucFactors = [8]int{2, 3, 4, 5, 6, 7, 2, 3}

// ValidateRUCCheckDigit valida que el RUC (con o sin guion) tenga un dígito
// verificador correcto según el algoritmo módulo 11 de la SET.
// ruc puede ser "80012345-0" o "800123450".
func ValidateRUCCheckDigit(ruc string) error {
	digits := extractDigits(ruc)
	if len(digits) != 9 {
		return fmt.Errorf("sifen: RUC debe tener 8 dígitos base más dígito verificador, se encontraron %d dígitos", len(digits))
	}
	expected, err := ComputeRUCCheckDigit(string(digits[:8]))
	if err != nil {
		return err
	}
	if digits[8] != expected {
		return fmt.Errorf("sifen: dígito verificador del RUC inválido: esperado %c, recibido %c", expected, digits[8])
	}
	return nil
}

// ComputeRUCCheckDigit calcula el dígito verificador para los 8 dígitos base del RUC.
// regla SET: resto = suma mod 11; dv = 0 si resto < 2, si no 11 - resto.
func ComputeRUCCheckDigit(base string) (byte, error) {
	digits := extractDigits(base)
	if len(digits) != 8 {
		return 0, fmt.Errorf("sifen: se requieren exactamente 8 dígitos base para calcular el dígito verificador, se encontraron %d", len(digits))
	}
	var sum int
	for i, d := range digits {
		sum += int(d-'0') * rucFactors[i]
	}
	remainder := sum % 11
	if remainder < 2 {
		return '0', nil
	}
	return byte('0' + (11 - remainder)), nil
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
