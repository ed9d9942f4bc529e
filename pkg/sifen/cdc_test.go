package sifen_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-core/pkg/sifen"
)

// ──────────────────────────────────────────────────────────────────────────────
// Vector de referencia calculado a mano con el módulo 11 base máxima 11 de la
// SET (pesos cíclicos 2..11 de derecha a izquierda sobre los 43 primeros
// dígitos):
//
//	TipoDE=01  RUC=80012345  DV-RUC=0  Est=001  PunExp=001  NumDoc=0000001
//	TipoContribuyente=1  Fecha=20240115  TipoEmision=1  CSC=123456789
//	base  = 0180012345000100100000011202401151123456789
//	dv    = 3
// ──────────────────────────────────────────────────────────────────────────────

const (
	testCDCBase = "0180012345000100100000011202401151123456789"
	testCDCFull = "01800123450001001000000112024011511234567893"
)

func buildTestCDCFields() sifen.CDCFields {
	return sifen.CDCFields{
		DocumentType:   sifen.DocTypeFacturaElectronica,
		RUC:            "80012345",
		RUCCheckDigit:  '0',
		Establishment:  "001",
		EmissionPoint:  "001",
		DocumentNumber: "0000001",
		TaxpayerType:   sifen.TaxpayerTypePersonaFisica,
		IssueDate:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EmissionType:   sifen.EmissionTypeNormal,
		SecurityCode:   "123456789",
	}
}

func TestComputeCDCCheckDigit_VectorExacto(t *testing.T) {
	dv, err := sifen.ComputeCDCCheckDigit(testCDCBase)
	require.NoError(t, err)
	assert.Equal(t, "3", string(dv),
		"el dígito verificador del CDC debe coincidir con el vector de referencia")
}

func TestComposeCDC_VectorExacto(t *testing.T) {
	cdc, err := sifen.ComposeCDC(buildTestCDCFields())
	require.NoError(t, err, "ComposeCDC no debe fallar con campos válidos")
	assert.Equal(t, testCDCFull, cdc)
	assert.Len(t, cdc, sifen.CDCLength, "el CDC debe tener exactamente 44 dígitos")
}

func TestValidateCDC_VectorValido(t *testing.T) {
	assert.NoError(t, sifen.ValidateCDC(testCDCFull))
}

func TestValidateCDC_DigitoFinalIncorrecto(t *testing.T) {
	mutated := testCDCBase + "7" // dv correcto es 3
	assert.Error(t, sifen.ValidateCDC(mutated),
		"un dígito verificador final incorrecto debe rechazarse")
}

func TestValidateCDC_RUCEmbebidoInvalido(t *testing.T) {
	// Se altera el dígito verificador del RUC embebido (posición 10) y se
	// recalcula el dv final para aislar el fallo en el RUC.
	mutated := []byte(testCDCBase)
	mutated[10] = '9'
	dv, err := sifen.ComputeCDCCheckDigit(string(mutated))
	require.NoError(t, err)

	err = sifen.ValidateCDC(string(mutated) + string(dv))
	assert.Error(t, err, "un RUC embebido con dígito verificador incorrecto debe rechazarse")
}

func TestValidateCDC_FormaInvalida(t *testing.T) {
	assert.Error(t, sifen.ValidateCDC(""), "el CDC vacío debe rechazarse")
	assert.Error(t, sifen.ValidateCDC(testCDCBase), "43 dígitos deben rechazarse")
	assert.Error(t, sifen.ValidateCDC(testCDCFull+"0"), "45 dígitos deben rechazarse")
	assert.Error(t, sifen.ValidateCDC(testCDCBase+"X"),
		"caracteres no numéricos deben rechazarse")
}

func TestIsWellFormedCDC(t *testing.T) {
	assert.True(t, sifen.IsWellFormedCDC(testCDCFull))
	assert.False(t, sifen.IsWellFormedCDC(testCDCBase), "43 dígitos no son un CDC")
	assert.False(t, sifen.IsWellFormedCDC(testCDCBase+"X"))
	assert.False(t, sifen.IsWellFormedCDC(""))
}

func TestParseCDC_RoundTrip(t *testing.T) {
	fields, err := sifen.ParseCDC(testCDCFull)
	require.NoError(t, err)

	assert.Equal(t, "01", fields.DocumentType)
	assert.Equal(t, "80012345", fields.RUC)
	assert.Equal(t, byte('0'), fields.RUCCheckDigit)
	assert.Equal(t, "001", fields.Establishment)
	assert.Equal(t, "001", fields.EmissionPoint)
	assert.Equal(t, "0000001", fields.DocumentNumber)
	assert.Equal(t, byte('1'), fields.TaxpayerType)
	assert.Equal(t, "20240115", fields.IssueDate.Format("20060102"))
	assert.Equal(t, byte('1'), fields.EmissionType)
	assert.Equal(t, "123456789", fields.SecurityCode)

	recomposed, err := sifen.ComposeCDC(*fields)
	require.NoError(t, err)
	assert.Equal(t, testCDCFull, recomposed,
		"componer los campos parseados debe reproducir el CDC original")
}

func TestComposeCDC_CambioDeContenidoCambiaElCDC(t *testing.T) {
	f1 := buildTestCDCFields()
	f2 := buildTestCDCFields()
	f2.DocumentNumber = "0000002"

	cdc1, err1 := sifen.ComposeCDC(f1)
	cdc2, err2 := sifen.ComposeCDC(f2)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.NotEqual(t, cdc1, cdc2,
		"documentos con número distinto deben tener CDCs distintos")
}

func TestComposeCDC_CamposInvalidos(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*sifen.CDCFields)
	}{
		{"tipo de DE corto", func(f *sifen.CDCFields) { f.DocumentType = "1" }},
		{"RUC no numérico", func(f *sifen.CDCFields) { f.RUC = "8001234X" }},
		{"dv del RUC no numérico", func(f *sifen.CDCFields) { f.RUCCheckDigit = 'X' }},
		{"establecimiento largo", func(f *sifen.CDCFields) { f.Establishment = "0001" }},
		{"número de documento corto", func(f *sifen.CDCFields) { f.DocumentNumber = "001" }},
		{"tipo de contribuyente inválido", func(f *sifen.CDCFields) { f.TaxpayerType = '5' }},
		{"fecha cero", func(f *sifen.CDCFields) { f.IssueDate = time.Time{} }},
		{"tipo de emisión inválido", func(f *sifen.CDCFields) { f.EmissionType = '0' }},
		{"CSC corto", func(f *sifen.CDCFields) { f.SecurityCode = "1234" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := buildTestCDCFields()
			tc.mutate(&f)
			_, err := sifen.ComposeCDC(f)
			assert.Error(t, err)
		})
	}
}
