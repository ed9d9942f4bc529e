package submission

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
)

const validTestDocument = `<?xml version="1.0" encoding="UTF-8"?>
<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd">
  <DE Id="01800123450001001000000112024011511234567893">
    <gTotSub><dTotGralOpe>150000</dTotGralOpe></gTotSub>
  </DE>
</rDE>`

func TestValidate_DocumentoValido(t *testing.T) {
	v := NewValidator()
	warnings, err := v.Validate([]byte(validTestDocument))
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidate_RaizDEDirecta(t *testing.T) {
	v := NewValidator()
	doc := `<DE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><gTotSub><dTotGralOpe>100</dTotGralOpe></gTotSub></DE>`
	_, err := v.Validate([]byte(doc))
	assert.NoError(t, err, "un DE directo sin envoltorio rDE también es válido")
}

func TestValidate_ErroresFatales(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name string
		doc  []byte
	}{
		{"vacío", nil},
		{"malformado", []byte("<rDE><sin-cerrar>")},
		{"sin namespace", []byte(`<rDE><DE/></rDE>`)},
		{"raíz desconocida", []byte(`<factura xmlns="http://ekuatia.set.gov.py/sifen/xsd"/>`)},
		{"rDE sin DE", []byte(`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><otro/></rDE>`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(tc.doc)
			var valErr *domsifen.ValidationError
			require.True(t, errors.As(err, &valErr), "se esperaba ValidationError, se obtuvo %v", err)
			assert.NotEmpty(t, valErr.Issues)
		})
	}
}

func TestValidate_DocumentoDemasiadoGrande(t *testing.T) {
	v := NewValidator()
	huge := bytes.Repeat([]byte("x"), maxDocumentBytes+1)
	_, err := v.Validate(huge)
	var valErr *domsifen.ValidationError
	require.True(t, errors.As(err, &valErr))
}

func TestValidate_DocumentoGrandeAdvierte(t *testing.T) {
	v := NewValidator()

	// Documento válido inflado por encima de 1 MB con un comentario.
	padding := bytes.Repeat([]byte("p"), warnDocumentBytes+1024)
	doc := []byte(`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><DE><gTotSub><dTotGralOpe>100</dTotGralOpe></gTotSub></DE><!--` + string(padding) + `--></rDE>`)

	warnings, err := v.Validate(doc)
	require.NoError(t, err, "superar 1 MB advierte pero no bloquea")
	assert.NotEmpty(t, warnings)
}

func TestValidate_TotalEnCeroAdvierte(t *testing.T) {
	v := NewValidator()
	doc := []byte(`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><DE><gTotSub><dTotGralOpe>0.00</dTotGralOpe></gTotSub></DE></rDE>`)

	warnings, err := v.Validate(doc)
	require.NoError(t, err)
	require.NotEmpty(t, warnings, "un total en cero es sospechoso pero no bloquea")
	assert.Contains(t, warnings[0], "dTotGralOpe")
}
