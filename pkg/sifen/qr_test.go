package sifen_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-core/pkg/sifen"
)

func buildTestQRParams() sifen.QRParams {
	return sifen.QRParams{
		Environment: sifen.EnvironmentTest,
		CDC:         testCDCFull,
		IssueDate:   "2024-01-15",
		ReceiverRUC: "80012345-0",
		Total:       decimal.NewFromInt(150_000),
		TotalIVA:    decimal.NewFromInt(13_636),
		ItemCount:   3,
		DigestValue: "abcdef0123456789",
		CSCID:       "0002",
		CSC:         "123456789",
	}
}

func TestBuildQRLink_EstructuraYParametros(t *testing.T) {
	link, err := sifen.BuildQRLink(buildTestQRParams())
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err, "el enlace debe ser una URL válida")
	assert.Equal(t, "ekuatia.set.gov.py", u.Host)
	assert.Equal(t, "/consultas-test/qr", u.Path,
		"el ambiente de pruebas debe usar la ruta consultas-test")

	q := u.Query()
	assert.Equal(t, "150", q.Get("nVersion"))
	assert.Equal(t, testCDCFull, q.Get("Id"))
	assert.Equal(t, "150000", q.Get("dTotGralOpe"))
	assert.Equal(t, "13636", q.Get("dTotIVA"))
	assert.Equal(t, "3", q.Get("cItems"))
	assert.Equal(t, "0002", q.Get("IdCSC"))
	assert.NotEmpty(t, q.Get("cHashQR"))

	// La fecha viaja codificada en hexadecimal.
	fecHex := q.Get("dFeEmiDE")
	decoded, err := hex.DecodeString(fecHex)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", string(decoded))
}

func TestBuildQRLink_CSCNuncaEnClaro(t *testing.T) {
	p := buildTestQRParams()
	p.CSC = "987654321"
	link, err := sifen.BuildQRLink(p)
	require.NoError(t, err)

	assert.NotContains(t, link, "987654321",
		"el CSC jamás debe aparecer en el enlace; solo participa del hash")
}

func TestBuildQRLink_HashVerificable(t *testing.T) {
	p := buildTestQRParams()
	link, err := sifen.BuildQRLink(p)
	require.NoError(t, err)

	// cHashQR = SHA-256(query sin cHashQR + CSC)
	idx := strings.Index(link, "?")
	require.Positive(t, idx)
	query := link[idx+1:]
	parts := strings.Split(query, "&cHashQR=")
	require.Len(t, parts, 2, "el hash debe ser el último parámetro")

	want := sha256.Sum256([]byte(parts[0] + p.CSC))
	assert.Equal(t, hex.EncodeToString(want[:]), parts[1],
		"cHashQR debe ser verificable recomputando SHA-256(query + CSC)")
}

func TestBuildQRLink_AmbienteProduccion(t *testing.T) {
	p := buildTestQRParams()
	p.Environment = sifen.EnvironmentProd
	link, err := sifen.BuildQRLink(p)
	require.NoError(t, err)
	assert.Contains(t, link, "https://ekuatia.set.gov.py/consultas/qr?")
}

func TestBuildQRLink_Errores(t *testing.T) {
	p := buildTestQRParams()
	p.CDC = "123"
	_, err := sifen.BuildQRLink(p)
	assert.Error(t, err, "un CDC inválido debe rechazarse")

	p = buildTestQRParams()
	p.CSC = ""
	_, err = sifen.BuildQRLink(p)
	assert.Error(t, err, "sin CSC no se puede calcular cHashQR")
}

func TestBuildQRLink_IdCSCPorDefecto(t *testing.T) {
	p := buildTestQRParams()
	p.CSCID = ""
	link, err := sifen.BuildQRLink(p)
	require.NoError(t, err)
	assert.Contains(t, link, "IdCSC=0001", "sin IdCSC explícito se usa 0001")
}

func TestRenderQRPNG_GeneraPNG(t *testing.T) {
	link, err := sifen.BuildQRLink(buildTestQRParams())
	require.NoError(t, err)

	png, err := sifen.RenderQRPNG(link, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")),
		"la salida debe ser un PNG válido")
}
