package sifen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/jhoicas/sifen-core/pkg/logger"
)

// CSCLength el código de seguridad del contribuyente tiene exactamente 9 dígitos.
const CSCLength = 9

// cscEnvVar variable de entorno consultada como fuente externa del CSC.
const cscEnvVar = "SIFEN_CSC"

// maxBatchFactor tope de intentos para GenerateBatch: 10 × count.
const maxBatchFactor = 10

// CSCManager administra el código de seguridad del contribuyente (CSC).
// El CSC es un secreto: participa del CDC y del hash del QR pero nunca se
// loguea completo ni viaja en claro. El cache dura la vida del proceso; la
// rotación es una operación explícita, no hay expiración implícita.
type CSCManager struct {
	mu     sync.Mutex
	cached string
	log    *logger.Logger

	// lookup permite inyectar la fuente externa en tests; default os.Getenv.
	lookup func(string) string
}

// NewCSCManager crea el administrador. La fuente externa por defecto es la
// variable de entorno SIFEN_CSC (p. ej. poblada por un secret manager).
func NewCSCManager(log *logger.Logger) *CSCManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CSCManager{log: log, lookup: os.Getenv}
}

// Generate produce un CSC de 9 dígitos con crypto/rand. Se descarta y
// regenera si todos los dígitos resultan idénticos.
func (m *CSCManager) Generate() (string, error) {
	for {
		code, err := randomDigits(CSCLength)
		if err != nil {
			return "", fmt.Errorf("sifen: generar CSC: %w", err)
		}
		if !allIdentical(code) {
			return code, nil
		}
	}
}

// Validate indica si el código tiene exactamente 9 caracteres numéricos y no
// todos idénticos.
func (m *CSCManager) Validate(code string) bool {
	if len(code) != CSCLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return !allIdentical(code)
}

// GetOrGenerate resuelve el CSC con prioridad: cache en memoria → fuente
// externa (si preferExternal) → generación nueva. El resultado queda cacheado
// por la vida del proceso.
func (m *CSCManager) GetOrGenerate(preferExternal bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached, nil
	}

	if preferExternal {
		if external := m.lookup(cscEnvVar); external != "" {
			if !m.Validate(external) {
				return "", fmt.Errorf("sifen: el CSC de la fuente externa no es válido (9 dígitos, no todos iguales)")
			}
			m.cached = external
			m.log.Info().Str("csc", logger.Mask(external)).Msg("CSC resuelto desde fuente externa")
			return external, nil
		}
	}

	code, err := m.Generate()
	if err != nil {
		return "", err
	}
	m.cached = code
	m.log.Info().Str("csc", logger.Mask(code)).Msg("CSC generado")
	return code, nil
}

// Rotate descarta el CSC cacheado; la próxima resolución vuelve a consultar
// la fuente externa o genera uno nuevo.
func (m *CSCManager) Rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = ""
}

// GenerateBatch produce count códigos únicos. Si la unicidad no se logra en
// 10 × count intentos devuelve error.
func (m *CSCManager) GenerateBatch(count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("sifen: count debe ser positivo, recibido %d", count)
	}
	seen := make(map[string]bool, count)
	out := make([]string, 0, count)
	for attempts := 0; attempts < count*maxBatchFactor && len(out) < count; attempts++ {
		code, err := m.Generate()
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	if len(out) < count {
		return nil, fmt.Errorf("sifen: no se lograron %d códigos únicos en %d intentos", count, count*maxBatchFactor)
	}
	return out, nil
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + v.Int64())
	}
	return string(buf), nil
}

func allIdentical(code string) bool {
	for i := 1; i < len(code); i++ {
		if code[i] != code[0] {
			return false
		}
	}
	return true
}
