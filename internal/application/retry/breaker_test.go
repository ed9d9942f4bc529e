package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// breakerWithClock arma un breaker con reloj inyectado para controlar el paso
// del tiempo sin sleeps.
func breakerWithClock(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(threshold, reset)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_EmpiezaCerrado(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)
	state, failures := b.State()
	assert.Equal(t, CircuitClosed, state)
	assert.Zero(t, failures)
	assert.NoError(t, b.Allow())
}

func TestBreaker_AbreAlAlcanzarElUmbral(t *testing.T) {
	b, _ := breakerWithClock(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	state, _ := b.State()
	assert.Equal(t, CircuitClosed, state, "por debajo del umbral sigue cerrado")

	b.OnFailure()
	state, _ = b.State()
	assert.Equal(t, CircuitOpen, state, "al tercer fallo consecutivo abre")

	err := b.Allow()
	var openErr *CircuitOpenError
	require.True(t, errors.As(err, &openErr), "en abierto las llamadas se rechazan de inmediato")
	assert.Positive(t, openErr.RetryAfter)
}

func TestBreaker_ExitoReseteaElContador(t *testing.T) {
	b, _ := breakerWithClock(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()

	state, failures := b.State()
	assert.Equal(t, CircuitClosed, state,
		"los fallos deben ser consecutivos para abrir el circuito")
	assert.Equal(t, 2, failures)
}

func TestBreaker_SemiabiertoTrasElPlazo(t *testing.T) {
	b, now := breakerWithClock(1, time.Minute)

	b.OnFailure()
	state, _ := b.State()
	require.Equal(t, CircuitOpen, state)

	// Antes del plazo sigue rechazando.
	require.Error(t, b.Allow())

	// Vencido el plazo permite una llamada de prueba.
	*now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())
	state, _ = b.State()
	assert.Equal(t, CircuitHalfOpen, state)
}

func TestBreaker_SemiabiertoAdmiteUnaSolaPrueba(t *testing.T) {
	b, now := breakerWithClock(1, time.Minute)

	b.OnFailure()
	*now = now.Add(2 * time.Minute)

	require.NoError(t, b.Allow(), "la primera llamada tras el plazo es la prueba")

	var openErr *CircuitOpenError
	require.True(t, errors.As(b.Allow(), &openErr),
		"con la prueba en vuelo las demás llamadas se rechazan")
	require.True(t, errors.As(b.Allow(), &openErr))
	assert.GreaterOrEqual(t, openErr.RetryAfter, time.Duration(0))

	// Resuelta la prueba con éxito, el circuito cierra y todos pasan.
	b.OnSuccess()
	assert.NoError(t, b.Allow())
	assert.NoError(t, b.Allow())
}

func TestBreaker_PruebaFallidaHabilitaOtraTrasElPlazo(t *testing.T) {
	b, now := breakerWithClock(1, time.Minute)

	b.OnFailure()
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	// La prueba falla: reabre y, vencido otro plazo, permite una prueba nueva.
	b.OnFailure()
	require.Error(t, b.Allow())

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())
	require.Error(t, b.Allow(), "de nuevo una sola prueba a la vez")
}

func TestBreaker_SemiabiertoExitoCierra(t *testing.T) {
	b, now := breakerWithClock(1, time.Minute)
	b.OnFailure()
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.OnSuccess()
	state, failures := b.State()
	assert.Equal(t, CircuitClosed, state)
	assert.Zero(t, failures)
}

func TestBreaker_SemiabiertoFalloReabre(t *testing.T) {
	b, now := breakerWithClock(1, time.Minute)
	b.OnFailure()
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.OnFailure()
	state, _ := b.State()
	assert.Equal(t, CircuitOpen, state,
		"un fallo en semiabierto reabre sin esperar un nuevo umbral")
	require.Error(t, b.Allow())
}

func TestBreaker_DefaultsSanos(t *testing.T) {
	b := NewCircuitBreaker(0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 60*time.Second, b.resetTimeout)
}
