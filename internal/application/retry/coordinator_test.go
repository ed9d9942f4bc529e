package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	"github.com/jhoicas/sifen-core/pkg/logger"
)

// fastOptions opciones con delays despreciables para no dormir en tests.
func fastOptions(maxRetries int) Options {
	return Options{
		MaxRetries: maxRetries,
		Strategy:   FixedStrategy{Base: time.Millisecond},
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestExecute_ExitoAlPrimerIntento(t *testing.T) {
	c := NewCoordinator(fastOptions(3), logger.Nop())

	calls := 0
	history, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, history.RetryCount())
}

func TestExecute_FallaDosVecesYLuegoExito(t *testing.T) {
	c := NewCoordinator(fastOptions(3), logger.Nop())

	calls := 0
	history, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls <= 2 {
			return &domsifen.ConnectionError{Endpoint: "recibe", Err: fmt.Errorf("reset")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, history.RetryCount(), "dos fallos transitorios son dos reintentos")
	require.Len(t, history.Attempts, 3)
	assert.Error(t, history.Attempts[0].Err)
	assert.Error(t, history.Attempts[1].Err)
	assert.NoError(t, history.Attempts[2].Err)
	assert.Equal(t, "conexion", history.Attempts[0].ErrorKind)
}

func TestExecute_ReintentosAgotados(t *testing.T) {
	c := NewCoordinator(fastOptions(2), logger.Nop())

	calls := 0
	transient := &domsifen.TimeoutError{Phase: domsifen.TimeoutRead, Elapsed: time.Second}
	history, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return transient
	})

	assert.Equal(t, 3, calls, "1 intento + 2 reintentos")

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Same(t, history, exhausted.History)
	assert.Len(t, exhausted.History.Attempts, 3)
	assert.True(t, errors.Is(err, transient), "el último error subyacente debe poder desenvolverse")
}

func TestExecute_ErrorNoReintentableAbortaDeInmediato(t *testing.T) {
	c := NewCoordinator(fastOptions(5), logger.Nop())

	calls := 0
	_, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return &domsifen.ValidationError{Issues: []string{"documento inválido"}}
	})

	assert.Equal(t, 1, calls, "un error de validación nunca se reintenta")
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
}

func TestExecute_ServerError5xxEsReintentable(t *testing.T) {
	c := NewCoordinator(fastOptions(1), logger.Nop())

	calls := 0
	_, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return &domsifen.ServerError{StatusCode: 503, Status: "503 Service Unavailable"}
	})

	assert.Equal(t, 2, calls)
	assert.Error(t, err)
}

// decideAlways decide la reintentabilidad sin mirar el tipo.
type decideAlways struct{ retryable bool }

func (d decideAlways) IsRetryable(error) (bool, bool) { return d.retryable, true }

func TestExecute_ElDecisorMandaSobreLaHeuristica(t *testing.T) {
	opts := fastOptions(3)
	opts.Decider = decideAlways{retryable: false}
	c := NewCoordinator(opts, logger.Nop())

	calls := 0
	_, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		// Por heurística sería reintentable; el decisor dice que no.
		return &domsifen.ConnectionError{Endpoint: "recibe", Err: fmt.Errorf("reset")}
	})

	assert.Equal(t, 1, calls)
	assert.Error(t, err)
}

func TestExecute_CancelacionDelContexto(t *testing.T) {
	opts := fastOptions(5)
	opts.Strategy = FixedStrategy{Base: time.Hour} // el sleep debe abortarse
	opts.MaxDelay = time.Hour
	c := NewCoordinator(opts, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	var execErr error

	go func() {
		defer close(done)
		_, execErr = c.Execute(ctx, "op", func(context.Context) error {
			calls++
			return &domsifen.ConnectionError{Endpoint: "recibe", Err: fmt.Errorf("reset")}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("la cancelación del contexto debe abortar el sleep entre intentos")
	}

	assert.Equal(t, 1, calls)
	require.Error(t, execErr)
	assert.True(t, errors.Is(execErr, context.Canceled))

	// El aborto durante la espera se reporta como timeout total, igual que
	// un vencimiento con la llamada en vuelo.
	var timeoutErr *domsifen.TimeoutError
	require.True(t, errors.As(execErr, &timeoutErr))
	assert.Equal(t, domsifen.TimeoutTotal, timeoutErr.Phase)
}

func TestExecute_DeadlineVencidoDuranteLaEspera(t *testing.T) {
	opts := fastOptions(5)
	opts.Strategy = FixedStrategy{Base: time.Hour}
	opts.MaxDelay = time.Hour
	c := NewCoordinator(opts, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := c.Execute(ctx, "op", func(context.Context) error {
		calls++
		return &domsifen.ConnectionError{Endpoint: "recibe", Err: fmt.Errorf("reset")}
	})

	assert.Equal(t, 1, calls)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var timeoutErr *domsifen.TimeoutError
	require.True(t, errors.As(err, &timeoutErr),
		"el deadline vencido durante la espera debe mapearse a la taxonomía de timeouts")
	assert.Equal(t, domsifen.TimeoutTotal, timeoutErr.Phase)
}

func TestExecute_BreakerAbiertoCortaSinLlamar(t *testing.T) {
	breaker := NewCircuitBreaker(1, time.Minute)
	opts := fastOptions(3)
	opts.Breaker = breaker
	c := NewCoordinator(opts, logger.Nop())

	// Primer Execute: falla y abre el breaker (umbral 1).
	_, err := c.Execute(context.Background(), "op", func(context.Context) error {
		return &domsifen.ValidationError{Issues: []string{"x"}}
	})
	require.Error(t, err)

	// Segundo Execute: el breaker rechaza sin invocar la operación.
	calls := 0
	_, err = c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})

	var openErr *CircuitOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Zero(t, calls, "con el circuito abierto la operación no debe ejecutarse")
}

func TestExecute_ExitoCierraElBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(5, time.Minute)
	opts := fastOptions(3)
	opts.Breaker = breaker
	c := NewCoordinator(opts, logger.Nop())

	calls := 0
	_, err := c.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &domsifen.ConnectionError{Endpoint: "recibe", Err: fmt.Errorf("reset")}
		}
		return nil
	})

	require.NoError(t, err)
	state, failures := breaker.State()
	assert.Equal(t, CircuitClosed, state)
	assert.Zero(t, failures)
}

func TestDefaultRetryable_Taxonomia(t *testing.T) {
	assert.True(t, defaultRetryable(&domsifen.ConnectionError{Endpoint: "recibe"}))
	assert.True(t, defaultRetryable(&domsifen.TimeoutError{Phase: domsifen.TimeoutRead}))
	assert.True(t, defaultRetryable(&domsifen.ServerError{StatusCode: 500}))

	assert.False(t, defaultRetryable(&domsifen.ServerError{StatusCode: 404}))
	assert.False(t, defaultRetryable(&domsifen.CertificateError{Reason: domsifen.CertificateLoad}))
	assert.False(t, defaultRetryable(&domsifen.SigningError{Step: "sign"}))
	assert.False(t, defaultRetryable(&domsifen.ValidationError{}))
	assert.False(t, defaultRetryable(&domsifen.ParsingError{}))

	// Último recurso por palabras clave.
	assert.True(t, defaultRetryable(fmt.Errorf("connection reset by peer")))
	assert.False(t, defaultRetryable(fmt.Errorf("algo definitivamente roto")))
}

func TestHistory_RetryCount(t *testing.T) {
	h := &History{}
	assert.Zero(t, h.RetryCount())

	h.Attempts = append(h.Attempts, Attempt{Number: 1})
	assert.Zero(t, h.RetryCount())

	h.Attempts = append(h.Attempts, Attempt{Number: 2}, Attempt{Number: 3})
	assert.Equal(t, 2, h.RetryCount())
}
