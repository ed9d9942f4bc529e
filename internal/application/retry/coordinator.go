package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	"github.com/jhoicas/sifen-core/pkg/logger"
)

// Attempt un intento individual dentro de una ejecución con reintentos.
type Attempt struct {
	Number    int
	At        time.Time
	Delay     time.Duration // delay aplicado antes de este intento
	Elapsed   time.Duration
	Err       error // nil si el intento fue exitoso
	ErrorKind string
}

// History lista append-only de intentos; pertenece a una única ejecución.
type History struct {
	Attempts []Attempt
}

// RetryCount cantidad de reintentos efectuados (intentos - 1).
func (h *History) RetryCount() int {
	if len(h.Attempts) == 0 {
		return 0
	}
	return len(h.Attempts) - 1
}

// ExhaustedError error terminal: reintentos agotados o error no reintentable.
// Transporta el historial completo y el último error subyacente.
type ExhaustedError struct {
	History *History
	Last    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("sifen: reintentos agotados tras %d intentos: %v", len(e.History.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// RetryabilityDecider decide si un error amerita reintento. La implementación
// de producción consulta el clasificador de códigos de la SET; si devuelve
// (false, false) el coordinador cae a la heurística por tipo de error.
type RetryabilityDecider interface {
	IsRetryable(err error) (retryable, decided bool)
}

// Options parámetros del coordinador.
type Options struct {
	MaxRetries int           // reintentos adicionales al primer intento
	Strategy   DelayStrategy // nil = exponencial base 1s factor 2
	MaxDelay   time.Duration // tope del delay entre intentos (default 30s)
	Decider    RetryabilityDecider
	Breaker    *CircuitBreaker // nil = sin circuit breaker
}

// Coordinator ejecuta operaciones con reintentos, backoff y circuit breaker.
// El estado del breaker se comparte entre todas las ejecuciones del mismo
// coordinador (un coordinador por endpoint lógico); se crea al construir el
// cliente y muere con él, nunca como estado global de paquete.
type Coordinator struct {
	opts Options
	log  *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCoordinator crea el coordinador.
func NewCoordinator(opts Options, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Strategy == nil {
		opts.Strategy = ExponentialStrategy{Base: time.Second, Factor: 2}
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Coordinator{
		opts: opts,
		log:  log,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute corre la operación con hasta MaxRetries+1 intentos. Antes de cada
// reintento consulta la reintentabilidad del error (clasificador vía código de
// respuesta si existe, si no heurística por tipo); errores no reintentables o
// intentos agotados devuelven ExhaustedError con el historial completo. La
// cancelación del contexto aborta tanto la operación en vuelo como el sleep
// entre intentos.
func (c *Coordinator) Execute(ctx context.Context, name string, op func(context.Context) error) (*History, error) {
	history := &History{}

	for attempt := 1; attempt <= c.opts.MaxRetries+1; attempt++ {
		if c.opts.Breaker != nil {
			if err := c.opts.Breaker.Allow(); err != nil {
				return history, err
			}
		}

		var delay time.Duration
		if attempt > 1 {
			delay = c.nextDelay(attempt - 1)
			if err := sleepCtx(ctx, delay); err != nil {
				// La cancelación durante la espera se reporta con la misma
				// taxonomía que un timeout en vuelo.
				last := &domsifen.TimeoutError{Phase: domsifen.TimeoutTotal, Err: err}
				return history, &ExhaustedError{History: history, Last: last}
			}
		}

		start := time.Now()
		err := op(ctx)
		elapsed := time.Since(start)

		history.Attempts = append(history.Attempts, Attempt{
			Number:    attempt,
			At:        start,
			Delay:     delay,
			Elapsed:   elapsed,
			Err:       err,
			ErrorKind: kindOf(err),
		})

		if err == nil {
			if c.opts.Breaker != nil {
				c.opts.Breaker.OnSuccess()
			}
			return history, nil
		}

		if c.opts.Breaker != nil {
			c.opts.Breaker.OnFailure()
		}

		if ctx.Err() != nil {
			return history, &ExhaustedError{History: history, Last: err}
		}
		if !c.isRetryable(err) {
			c.log.Debug().Str("operacion", name).Str("error", kindOf(err)).
				Msg("error no reintentable, abortando")
			return history, &ExhaustedError{History: history, Last: err}
		}

		c.log.Warn().Str("operacion", name).Int("intento", attempt).
			Err(err).Msg("intento fallido, se reintentará")
	}

	last := history.Attempts[len(history.Attempts)-1].Err
	return history, &ExhaustedError{History: history, Last: last}
}

func (c *Coordinator) nextDelay(retry int) time.Duration {
	d := c.opts.Strategy.Delay(retry)
	c.mu.Lock()
	defer c.mu.Unlock()
	return capAndJitter(d, c.opts.MaxDelay, c.rng)
}

// isRetryable consulta primero el decisor (clasificador de códigos); si no
// decide, aplica la heurística por tipo de error y palabras clave.
func (c *Coordinator) isRetryable(err error) bool {
	if c.opts.Decider != nil {
		if retryable, decided := c.opts.Decider.IsRetryable(err); decided {
			return retryable
		}
	}
	return defaultRetryable(err)
}

// defaultRetryable heurística por tipo: transporte y 5xx se reintentan;
// certificado, firma, validación y parsing no.
func defaultRetryable(err error) bool {
	var connErr *domsifen.ConnectionError
	var timeoutErr *domsifen.TimeoutError
	var serverErr *domsifen.ServerError
	if errors.As(err, &connErr) || errors.As(err, &timeoutErr) {
		return true
	}
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode >= 500
	}

	var certErr *domsifen.CertificateError
	var signErr *domsifen.SigningError
	var valErr *domsifen.ValidationError
	var parseErr *domsifen.ParsingError
	if errors.As(err, &certErr) || errors.As(err, &signErr) ||
		errors.As(err, &valErr) || errors.As(err, &parseErr) {
		return false
	}

	// Último recurso: palabras clave de fallos transitorios.
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"timeout", "connection", "conexión", "temporar", "unavailable", "reset"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func kindOf(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case isAs[*domsifen.ConnectionError](err):
		return "conexion"
	case isAs[*domsifen.TimeoutError](err):
		return "timeout"
	case isAs[*domsifen.ServerError](err):
		return "servidor"
	case isAs[*domsifen.ValidationError](err):
		return "validacion"
	case isAs[*domsifen.CertificateError](err):
		return "certificado"
	case isAs[*domsifen.SigningError](err):
		return "firma"
	case isAs[*domsifen.ParsingError](err):
		return "parsing"
	default:
		return "desconocido"
	}
}

func isAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// sleepCtx duerme el delay o aborta si el contexto se cancela antes.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
