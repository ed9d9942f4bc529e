package retry

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState estado del circuito de un endpoint lógico.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CERRADO"
	CircuitOpen     CircuitState = "ABIERTO"
	CircuitHalfOpen CircuitState = "SEMIABIERTO"
)

// CircuitOpenError el circuito está abierto: la llamada se rechaza de
// inmediato sin intentar red. No cuenta como intento de envío.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("sifen: circuito abierto, próximo intento permitido en %s", e.RetryAfter.Round(time.Millisecond))
}

// CircuitBreaker máquina de estados Cerrado → Abierto → Semiabierto compartida
// por todos los envíos al mismo endpoint lógico. Toda transición ocurre bajo
// el mutex: el check-then-act sobre failureCount y estado es atómico para que
// dos llamadas concurrentes no disparen ni reseteen el breaker a la vez.
type CircuitBreaker struct {
	mu sync.Mutex

	state         CircuitState
	failureCount  int
	lastFailure   time.Time
	nextAttempt   time.Time
	trialInFlight bool // en Semiabierto ya hay una llamada de prueba en curso

	threshold    int           // fallos consecutivos que abren el circuito
	resetTimeout time.Duration // tiempo en Abierto antes de permitir la prueba

	// now inyectable en tests.
	now func() time.Time
}

// NewCircuitBreaker crea el breaker en estado Cerrado.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		state:        CircuitClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Allow decide si la llamada puede proceder. En Abierto devuelve
// CircuitOpenError hasta que venza el plazo; al vencer pasa a Semiabierto y
// permite exactamente una llamada de prueba. Mientras esa prueba esté en
// vuelo las demás llamadas se rechazan hasta que OnSuccess u OnFailure
// resuelvan el estado.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{RetryAfter: b.retryAfter()}
		}
		b.trialInFlight = true
		return nil
	case CircuitOpen:
		now := b.now()
		if now.Before(b.nextAttempt) {
			return &CircuitOpenError{RetryAfter: b.nextAttempt.Sub(now)}
		}
		b.state = CircuitHalfOpen
		b.trialInFlight = true
		return nil
	}
	return nil
}

// retryAfter plazo restante hasta el próximo intento permitido; nunca
// negativo. Se llama con el mutex tomado.
func (b *CircuitBreaker) retryAfter() time.Duration {
	if remaining := b.nextAttempt.Sub(b.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// OnSuccess registra un resultado exitoso: vuelve a Cerrado y resetea el
// contador de fallos.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failureCount = 0
	b.trialInFlight = false
}

// OnFailure registra un fallo: en Semiabierto reabre de inmediato; en Cerrado
// abre al alcanzar el umbral.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailure = now

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.trialInFlight = false
		b.nextAttempt = now.Add(b.resetTimeout)
		return
	}

	b.failureCount++
	if b.failureCount >= b.threshold {
		b.state = CircuitOpen
		b.nextAttempt = now.Add(b.resetTimeout)
	}
}

// State devuelve el estado y el contador actuales (para observabilidad).
func (b *CircuitBreaker) State() (CircuitState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount
}
