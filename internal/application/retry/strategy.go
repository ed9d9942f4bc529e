// Package retry implementa el coordinador de reintentos del núcleo SIFEN:
// estrategias de backoff conectables, circuit breaker y el historial de
// intentos que acompaña a los errores terminales.
package retry

import (
	"math/rand"
	"time"
)

// DelayStrategy calcula el delay base antes del reintento attempt (1-indexado:
// attempt=1 es el delay previo al primer reintento). El tope y el jitter los
// aplica el coordinador de manera uniforme para todas las estrategias.
type DelayStrategy interface {
	Delay(attempt int) time.Duration
	Name() string
}

// ExponentialStrategy delay = base × factor^(attempt-1). Es la estrategia por
// defecto.
type ExponentialStrategy struct {
	Base   time.Duration
	Factor float64
}

func (s ExponentialStrategy) Delay(attempt int) time.Duration {
	d := float64(s.Base)
	for i := 1; i < attempt; i++ {
		d *= s.Factor
	}
	return time.Duration(d)
}

func (s ExponentialStrategy) Name() string { return "exponencial" }

// LinearStrategy delay = base × attempt.
type LinearStrategy struct {
	Base time.Duration
}

func (s LinearStrategy) Delay(attempt int) time.Duration {
	return s.Base * time.Duration(attempt)
}

func (s LinearStrategy) Name() string { return "lineal" }

// FixedStrategy delay constante.
type FixedStrategy struct {
	Base time.Duration
}

func (s FixedStrategy) Delay(attempt int) time.Duration { return s.Base }

func (s FixedStrategy) Name() string { return "fijo" }

// FibonacciStrategy delay = base × fib(attempt), con fib(1)=1, fib(2)=1.
type FibonacciStrategy struct {
	Base time.Duration
}

func (s FibonacciStrategy) Delay(attempt int) time.Duration {
	a, b := 1, 1
	for i := 2; i < attempt; i++ {
		a, b = b, a+b
	}
	if attempt < 2 {
		b = 1
	}
	return s.Base * time.Duration(b)
}

func (s FibonacciStrategy) Name() string { return "fibonacci" }

// capAndJitter aplica el tope máximo y un jitter de ±10% sobre el delay
// calculado, igual para todas las estrategias.
func capAndJitter(d, max time.Duration, rng *rand.Rand) time.Duration {
	if max > 0 && d > max {
		d = max
	}
	if d <= 0 {
		return 0
	}
	// jitter uniforme en [-10%, +10%]
	jitter := 1.0 + (rng.Float64()*0.2 - 0.1)
	return time.Duration(float64(d) * jitter)
}
