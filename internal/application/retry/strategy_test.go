package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialStrategy(t *testing.T) {
	s := ExponentialStrategy{Base: time.Second, Factor: 2}
	assert.Equal(t, time.Second, s.Delay(1))
	assert.Equal(t, 2*time.Second, s.Delay(2))
	assert.Equal(t, 4*time.Second, s.Delay(3))
	assert.Equal(t, 8*time.Second, s.Delay(4))
}

func TestLinearStrategy(t *testing.T) {
	s := LinearStrategy{Base: 500 * time.Millisecond}
	assert.Equal(t, 500*time.Millisecond, s.Delay(1))
	assert.Equal(t, time.Second, s.Delay(2))
	assert.Equal(t, 1500*time.Millisecond, s.Delay(3))
}

func TestFixedStrategy(t *testing.T) {
	s := FixedStrategy{Base: 2 * time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 2*time.Second, s.Delay(attempt))
	}
}

func TestFibonacciStrategy(t *testing.T) {
	s := FibonacciStrategy{Base: time.Second}
	// fib: 1, 1, 2, 3, 5, 8
	assert.Equal(t, time.Second, s.Delay(1))
	assert.Equal(t, time.Second, s.Delay(2))
	assert.Equal(t, 2*time.Second, s.Delay(3))
	assert.Equal(t, 3*time.Second, s.Delay(4))
	assert.Equal(t, 5*time.Second, s.Delay(5))
	assert.Equal(t, 8*time.Second, s.Delay(6))
}

func TestCapAndJitter_RespetaElTope(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		d := capAndJitter(time.Minute, 10*time.Second, rng)
		// tope 10s con jitter ±10%: siempre dentro de [9s, 11s]
		assert.GreaterOrEqual(t, d, 9*time.Second)
		assert.LessOrEqual(t, d, 11*time.Second)
	}
}

func TestCapAndJitter_JitterDentroDelRango(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := 10 * time.Second
	for i := 0; i < 1000; i++ {
		d := capAndJitter(base, time.Minute, rng)
		assert.GreaterOrEqual(t, d, 9*time.Second, "el jitter no debe bajar del -10%%")
		assert.LessOrEqual(t, d, 11*time.Second, "el jitter no debe superar el +10%%")
	}
}

func TestCapAndJitter_DelayNoPositivo(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, time.Duration(0), capAndJitter(0, time.Minute, rng))
	assert.Equal(t, time.Duration(0), capAndJitter(-time.Second, time.Minute, rng))
}

func TestStrategyNames(t *testing.T) {
	assert.Equal(t, "exponencial", ExponentialStrategy{}.Name())
	assert.Equal(t, "lineal", LinearStrategy{}.Name())
	assert.Equal(t, "fijo", FixedStrategy{}.Name())
	assert.Equal(t, "fibonacci", FibonacciStrategy{}.Name())
}
