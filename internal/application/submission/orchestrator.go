package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/sifen-core/internal/application/retry"
	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	infrasifen "github.com/jhoicas/sifen-core/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-core/pkg/config"
	"github.com/jhoicas/sifen-core/pkg/logger"
	pkgsifen "github.com/jhoicas/sifen-core/pkg/sifen"
)

// Orchestrator compone el ciclo completo de envío a la SET:
//
//	prevalidación → envío con reintentos y circuit breaker → parseo →
//	clasificación → SubmissionResult
//
// Cada instancia posee sus coordinadores de reintento (uno por endpoint
// lógico, con su breaker compartido entre envíos concurrentes); se crean al
// construir el orquestador y mueren con él.
type Orchestrator struct {
	transport  Transport
	parser     Parser
	classifier *Classifier
	validator  *Validator
	log        *logger.Logger

	sendCoord  *retry.Coordinator
	queryCoord *retry.Coordinator

	batchMaxConcurrent int64
}

// Options parámetros del orquestador; OptionsFromConfig los deriva de la
// configuración de entorno.
type Options struct {
	MaxRetries         int
	BackoffFactor      float64
	MaxDelay           time.Duration
	CircuitThreshold   int
	CircuitReset       time.Duration
	BatchMaxConcurrent int
}

// OptionsFromConfig traduce la configuración SIFEN a opciones del orquestador.
func OptionsFromConfig(cfg config.SIFENConfig) Options {
	return Options{
		MaxRetries:         cfg.MaxRetries,
		BackoffFactor:      cfg.BackoffFactor,
		CircuitThreshold:   cfg.CircuitThreshold,
		CircuitReset:       time.Duration(cfg.CircuitResetSec) * time.Second,
		BatchMaxConcurrent: cfg.BatchMaxConcurrent,
	}
}

// NewOrchestrator construye el orquestador con todas sus dependencias.
func NewOrchestrator(transport Transport, parser Parser, classifier *Classifier, opts Options, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	if opts.BackoffFactor <= 1 {
		opts.BackoffFactor = 2
	}
	if opts.BatchMaxConcurrent <= 0 {
		opts.BatchMaxConcurrent = 5
	}

	strategy := retry.ExponentialStrategy{Base: time.Second, Factor: opts.BackoffFactor}

	newCoord := func() *retry.Coordinator {
		return retry.NewCoordinator(retry.Options{
			MaxRetries: opts.MaxRetries,
			Strategy:   strategy,
			MaxDelay:   opts.MaxDelay,
			Decider:    classifier,
			Breaker:    retry.NewCircuitBreaker(opts.CircuitThreshold, opts.CircuitReset),
		}, log)
	}

	return &Orchestrator{
		transport:          transport,
		parser:             parser,
		classifier:         classifier,
		validator:          NewValidator(),
		log:                log,
		sendCoord:          newCoord(),
		queryCoord:         newCoord(),
		batchMaxConcurrent: int64(opts.BatchMaxConcurrent),
	}
}

// Submit envía un documento firmado. Con validateBeforeSend activo, los
// defectos estructurales cortan antes de cualquier llamada de red
// (ValidationError); un rechazo bien formado de la SET no es error: se
// devuelve en el SubmissionResult con Success=false y la clasificación
// enriquecida para que el caller decida.
func (o *Orchestrator) Submit(ctx context.Context, xmlBytes []byte, certSerial string, validateBeforeSend bool) (*domsifen.SubmissionResult, error) {
	start := time.Now()

	var warnings []string
	if validateBeforeSend {
		var err error
		warnings, err = o.validator.Validate(xmlBytes)
		if err != nil {
			return nil, err
		}
	}

	req := &domsifen.SubmissionRequest{
		Document:          &domsifen.SignedDocument{XML: xmlBytes},
		CertificateSerial: certSerial,
	}

	var outcome *domsifen.Outcome
	history, err := o.sendCoord.Execute(ctx, "recibe", func(ctx context.Context) error {
		raw, err := o.transport.SendOne(ctx, req)
		if err != nil {
			return err
		}
		parsed, err := o.parser.Parse(raw)
		if err != nil {
			return err
		}
		outcome = parsed
		// Un rechazo con código reintentable (5xxx) se trata como fallo del
		// intento para que el coordinador lo reintente.
		if !parsed.Success && o.classifier.Classify(parsed.Code).Retryable {
			return &domsifen.RejectionError{Code: parsed.Code, Message: parsed.Message}
		}
		return nil
	})

	if err != nil {
		// Si a pesar del error terminal hay un Outcome parseado (rechazo
		// reintentable que agotó intentos), se devuelve como resultado.
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) && outcome != nil {
			var rejection *domsifen.RejectionError
			if errors.As(exhausted.Last, &rejection) {
				return o.buildResult(outcome, history, warnings, start), nil
			}
		}
		return nil, err
	}

	return o.buildResult(outcome, history, warnings, start), nil
}

// SubmitBatch envía 1..50 documentos con fan-out acotado por un semáforo de
// maxConcurrent (0 = default de configuración). Los resultados individuales
// son independientes y pueden completar fuera de orden; el agregado se arma
// recién cuando todos terminan. La cancelación de un documento no cancela a
// sus hermanos.
func (o *Orchestrator) SubmitBatch(ctx context.Context, documents [][]byte, batchID string, maxConcurrent int) (*domsifen.BatchSendResult, error) {
	if len(documents) == 0 {
		return nil, &domsifen.ValidationError{Issues: []string{"lote vacío"}}
	}
	if len(documents) > domsifen.BatchMaxSize {
		return nil, &domsifen.ValidationError{Issues: []string{
			fmt.Sprintf("el lote admite hasta %d documentos, se recibieron %d", domsifen.BatchMaxSize, len(documents)),
		}}
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}
	limit := int64(maxConcurrent)
	if limit <= 0 {
		limit = o.batchMaxConcurrent
	}

	start := time.Now()
	sem := semaphore.NewWeighted(limit)
	results := make([]domsifen.DocumentResult, len(documents))
	var wg sync.WaitGroup

	for i, doc := range documents {
		wg.Add(1)
		go func(i int, doc []byte) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = domsifen.DocumentResult{Index: i, Err: err}
				return
			}
			defer sem.Release(1)

			res, err := o.Submit(ctx, doc, "", true)
			results[i] = domsifen.DocumentResult{Index: i, Result: res, Err: err}
		}(i, doc)
	}
	wg.Wait() // barrera: el agregado se arma con todos los resultados

	agg := &domsifen.BatchSendResult{
		BatchID: batchID,
		Results: results,
		Elapsed: time.Since(start),
	}
	for _, r := range results {
		if r.Err == nil && r.Result != nil && r.Result.Outcome != nil && r.Result.Outcome.Success {
			agg.SuccessCount++
		} else {
			agg.FailureCount++
		}
	}
	switch {
	case agg.FailureCount == 0:
		agg.Code = domsifen.BatchCodeAllSuccess
		agg.Success = true
	case agg.SuccessCount == 0:
		agg.Code = domsifen.BatchCodeAllFailed
	default:
		agg.Code = domsifen.BatchCodePartial
	}

	o.log.Info().
		Str("lote", batchID).
		Int("exitosos", agg.SuccessCount).
		Int("fallidos", agg.FailureCount).
		Dur("elapsed", agg.Elapsed).
		Msg("lote procesado")

	return agg, nil
}

// QueryByCDC consulta el estado de un documento por CDC, con el mismo
// pipeline de reintentos y clasificación que el envío.
func (o *Orchestrator) QueryByCDC(ctx context.Context, cdc string) (*domsifen.SubmissionResult, error) {
	if !pkgsifen.IsWellFormedCDC(cdc) {
		return nil, &domsifen.ValidationError{Issues: []string{"el CDC debe tener 44 dígitos numéricos"}}
	}
	return o.query(ctx, "consulta", func(ctx context.Context) (*infrasifen.RawOutcome, error) {
		return o.transport.QueryByCDC(ctx, cdc)
	})
}

// QueryByRUC consulta los documentos de un RUC.
func (o *Orchestrator) QueryByRUC(ctx context.Context, ruc string) (*domsifen.SubmissionResult, error) {
	if err := pkgsifen.ValidateRUCCheckDigit(ruc); err != nil {
		return nil, &domsifen.ValidationError{Issues: []string{err.Error()}}
	}
	return o.query(ctx, "consulta-ruc", func(ctx context.Context) (*infrasifen.RawOutcome, error) {
		return o.transport.QueryByRUC(ctx, ruc)
	})
}

func (o *Orchestrator) query(ctx context.Context, name string, call func(context.Context) (*infrasifen.RawOutcome, error)) (*domsifen.SubmissionResult, error) {
	start := time.Now()
	var outcome *domsifen.Outcome
	history, err := o.queryCoord.Execute(ctx, name, func(ctx context.Context) error {
		raw, err := call(ctx)
		if err != nil {
			return err
		}
		parsed, err := o.parser.Parse(raw)
		if err != nil {
			return err
		}
		outcome = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.buildResult(outcome, history, nil, start), nil
}

func (o *Orchestrator) buildResult(outcome *domsifen.Outcome, history *retry.History, warnings []string, start time.Time) *domsifen.SubmissionResult {
	result := &domsifen.SubmissionResult{
		Outcome:            outcome,
		Elapsed:            time.Since(start),
		ValidationWarnings: warnings,
	}
	if history != nil {
		result.RetryCount = history.RetryCount()
	}
	if outcome != nil {
		cls := o.classifier.Classify(outcome.Code)
		result.EnrichedMessage = cls.UserMessage
		result.Recommendations = cls.Recommendations
	}
	return result
}
