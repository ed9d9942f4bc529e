package submission

import (
	"context"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	infrasifen "github.com/jhoicas/sifen-core/internal/infrastructure/sifen"
)

// Transport define el puerto de salida hacia el WS SIFEN. La implementación
// concreta es el cliente SOAP; para tests se inyecta un mock.
type Transport interface {
	SendOne(ctx context.Context, req *domsifen.SubmissionRequest) (*infrasifen.RawOutcome, error)
	SendBatch(ctx context.Context, documents [][]byte) (*infrasifen.RawOutcome, error)
	QueryByCDC(ctx context.Context, cdc string) (*infrasifen.RawOutcome, error)
	QueryByRUC(ctx context.Context, ruc string) (*infrasifen.RawOutcome, error)
}

// Parser convierte la respuesta cruda en Outcome.
type Parser interface {
	Parse(raw *infrasifen.RawOutcome) (*domsifen.Outcome, error)
}
