package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/sifen-core/internal/application/submission"
	infrasifen "github.com/jhoicas/sifen-core/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-core/internal/infrastructure/sifen/signer"
	"github.com/jhoicas/sifen-core/pkg/config"
	"github.com/jhoicas/sifen-core/pkg/logger"
)

// Binario de ejemplo: arma el núcleo completo de envío a partir de la
// configuración de entorno y ejecuta una operación puntual.
//
//	sifen enviar <archivo.xml>   firma y envía un documento
//	sifen consultar <cdc>        consulta el estado por CDC
//	sifen consultar-ruc <ruc>    consulta los documentos de un RUC
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("ambiente_sifen", cfg.SIFEN.Environment).
		Msg("iniciando núcleo SIFEN")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "uso: sifen enviar <archivo.xml> | consultar <cdc> | consultar-ruc <ruc>")
		os.Exit(2)
	}

	store, err := infrasifen.LoadStore(cfg.SIFEN.CertPath, cfg.SIFEN.CertPassword, log)
	if err != nil {
		log.Fatal().Err(err).Msg("carga del certificado")
	}
	if report := store.Validate(); !report.Valid {
		log.Fatal().Strs("errores", report.Errors).Msg("certificado inválido")
	}

	signerSvc := signer.NewService(log)
	client := infrasifen.NewSOAPClient(infrasifen.OptionsFromConfig(cfg.SIFEN), log)
	parser := infrasifen.NewResponseParser(log)
	classifier := submission.NewClassifier()
	orchestrator := submission.NewOrchestrator(
		client, parser, classifier,
		submission.OptionsFromConfig(cfg.SIFEN), log,
	)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.SIFEN.TotalTimeoutSec)*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "enviar":
		runSend(ctx, orchestrator, signerSvc, store, os.Args[2], log)
	case "consultar":
		runQueryCDC(ctx, orchestrator, os.Args[2], log)
	case "consultar-ruc":
		runQueryRUC(ctx, orchestrator, os.Args[2], log)
	default:
		fmt.Fprintf(os.Stderr, "comando desconocido %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runSend(ctx context.Context, orch *submission.Orchestrator, signerSvc *signer.Service, store *infrasifen.CertificateStore, path string, log *logger.Logger) {
	xmlBytes, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("archivo", path).Msg("lectura del documento")
	}

	key := store.Key()
	signed, err := signerSvc.Sign(xmlBytes, store.CertificateInfo().X509(), key.RSA())
	if err != nil {
		log.Fatal().Err(err).Msg("firma del documento")
	}

	result, err := orch.Submit(ctx, signed.XML, signed.CertificateSerial, true)
	if err != nil {
		log.Fatal().Err(err).Msg("envío del documento")
	}
	printResult(result.Outcome.Code, result.Outcome.Success, result.EnrichedMessage, result.RetryCount, log)
}

func runQueryCDC(ctx context.Context, orch *submission.Orchestrator, cdc string, log *logger.Logger) {
	result, err := orch.QueryByCDC(ctx, cdc)
	if err != nil {
		log.Fatal().Err(err).Str("cdc", logger.Mask(cdc)).Msg("consulta por CDC")
	}
	printResult(result.Outcome.Code, result.Outcome.Success, result.EnrichedMessage, result.RetryCount, log)
}

func runQueryRUC(ctx context.Context, orch *submission.Orchestrator, ruc string, log *logger.Logger) {
	result, err := orch.QueryByRUC(ctx, ruc)
	if err != nil {
		log.Fatal().Err(err).Str("ruc", logger.Mask(ruc)).Msg("consulta por RUC")
	}
	for _, doc := range result.Outcome.Documents {
		log.Info().
			Str("cdc", logger.Mask(doc.CDC)).
			Str("estado", string(doc.Status)).
			Str("fecha", doc.IssueDate).
			Msg("documento")
	}
	printResult(result.Outcome.Code, result.Outcome.Success, result.EnrichedMessage, result.RetryCount, log)
}

func printResult(code string, success bool, message string, retries int, log *logger.Logger) {
	log.Info().
		Str("codigo", code).
		Bool("exito", success).
		Int("reintentos", retries).
		Str("mensaje", message).
		Msg("operación finalizada")
	if !success {
		os.Exit(1)
	}
}
