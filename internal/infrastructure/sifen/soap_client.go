package sifen

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jhoicas/sifen-core/pkg/config"
	"github.com/jhoicas/sifen-core/pkg/logger"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
)

const (
	soapNS          = "http://www.w3.org/2003/05/soap-envelope"
	contentTypeSOAP = "application/soap+xml; charset=utf-8"

	// maxResponseBytes tope de lectura de respuesta (las respuestas de la
	// SET son pequeñas; esto corta payloads anómalos).
	maxResponseBytes = 10 << 20
)

// RawOutcome respuesta cruda del WS antes de parsear: cuerpo, status HTTP y
// latencia medida.
type RawOutcome struct {
	Body       []byte
	StatusCode int
	Elapsed    time.Duration
}

// ClientOptions parámetros del cliente SOAP.
type ClientOptions struct {
	Environment string // "test" o "prod"; determina la URL base oficial
	BaseURL     string // override; vacío = URL oficial del ambiente

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration

	// TLSVerify debe ser true salvo configuraciones de prueba explícitamente
	// inseguras; config.SIFENConfig.Validate lo rechaza en producción.
	TLSVerify bool

	MaxIdleConns    int
	MaxConnsPerHost int
}

// OptionsFromConfig traduce la configuración de entorno a opciones del cliente.
func OptionsFromConfig(cfg config.SIFENConfig) ClientOptions {
	return ClientOptions{
		Environment:     cfg.Environment,
		BaseURL:         cfg.BaseURL,
		ConnectTimeout:  time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		ReadTimeout:     time.Duration(cfg.ReadTimeoutSec) * time.Second,
		TotalTimeout:    time.Duration(cfg.TotalTimeoutSec) * time.Second,
		TLSVerify:       cfg.TLSVerify,
		MaxIdleConns:    cfg.PoolMaxIdleConns,
		MaxConnsPerHost: cfg.PoolMaxConnsPerHost,
	}
}

// SOAPClient cliente SOAP 1.2 del WS SIFEN. Mantiene un transporte con pool
// de conexiones acotado y de larga vida: si el pool se agota la petición
// bloquea hasta que se libere una conexión, sujeta al timeout de conexión.
type SOAPClient struct {
	httpClient *http.Client
	opts       ClientOptions
	log        *logger.Logger
	reqSeq     atomic.Int64 // secuencia para dId
}

// NewSOAPClient construye el cliente con TLS mínimo 1.2 y timeouts por fase.
func NewSOAPClient(opts ClientOptions, log *logger.Logger) *SOAPClient {
	if log == nil {
		log = logger.Nop()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = 90 * time.Second
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 10
	}
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = 20
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConns,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !opts.TLSVerify,
		},
	}

	return &SOAPClient{
		httpClient: &http.Client{Transport: transport},
		opts:       opts,
		log:        log,
	}
}

// Close libera las conexiones ociosas del pool.
func (c *SOAPClient) Close() {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName  xml.Name   `xml:"env:Envelope"`
	XmlnsEnv string     `xml:"xmlns:env,attr"`
	Header   soapHeader `xml:"env:Header"`
	Body     soapBody   `xml:"env:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "env:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// rawXML incrusta XML ya serializado (el DE firmado) sin re-escapar.
type rawXML struct {
	Content []byte `xml:",innerxml"`
}

type rEnviDeBody struct {
	XMLName xml.Name `xml:"rEnviDe"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     int64    `xml:"dId"`
	XDE     rawXML   `xml:"xDE"`
}

type rEnviLoteBody struct {
	XMLName xml.Name `xml:"rEnvioLote"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     int64    `xml:"dId"`
	XDE     string   `xml:"xDE"` // ZIP del lote en Base64
}

type rEnviConsDeBody struct {
	XMLName xml.Name `xml:"rEnviConsDeRequest"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     int64    `xml:"dId"`
	DCDC    string   `xml:"dCDC"`
}

type rEnviConsRUCBody struct {
	XMLName xml.Name `xml:"rEnviConsRUC"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     int64    `xml:"dId"`
	DRUC    string   `xml:"dRUCCons"`
}

type rEnviEventoBody struct {
	XMLName xml.Name `xml:"rEnviEventoDe"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     int64    `xml:"dId"`
	DEvReg  rawXML   `xml:"dEvReg"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SendOne envía un documento firmado al endpoint síncrono recibe.
func (c *SOAPClient) SendOne(ctx context.Context, req *domsifen.SubmissionRequest) (*RawOutcome, error) {
	if req == nil || req.Document == nil || len(req.Document.XML) == 0 {
		return nil, &domsifen.ValidationError{Issues: []string{"petición sin documento firmado"}}
	}
	body := &rEnviDeBody{
		Xmlns: namespaceSIFEN,
		DID:   c.nextID(),
		XDE:   rawXML{Content: req.Document.XML},
	}
	return c.call(ctx, EndpointRecibe, body)
}

// SendBatch empaqueta hasta 50 documentos en un ZIP Base64 y los envía al
// endpoint asíncrono recibe-lote.
func (c *SOAPClient) SendBatch(ctx context.Context, documents [][]byte) (*RawOutcome, error) {
	if len(documents) == 0 || len(documents) > domsifen.BatchMaxSize {
		return nil, &domsifen.ValidationError{Issues: []string{
			fmt.Sprintf("el lote admite entre 1 y %d documentos, se recibieron %d", domsifen.BatchMaxSize, len(documents)),
		}}
	}
	zipped, err := compressLote(documents)
	if err != nil {
		return nil, err
	}
	body := &rEnviLoteBody{
		Xmlns: namespaceSIFEN,
		DID:   c.nextID(),
		XDE:   base64.StdEncoding.EncodeToString(zipped),
	}
	return c.call(ctx, EndpointRecibeLote, body)
}

// QueryByCDC consulta el estado de un documento por su CDC.
func (c *SOAPClient) QueryByCDC(ctx context.Context, cdc string) (*RawOutcome, error) {
	body := &rEnviConsDeBody{Xmlns: namespaceSIFEN, DID: c.nextID(), DCDC: cdc}
	return c.call(ctx, EndpointConsulta, body)
}

// QueryByRUC consulta los documentos asociados a un RUC.
func (c *SOAPClient) QueryByRUC(ctx context.Context, ruc string) (*RawOutcome, error) {
	body := &rEnviConsRUCBody{Xmlns: namespaceSIFEN, DID: c.nextID(), DRUC: ruc}
	return c.call(ctx, EndpointConsultaRUC, body)
}

// SendEvent registra un evento (cancelación, inutilización) sobre un DE.
func (c *SOAPClient) SendEvent(ctx context.Context, eventXML []byte) (*RawOutcome, error) {
	if len(eventXML) == 0 {
		return nil, &domsifen.ValidationError{Issues: []string{"evento vacío"}}
	}
	body := &rEnviEventoBody{Xmlns: namespaceSIFEN, DID: c.nextID(), DEvReg: rawXML{Content: eventXML}}
	return c.call(ctx, EndpointEvento, body)
}

// ── Núcleo HTTP ───────────────────────────────────────────────────────────────

// call serializa el envelope, ejecuta el POST con plazo total y clasifica los
// fallos de transporte en errores tipados.
func (c *SOAPClient) call(ctx context.Context, endpoint Endpoint, payload interface{}) (*RawOutcome, error) {
	envelope := soapEnvelope{
		XmlnsEnv: soapNS,
		Body:     soapBody{Content: payload},
	}
	xmlPayload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("sifen: serializar envelope SOAP: %w", err)
	}
	xmlPayload = append([]byte(xml.Header), xmlPayload...)

	ctx, cancel := context.WithTimeout(ctx, c.opts.TotalTimeout)
	defer cancel()

	url := c.endpointURL(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(xmlPayload))
	if err != nil {
		return nil, fmt.Errorf("sifen: crear request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeSOAP)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, c.classifyTransportError(endpoint, err, elapsed, ctx)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed = time.Since(start)
	if err != nil {
		if isTimeout(err) || ctx.Err() != nil {
			return nil, &domsifen.TimeoutError{Phase: domsifen.TimeoutRead, Elapsed: elapsed, Err: err}
		}
		return nil, &domsifen.ConnectionError{Endpoint: string(endpoint), Err: err}
	}

	c.log.Debug().
		Str("endpoint", string(endpoint)).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("respuesta del WS SIFEN")

	if resp.StatusCode >= 500 {
		return nil, &domsifen.ServerError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Preview:    previewBody(rawBody),
		}
	}

	return &RawOutcome{Body: rawBody, StatusCode: resp.StatusCode, Elapsed: elapsed}, nil
}

func (c *SOAPClient) endpointURL(endpoint Endpoint) string {
	base := c.opts.BaseURL
	if base == "" {
		base = baseURLTest
		if c.opts.Environment == "prod" {
			base = baseURLProd
		}
	}
	return base + endpointPaths[endpoint]
}

func (c *SOAPClient) nextID() int64 {
	return c.reqSeq.Add(1)
}

// classifyTransportError distingue timeout de conexión, de lectura y total de
// los demás fallos de transporte.
func (c *SOAPClient) classifyTransportError(endpoint Endpoint, err error, elapsed time.Duration, ctx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domsifen.TimeoutError{Phase: domsifen.TimeoutTotal, Elapsed: elapsed, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &domsifen.TimeoutError{Phase: domsifen.TimeoutTotal, Elapsed: elapsed, Err: err}
	}
	if isTimeout(err) {
		phase := domsifen.TimeoutRead
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			phase = domsifen.TimeoutConnect
		}
		return &domsifen.TimeoutError{Phase: phase, Elapsed: elapsed, Err: err}
	}
	return &domsifen.ConnectionError{Endpoint: string(endpoint), Err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
