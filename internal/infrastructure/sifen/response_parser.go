package sifen

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	domsifen "github.com/jhoicas/sifen-core/internal/domain/sifen"
	"github.com/jhoicas/sifen-core/pkg/logger"
	pkgsifen "github.com/jhoicas/sifen-core/pkg/sifen"
)

// ResponseParser convierte la respuesta XML/SOAP de la SET en un Outcome
// estructurado. No decide reintentos ni enriquece mensajes: eso es del
// clasificador.
type ResponseParser struct {
	log *logger.Logger
}

// NewResponseParser crea el parser.
func NewResponseParser(log *logger.Logger) *ResponseParser {
	if log == nil {
		log = logger.Nop()
	}
	return &ResponseParser{log: log}
}

// approvedCodes códigos que implican aprobación del documento.
var approvedCodes = map[string]domsifen.DocumentStatus{
	"0260": domsifen.StatusApproved,                 // Autorizado el DE
	"1005": domsifen.StatusApprovedWithObservations, // Autorizado con observaciones
}

// loteQueuedCode el lote fue recibido y quedó en cola de procesamiento.
const loteQueuedCode = "0300"

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type respEnvelope struct {
	Body respBody `xml:"Body"`
}

type respBody struct {
	RetEnviDe  *retEnviDe  `xml:"rRetEnviDe"`
	ResLote    *resLote    `xml:"rResEnviLoteDe"`
	ResConsDe  *resConsDe  `xml:"rResEnviConsDe"`
	ResConsRUC *resConsRUC `xml:"rResEnviConsRUC"`
	ResEvento  *retEnviDe  `xml:"rRetEnviEventoDe"` // misma forma de protocolo
	Fault      *soapFault  `xml:"Fault"`
}

type soapFault struct {
	Code   faultCode   `xml:"Code"`
	Reason faultReason `xml:"Reason"`
}

type faultCode struct {
	Value string `xml:"Value"`
}

type faultReason struct {
	Text string `xml:"Text"`
}

type gResProc struct {
	DCodRes string `xml:"dCodRes"`
	DMsgRes string `xml:"dMsgRes"`
}

type rProtDe struct {
	ID       string     `xml:"id"`
	DFecProc string     `xml:"dFecProc"`
	DDigVal  string     `xml:"dDigVal"`
	DEstRes  string     `xml:"dEstRes"`
	DProtAut string     `xml:"dProtAut"`
	GResProc []gResProc `xml:"gResProc"`
}

type retEnviDe struct {
	RProtDe *rProtDe `xml:"rProtDe"`
}

type resLote struct {
	DFecProc      string `xml:"dFecProc"`
	DCodRes       string `xml:"dCodRes"`
	DMsgRes       string `xml:"dMsgRes"`
	DProtConsLote string `xml:"dProtConsLote"`
}

type resConsDe struct {
	DCodRes string   `xml:"dCodRes"`
	DMsgRes string   `xml:"dMsgRes"`
	RProtDe *rProtDe `xml:"xContenDE>rProtDe"`
}

type consRUCEntry struct {
	ID       string `xml:"id"`
	DEstRes  string `xml:"dEstRes"`
	DFecEmi  string `xml:"dFecEmi"`
	DProtAut string `xml:"dProtAut"`
}

type resConsRUC struct {
	DCodRes  string         `xml:"dCodRes"`
	DMsgRes  string         `xml:"dMsgRes"`
	DPagAct  int            `xml:"dPagAct"`
	DTotPag  int            `xml:"dTotPag"`
	Entries  []consRUCEntry `xml:"xContRUC>rDE"`
}

// ── Parse ─────────────────────────────────────────────────────────────────────

// Parse interpreta la respuesta cruda. XML malformado o vacío produce
// ParsingError con un preview truncado y enmascarado.
func (p *ResponseParser) Parse(raw *RawOutcome) (*domsifen.Outcome, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, &domsifen.ParsingError{
			Preview: "",
			Err:     fmt.Errorf("respuesta vacía del WS"),
		}
	}

	var env respEnvelope
	if err := xml.Unmarshal(raw.Body, &env); err != nil {
		return nil, &domsifen.ParsingError{Preview: previewBody(raw.Body), Err: err}
	}

	outcome := &domsifen.Outcome{Elapsed: raw.Elapsed}

	switch {
	case env.Body.Fault != nil:
		f := env.Body.Fault
		outcome.Success = false
		outcome.Status = domsifen.StatusTechnicalError
		outcome.Message = fmt.Sprintf("SOAP Fault [%s]: %s", f.Code.Value, f.Reason.Text)

	case env.Body.RetEnviDe != nil && env.Body.RetEnviDe.RProtDe != nil:
		p.fillFromProtocol(outcome, env.Body.RetEnviDe.RProtDe)

	case env.Body.ResEvento != nil && env.Body.ResEvento.RProtDe != nil:
		p.fillFromProtocol(outcome, env.Body.ResEvento.RProtDe)

	case env.Body.ResLote != nil:
		l := env.Body.ResLote
		outcome.Code = l.DCodRes
		outcome.Message = l.DMsgRes
		outcome.ProtocolNumber = l.DProtConsLote
		if l.DCodRes == loteQueuedCode {
			outcome.Success = true
			outcome.Status = domsifen.StatusPending
		} else {
			outcome.Success = false
			outcome.Status = statusFromCode(l.DCodRes)
		}

	case env.Body.ResConsDe != nil:
		q := env.Body.ResConsDe
		outcome.Code = q.DCodRes
		outcome.Message = q.DMsgRes
		if q.RProtDe != nil {
			p.fillFromProtocol(outcome, q.RProtDe)
			// el código de la consulta manda sobre el del protocolo embebido
			if q.DCodRes != "" {
				outcome.Code = q.DCodRes
				outcome.Message = q.DMsgRes
			}
		} else {
			outcome.Success = false
			outcome.Status = statusFromCode(q.DCodRes)
		}

	case env.Body.ResConsRUC != nil:
		q := env.Body.ResConsRUC
		outcome.Code = q.DCodRes
		outcome.Message = q.DMsgRes
		outcome.Page = q.DPagAct
		outcome.TotalPages = q.DTotPag
		outcome.Success = strings.HasPrefix(q.DCodRes, "0")
		outcome.Status = statusFromCode(q.DCodRes)
		for _, e := range q.Entries {
			entry := domsifen.DocumentSummary{
				Status:    statusFromEstRes(e.DEstRes),
				IssueDate: e.DFecEmi,
				Protocol:  e.DProtAut,
			}
			if pkgsifen.IsWellFormedCDC(e.ID) {
				entry.CDC = e.ID
			}
			outcome.Documents = append(outcome.Documents, entry)
		}

	default:
		return nil, &domsifen.ParsingError{
			Preview: previewBody(raw.Body),
			Err:     fmt.Errorf("respuesta SOAP sin cuerpo reconocible"),
		}
	}

	return outcome, nil
}

// fillFromProtocol vuelca un bloque rProtDe (envío individual, evento o
// consulta) al Outcome.
func (p *ResponseParser) fillFromProtocol(outcome *domsifen.Outcome, prot *rProtDe) {
	if len(prot.GResProc) > 0 {
		outcome.Code = prot.GResProc[0].DCodRes
		outcome.Message = prot.GResProc[0].DMsgRes
	}
	outcome.ProtocolNumber = prot.DProtAut

	// El CDC se valida como 44 dígitos o se descarta.
	if pkgsifen.IsWellFormedCDC(prot.ID) {
		outcome.CDC = prot.ID
	}

	// Estado: el indicador explícito manda; si falta, se infiere del código.
	if prot.DEstRes != "" {
		outcome.Status = statusFromEstRes(prot.DEstRes)
	} else {
		outcome.Status = statusFromCode(outcome.Code)
	}
	outcome.Success = outcome.Status == domsifen.StatusApproved ||
		outcome.Status == domsifen.StatusApprovedWithObservations

	// Resultados adicionales: observaciones si el documento quedó aprobado,
	// errores si fue rechazado.
	for _, g := range prot.GResProc[min(1, len(prot.GResProc)):] {
		detail := domsifen.ResponseDetail{Code: g.DCodRes, Message: g.DMsgRes}
		if outcome.Success {
			outcome.Observations = append(outcome.Observations, detail)
		} else {
			outcome.Errors = append(outcome.Errors, detail)
		}
	}
}

func statusFromEstRes(estRes string) domsifen.DocumentStatus {
	switch strings.ToLower(strings.TrimSpace(estRes)) {
	case "aprobado":
		return domsifen.StatusApproved
	case "aprobado con observación", "aprobado con observaciones":
		return domsifen.StatusApprovedWithObservations
	case "rechazado":
		return domsifen.StatusRejected
	case "pendiente", "en proceso":
		return domsifen.StatusPending
	default:
		return domsifen.StatusTechnicalError
	}
}

// statusFromCode infiere el estado para códigos nunca vistos: set de
// aprobados → aprobado; rangos de validación/negocio (1xxx-4xxx) → rechazado;
// rango de errores de sistema (5xxx) → error técnico.
func statusFromCode(code string) domsifen.DocumentStatus {
	if st, ok := approvedCodes[code]; ok {
		return st
	}
	if code == "" {
		return domsifen.StatusTechnicalError
	}
	switch code[0] {
	case '5':
		return domsifen.StatusTechnicalError
	case '1', '2', '3', '4':
		return domsifen.StatusRejected
	default:
		return domsifen.StatusPending
	}
}

// digitRun corre de 6+ dígitos: serial, RUC o CDC en el cuerpo crudo.
var digitRun = regexp.MustCompile(`\d{6,}`)

// previewBody trunca el cuerpo a 300 caracteres y enmascara corridas de
// dígitos para no filtrar RUC, seriales ni CDC en logs de diagnóstico.
func previewBody(body []byte) string {
	s := string(body)
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return digitRun.ReplaceAllStringFunc(s, logger.Mask)
}
