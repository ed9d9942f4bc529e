package sifen

// Endpoint nombre lógico de cada operación remota del WS SIFEN. Se usa en
// logs y errores en lugar de la URL completa.
type Endpoint string

const (
	EndpointRecibe      Endpoint = "recibe"       // envío individual (síncrono)
	EndpointRecibeLote  Endpoint = "recibe-lote"  // envío por lote, máx 50 DE (asíncrono)
	EndpointConsulta    Endpoint = "consulta"     // consulta por CDC
	EndpointConsultaRUC Endpoint = "consulta-ruc" // consulta por RUC
	EndpointEvento      Endpoint = "evento"       // registro de eventos
)

// URLs base oficiales de los ambientes SIFEN.
const (
	baseURLTest = "https://sifen-test.set.gov.py"
	baseURLProd = "https://sifen.set.gov.py"
)

// namespaceSIFEN namespace de los cuerpos de petición del WS.
const namespaceSIFEN = "http://ekuatia.set.gov.py/sifen/xsd"

var endpointPaths = map[Endpoint]string{
	EndpointRecibe:      "/de/ws/sync/recibe.wsdl",
	EndpointRecibeLote:  "/de/ws/async/recibe-lote.wsdl",
	EndpointConsulta:    "/de/ws/consultas/consulta.wsdl",
	EndpointConsultaRUC: "/de/ws/consultas/consulta-ruc.wsdl",
	EndpointEvento:      "/de/ws/eventos/evento.wsdl",
}
