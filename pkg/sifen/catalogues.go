package sifen

// =============================================================================
// Tipos de Documento Electrónico (Manual Técnico SIFEN - campo iTiDE)
// Son los dos primeros dígitos del CDC.
// =============================================================================

const (
	DocTypeFacturaElectronica       = "01" // Factura electrónica
	DocTypeFacturaExportacion       = "02" // Factura electrónica de exportación
	DocTypeFacturaImportacion       = "03" // Factura electrónica de importación
	DocTypeAutofactura              = "04" // Autofactura electrónica
	DocTypeNotaCreditoElectronica   = "05" // Nota de crédito electrónica
	DocTypeNotaDebitoElectronica    = "06" // Nota de débito electrónica
	DocTypeNotaRemisionElectronica  = "07" // Nota de remisión electrónica
	DocTypeComprobanteRetencion     = "08" // Comprobante de retención electrónico
)

// ValidDocumentTypeCodes contiene los tipos de DE reconocidos por la SET.
var ValidDocumentTypeCodes = map[string]bool{
	DocTypeFacturaElectronica: true, DocTypeFacturaExportacion: true,
	DocTypeFacturaImportacion: true, DocTypeAutofactura: true,
	DocTypeNotaCreditoElectronica: true, DocTypeNotaDebitoElectronica: true,
	DocTypeNotaRemisionElectronica: true, DocTypeComprobanteRetencion: true,
}

// =============================================================================
// Tipos de Emisión (Manual Técnico SIFEN - campo iTipEmi)
// =============================================================================

const (
	EmissionTypeNormal       byte = '1' // Emisión normal
	EmissionTypeContingencia byte = '2' // Emisión en contingencia
)

// =============================================================================
// Tipos de Contribuyente (Manual Técnico SIFEN - campo iTipCont)
// =============================================================================

const (
	TaxpayerTypePersonaFisica   byte = '1' // Persona física
	TaxpayerTypePersonaJuridica byte = '2' // Persona jurídica
)

// =============================================================================
// Ambientes SIFEN
// =============================================================================

const (
	EnvironmentTest = "test" // Ambiente de pruebas/homologación (sifen-test.set.gov.py)
	EnvironmentProd = "prod" // Ambiente de producción (sifen.set.gov.py)
)

// NamespaceSIFEN es el namespace obligatorio del documento electrónico.
const NamespaceSIFEN = "http://ekuatia.set.gov.py/sifen/xsd"
