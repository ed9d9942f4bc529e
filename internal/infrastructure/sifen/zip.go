package sifen

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// compressLote empaqueta los XML firmados de un lote en un ZIP en memoria.
// La SET exige el lote como ZIP con un archivo por documento; el payload viaja
// en Base64 dentro de <xDE>.
func compressLote(documents [][]byte) ([]byte, error) {
	if len(documents) == 0 {
		return nil, fmt.Errorf("sifen: lote vacío")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, doc := range documents {
		name := fmt.Sprintf("de-%03d.xml", i+1)
		fw, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("sifen: zip: crear entrada %s: %w", name, err)
		}
		if _, err := fw.Write(doc); err != nil {
			return nil, fmt.Errorf("sifen: zip: escribir %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("sifen: zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}
