package fetcher

import (
	"bytes"
	"path"
	"strings"
)

// zipMagic starts every xlsx (an OOXML zip container).
var zipMagic = []byte("PK\x03\x04")

// Parse picks the parser from the file name, falling back to content
// sniffing for names without a known extension.
func Parse(fileName string, data []byte) (*Table, error) {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(data)
	case ".csv", ".txt", ".tsv":
		return ParseCSV(data)
	}
	if bytes.HasPrefix(data, zipMagic) {
		return ParseXLSX(data)
	}
	return ParseCSV(data)
}
