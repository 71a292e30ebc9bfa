package output

import (
	"fmt"
	"os"

	"github.com/CycloneDX/cyclonedx-go"

	"github.com/trailofbits/it-depends/sbom"
)

// ToCycloneDX renders an already-resolved SBOM as a CycloneDX document,
// delegating the component/dependency-graph construction to sbom.ToCycloneDX
// and only choosing the encoding on top, mirroring how binary/cdx/cdx.go
// keeps document construction and serialization separate from each other.
func ToCycloneDX(s *sbom.SBOM, toolVersion string) *cyclonedx.BOM {
	return s.ToCycloneDX(toolVersion)
}

// WriteCycloneDX writes doc to path in the requested CycloneDX encoding,
// ported from binary/cdx/cdx.go's Write: same two formats, same
// NewBOMEncoder(...).SetPretty(true) call, generalized from a hardcoded
// "cdx-json"/"cdx-xml" pair to this CLI's --output-format names.
func WriteCycloneDX(doc *cyclonedx.BOM, path, format string) error {
	var cdxFormat cyclonedx.BOMFileFormat
	switch format {
	case "cyclonedx", "cyclonedx-json":
		cdxFormat = cyclonedx.BOMFileFormatJSON
	case "cyclonedx-xml":
		cdxFormat = cyclonedx.BOMFileFormatXML
	default:
		return fmt.Errorf("output: %q is not a supported CycloneDX format", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := cyclonedx.NewBOMEncoder(f, cdxFormat).SetPretty(true)
	return encoder.Encode(doc)
}
