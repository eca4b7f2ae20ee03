package pipeline

// Parse decodes raw activity bytes in the declared format into a uniform
// point stream.
func Parse(data []byte, format FileFormat) (*ParsedActivity, error) {
	switch format {
	case FormatFit:
		return parseFit(data)
	default:
		return parseGpx(data)
	}
}
