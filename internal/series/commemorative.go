package series

// CommemorativeLabel renders a commemorative code. Unknown suffixes are shown as-is.
func CommemorativeLabel(code Code) string {
	if code.Kind != KindCommemorative {
		return code.Raw
	}
	if !code.HasSuffix() {
		return code.Year
	}
	if desc, ok := SuffixDescription(code.Suffix); ok {
		return code.Year + " " + desc
	}
	return code.Year + " " + code.Suffix
}
