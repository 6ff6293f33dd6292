package tools

// RemoteReadAnnotations marks a tool that only reads from an external service.
// Repeated calls may return different data, so it is not idempotent.
func RemoteReadAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    true,
		"destructiveHint": false,
		"idempotentHint":  false,
		"openWorldHint":   true,
	}
}

func LocalReadAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    true,
		"destructiveHint": false,
		"idempotentHint":  true,
		"openWorldHint":   false,
	}
}
