package logging

const (
	// Process
	FieldService   = "service"
	FieldComponent = "component"
	FieldSource    = "source"

	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Catalog
	FieldProvider = "provider"
	FieldOrigin   = "origin"
)
