// Package security provides secret redaction for logs and audit trails,
// an audit log of tool and session activity, outbound URL filtering for
// network-backed tools and size/depth limits for inbound request bodies.
package security

// Service registry keys under which the app shares its redactor and audit
// logger with modules.
const (
	ServiceRedactor = "security.redactor"
	ServiceAudit    = "security.audit"
)
