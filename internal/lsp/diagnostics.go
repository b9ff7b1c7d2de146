package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	jerrors "jitopt/internal/errors"
)

// minSpan is the width of a diagnostic whose length is unknown
const minSpan = 1

// ConvertDiagnostics transforms front end errors and warnings into LSP diagnostics.
// Positions are 1-based in the compiler and 0-based in the protocol.
func ConvertDiagnostics(list jerrors.ErrorList) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	for _, e := range list {
		line := uint32(max(e.Position.Line-1, 0))
		start := uint32(max(e.Position.Column-1, 0))
		message := e.Message
		if e.HelpText != "" {
			message += "\n" + e.HelpText
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: start},
				End:   protocol.Position{Line: line, Character: start + uint32(max(e.Length, minSpan))},
			},
			Severity: ptrSeverity(severity(e.Level)),
			Code:     &protocol.IntegerOrString{Value: e.Code},
			Source:   ptrString(lsName),
			Message:  message,
		})
	}
	return diagnostics
}

func severity(level jerrors.ErrorLevel) protocol.DiagnosticSeverity {
	switch level {
	case jerrors.Warning:
		return protocol.DiagnosticSeverityWarning
	case jerrors.Note:
		return protocol.DiagnosticSeverityInformation
	case jerrors.Help:
		return protocol.DiagnosticSeverityHint
	}
	return protocol.DiagnosticSeverityError
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
