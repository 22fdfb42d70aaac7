package debug

import (
	"context"
	"encoding/json"
	"log/slog"

	"oracle/internal/models"
)

// PrintValidation prints a validation result in JSON format
func PrintValidation(callID, source string, result models.ValidationResult) {
	dump("Validation details", result, "call", callID, "source", source)
}

// PrintSignatures prints a collected signature set in JSON format
func PrintSignatures(callID string, sigs []models.OracleSignature) {
	dump("Signature set details", sigs, "call", callID)
}

func dump(msg string, v any, attrs ...any) {
	// Skip the marshal cost unless debug output is on
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal debug value to JSON", "error", err)
		return
	}
	slog.Debug(msg, append(attrs, "json", string(jsonData))...)
}
