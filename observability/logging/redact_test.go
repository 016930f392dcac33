package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestMaskFieldKeepsLedgerKeys(t *testing.T) {
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected authorization to be redacted, got %q", attr.Value.String())
	}
	if attr := MaskField("authorization", ""); attr.Value.String() != "" {
		t.Fatalf("empty values stay empty, got %q", attr.Value.String())
	}
	if attr := MaskField("loanId", "42"); attr.Value.String() != "42" {
		t.Fatalf("loan ids should stay readable")
	}
	if attr := MaskField(" Borrower ", "rmt1xyz"); attr.Value.String() != "rmt1xyz" {
		t.Fatalf("borrower addresses should stay readable")
	}
	if attr := MaskField("memo", "free text"); attr.Value.String() != RedactedValue {
		t.Fatalf("unknown keys must be masked")
	}
}

func TestHandlerMasksSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelDebug))
	logger.Warn("webhook rejected",
		slog.String("signature", "sha256=deadbeef"),
		slog.String("op", "report_remittance"),
		slog.Uint64("loanId", 7),
		slog.Group("attributes", slog.String("account", "acct-991"), slog.String("collateralId", "3")),
		slog.String("token", ""),
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["severity"] != "WARN" || line["message"] != "webhook rejected" {
		t.Fatalf("unexpected envelope: %v", line)
	}
	if line["signature"] != RedactedValue {
		t.Fatalf("signature leaked: %v", line["signature"])
	}
	if line["op"] != "report_remittance" || line["loanId"] != float64(7) {
		t.Fatalf("ledger fields were altered: %v", line)
	}
	if line["token"] != "" {
		t.Fatalf("empty token should stay empty, got %v", line["token"])
	}
	group, ok := line["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("missing attributes group: %v", line)
	}
	if group["account"] != RedactedValue || group["collateralId"] != "3" {
		t.Fatalf("unexpected group redaction: %v", group)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
