package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"testing"

	"remitlend/crypto"
)

type captureEmitter struct {
	seen []Event
}

func (c *captureEmitter) Emit(e Event) { c.seen = append(c.seen, e) }

func TestBufferFlushOnlyForwardsOnce(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(LoanApproved{LoanID: 7})
	buf.Emit(PaymentMissed{LoanID: 7, Count: 1})

	sink := &captureEmitter{}
	buf.FlushTo(sink)
	buf.FlushTo(sink)

	if len(sink.seen) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.seen))
	}
	if sink.seen[0].EventType() != TypeLoanApproved {
		t.Fatalf("unexpected first event %s", sink.seen[0].EventType())
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(LoanApproved{LoanID: 1})
	buf.Reset()
	if len(buf.Events()) != 0 {
		t.Fatalf("expected empty buffer after reset")
	}
}

func TestPoolRepayAttributesCarryTotal(t *testing.T) {
	evt := PoolRepay{LoanID: 3, Principal: big.NewInt(8_333), Interest: big.NewInt(1_250)}.Event()
	if evt.Type != TypePoolRepay {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["amount"] != "9583" {
		t.Fatalf("unexpected total %s", evt.Attributes["amount"])
	}
	if evt.Attributes["loanId"] != "3" {
		t.Fatalf("unexpected loan id %s", evt.Attributes["loanId"])
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a, b := &captureEmitter{}, &captureEmitter{}
	fan := NewFanout(a, nil, b)
	lender := crypto.ModuleAddress("lender")
	fan.Emit(PoolDeposit{Lender: lender, Amount: big.NewInt(5)})
	if len(a.seen) != 1 || len(b.seen) != 1 {
		t.Fatalf("expected both sinks to receive the event")
	}
	if got := a.seen[0].Event().Attributes["lender"]; got != lender.String() {
		t.Fatalf("unexpected lender attribute %s", got)
	}
}

func TestLogEmitterWritesAttributes(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))
	LogEmitter{Logger: logger}.Emit(LoanApproved{LoanID: 9})

	var line map[string]any
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["event"] != TypeLoanApproved {
		t.Fatalf("unexpected event field %v", line["event"])
	}
	attrs, ok := line["attributes"].(map[string]any)
	if !ok || attrs["loanId"] != "9" {
		t.Fatalf("unexpected attributes %v", line["attributes"])
	}
}
