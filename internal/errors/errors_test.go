package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	err := fmt.Errorf("cycle: %w", Wrap(CodeLedgerUnreachable, cause, "读取余额失败"))

	if CodeOf(err) != CodeLedgerUnreachable {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !HasCode(err, CodeLedgerUnreachable) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(err, CodeCallReverted) {
		t.Fatalf("unexpected match for CALL_REVERTED")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !RetryableError(err) {
		t.Fatalf("ledger errors should be retryable")
	}
}

func TestFatalOnlyForConfiguration(t *testing.T) {
	if !IsFatal(New(CodeConfigurationMissing, "缺少 RPC_URL")) {
		t.Fatalf("configuration errors must be fatal")
	}
	for _, code := range []Code{CodeFeedUnavailable, CodeCallReverted, CodeConfirmationTimeout, CodeSubmissionRejected} {
		if IsFatal(New(code, "")) {
			t.Fatalf("code %s must not be fatal", code)
		}
	}
	if IsFatal(stdErrors.New("plain")) {
		t.Fatalf("plain errors must not be fatal")
	}
}

func TestDefaultMessageAndMetadata(t *testing.T) {
	err := New(CodeCallReverted, "", WithMetadata("tx", "0x01"))
	if err.Message() != "contract call reverted" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	if err.Retryable() {
		t.Fatalf("reverted calls are not retryable")
	}
	if err.Metadata()["tx"] != "0x01" {
		t.Fatalf("unexpected metadata %+v", err.Metadata())
	}
	if AttributesOf("NOT_REGISTERED").Message != "unknown error" {
		t.Fatalf("unregistered codes should fall back to UNKNOWN")
	}
}

func TestCancellationIsNeitherRetryableNorCritical(t *testing.T) {
	err := fmt.Errorf("shutdown: %w", Wrap(CodeCanceled, stdErrors.New("context canceled"), ""))
	if RetryableError(err) || IsFatal(err) {
		t.Fatalf("cancellation must be neither retryable nor fatal")
	}
	if SeverityOf(err) != SeverityInfo {
		t.Fatalf("unexpected severity %s", SeverityOf(err))
	}
	if SeverityOf(stdErrors.New("plain")) != SeverityCritical {
		t.Fatalf("unclassified errors default to UNKNOWN severity")
	}
}
