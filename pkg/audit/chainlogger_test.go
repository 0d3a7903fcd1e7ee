package audit

import "testing"

func TestChainLogger(t *testing.T) {
	logger := NewChainLogger()

	logger.Append("op=deposit account=acct-1 amount=25.50 status=200")
	logger.Append("op=withdraw account=acct-1 amount=10.00 status=200")
	logger.Append("op=transfer account=acct-1 amount=5.00 status=200")

	chain := logger.Entries()
	if len(chain) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(chain))
	}
	if !VerifyChain(chain) {
		t.Error("VerifyChain failed for valid chain")
	}

	// Tampered payload breaks the chain.
	originalPayload := chain[1].Payload
	chain[1].Payload = "op=withdraw account=acct-1 amount=9999.00 status=200"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered payload")
	}
	chain[1].Payload = originalPayload

	// A rewritten hash breaks the chain.
	originalHash := chain[1].Hash
	chain[1].Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered hash")
	}
	chain[1].Hash = originalHash

	// A broken back-link breaks the chain.
	chain[2].PreviousHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for broken link")
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	if !VerifyChain(nil) {
		t.Error("empty chain must verify")
	}
}
