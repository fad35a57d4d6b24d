package precondition

import (
	"net/http"
	"testing"

	"github.com/stormdav/davcore/internal/model"
)

func TestValidateIfMatchSuccess(t *testing.T) {
	headers := Headers{IfMatch: []string{`"abc"`}}
	state := ResourceState{DocumentID: 1, ETag: `"abc"`, Exists: true}
	if _, err := Validate(headers, []ResourceState{state}, model.MethodPUT); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateIfMatchFailure(t *testing.T) {
	headers := Headers{IfMatch: []string{`"abc"`}}
	state := ResourceState{DocumentID: 1, ETag: `"xyz"`, Exists: true}
	_, err := Validate(headers, []ResourceState{state}, model.MethodPUT)
	if err == nil {
		t.Fatal("expected a precondition failure")
	}
	if code := err.(*Error).HTTPStatus(); code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want %d", code, http.StatusPreconditionFailed)
	}
}

func TestValidateIfNoneMatchStarRejectsExisting(t *testing.T) {
	headers := Headers{IfNoneMatch: []string{"*"}}
	state := ResourceState{DocumentID: 1, ETag: `"abc"`, Exists: true}
	_, err := Validate(headers, []ResourceState{state}, model.MethodPUT)
	if err == nil {
		t.Fatal("expected If-None-Match: * to fail against an existing resource")
	}
}

func TestValidateIfNoneMatchStarAllowsMissing(t *testing.T) {
	headers := Headers{IfNoneMatch: []string{"*"}}
	state := ResourceState{DocumentID: 1, Exists: false}
	if _, err := Validate(headers, []ResourceState{state}, model.MethodPUT); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateLockedResourceRequiresToken(t *testing.T) {
	headers := Headers{}
	state := ResourceState{DocumentID: 1, Exists: true, Locked: []string{"urn:stalwart:davlock:1"}}
	_, err := Validate(headers, []ResourceState{state}, model.MethodPUT)
	if err == nil {
		t.Fatal("expected a locked resource without a matching token to fail")
	}
	if code := err.(*Error).HTTPStatus(); code != http.StatusLocked {
		t.Fatalf("status = %d, want %d", code, http.StatusLocked)
	}
}

func TestValidateLockedResourceWithAssertedToken(t *testing.T) {
	headers := Headers{LockTokens: []string{"urn:stalwart:davlock:1"}}
	state := ResourceState{DocumentID: 1, Exists: true, Locked: []string{"urn:stalwart:davlock:1"}}
	tokens, err := Validate(headers, []ResourceState{state}, model.MethodPUT)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != "urn:stalwart:davlock:1" {
		t.Fatalf("tokens = %+v, want one matching LockToken", tokens)
	}
}

func TestParseIfTokensExtractsBracketedTokens(t *testing.T) {
	tokens := parseIfTokens(`(<urn:stalwart:davlock:1>) (<urn:stalwart:davlock:2>)`)
	if len(tokens) != 2 {
		t.Fatalf("len(tokens) = %d, want 2", len(tokens))
	}
	if tokens[0] != "urn:stalwart:davlock:1" || tokens[1] != "urn:stalwart:davlock:2" {
		t.Fatalf("tokens = %v", tokens)
	}
}
