package auth

import (
	"errors"
	"testing"
	"time"
)

func TestService_IssueAndVerify(t *testing.T) {
	svc, err := NewService("test-secret", "docketflow", time.Hour)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, err := svc.Issue("operator-42", RoleOperator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("issue: expected token, got empty string")
	}

	actor, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.ID != "operator-42" {
		t.Fatalf("verify: expected actor %q got %q", "operator-42", actor.ID)
	}
	if actor.Role != RoleOperator {
		t.Fatalf("verify: expected role %s got %s", RoleOperator, actor.Role)
	}
}

func TestService_RejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := NewService("test-secret", "docketflow", time.Minute)
	svc.WithClock(func() time.Time { return issuedAt })

	token, err := svc.Issue("scheduler", RoleSystem)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.WithClock(func() time.Time { return issuedAt.Add(2 * time.Minute) })
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestService_RejectsForeignSecretAndIssuer(t *testing.T) {
	ours, _ := NewService("secret-a", "docketflow", time.Hour)
	other, _ := NewService("secret-b", "docketflow", time.Hour)
	foreign, _ := NewService("secret-a", "someone-else", time.Hour)

	token, _ := other.Issue("judge-1", RoleJudge)
	if _, err := ours.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret: expected ErrInvalidToken, got %v", err)
	}

	token, _ = foreign.Issue("judge-1", RoleJudge)
	if _, err := ours.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign issuer: expected ErrInvalidToken, got %v", err)
	}

	if _, err := ours.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: expected ErrInvalidToken, got %v", err)
	}
}

func TestService_IssueValidation(t *testing.T) {
	svc, _ := NewService("s", "", time.Hour)
	if _, err := svc.Issue("", RoleOperator); err == nil {
		t.Errorf("expected error for empty actor")
	}
	if _, err := svc.Issue("x", Role("admin")); err == nil {
		t.Errorf("expected error for unknown role")
	}
	if _, err := NewService("", "", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}
