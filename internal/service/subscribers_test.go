package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/repository"
)

func newTestSubscriberService(t *testing.T) (*SubscriberService, *recordingRecorder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := repository.NewFileSubscriberRepository(repository.NewJournal[entity.Subscriber]("", false, logger), logger)
	recorder := &recordingRecorder{}
	svc := NewSubscriberService(repo, NewContactValidator("US"),
		WithLogger(logger),
		WithRecorder(recorder),
		WithClock(func() time.Time { return fixedNow }),
	)
	tokens := 0
	svc.newToken = func() string {
		tokens++
		return fmt.Sprintf("token-%d", tokens)
	}
	return svc, recorder
}

func TestSubscriberService_Lifecycle(t *testing.T) {
	svc, recorder := newTestSubscriberService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, " Ada@Example.com ", "Ada")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Email != "ada@example.com" || sub.Token != "token-1" || sub.Confirmed {
		t.Fatalf("unexpected subscriber: %+v", sub)
	}

	if _, err := svc.Subscribe(ctx, "ada@example.com", ""); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}

	confirmed, err := svc.Confirm(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed.Confirmed || confirmed.ConfirmedAt == nil {
		t.Fatalf("expected confirmation, got %+v", confirmed)
	}

	if _, err := svc.Unsubscribe(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := svc.Unsubscribe(ctx, "token-1")
	if err != nil || !again.Unsubscribed {
		t.Fatalf("expected repeated unsubscribe to be harmless, got %+v %v", again, err)
	}
	if _, err := svc.Confirm(ctx, "token-1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected confirm after unsubscribe to fail, got %v", err)
	}

	back, err := svc.Subscribe(ctx, "ada@example.com", "Ada L.")
	if err != nil {
		t.Fatalf("expected re-activation, got %v", err)
	}
	if back.ID != sub.ID || back.Unsubscribed || back.Confirmed || back.Token != "token-2" || back.Name != "Ada L." {
		t.Fatalf("unexpected re-activated subscriber: %+v", back)
	}

	counts, err := svc.Counts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total != 1 || counts.Confirmed != 0 || counts.Unsubscribed != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	wantEvents := []string{"subscribed", "confirmed", "unsubscribed", "resubscribed"}
	if fmt.Sprint(recorder.events) != fmt.Sprint(wantEvents) {
		t.Fatalf("unexpected events %v", recorder.events)
	}
}

func TestSubscriberService_InvalidInput(t *testing.T) {
	svc, _ := newTestSubscriberService(t)
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, "not-an-email", ""); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Confirm(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.Unsubscribe(ctx, "missing"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
