package notifications

import (
	"context"
	"errors"
	"testing"
)

type sentMail struct {
	from, to, subject string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, from, to, subject, _ string) error {
	f.sent = append(f.sent, sentMail{from: from, to: to, subject: subject})
	return f.err
}

func TestCreateStoresAndMails(t *testing.T) {
	store := NewMemoryStore(true, "")
	store.SetUserEmail("t1", "u1", "u1@example.com")
	mailer := &fakeMailer{}
	svc := New(store, mailer)

	if err := svc.Create(context.Background(), "t1", "u1", TypeAppraisalPending, "Action needed", "body"); err != nil {
		t.Fatalf("create: %v", err)
	}
	items, err := svc.List(context.Background(), "t1", "u1", false, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Type != TypeAppraisalPending {
		t.Fatalf("unexpected notifications %+v", items)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].from != "no-reply@example.com" || mailer.sent[0].to != "u1@example.com" {
		t.Fatalf("unexpected mail %+v", mailer.sent)
	}
}

func TestCreateSkipsMailWhenDisabled(t *testing.T) {
	store := NewMemoryStore(false, "hr@example.com")
	store.SetUserEmail("t1", "u1", "u1@example.com")
	mailer := &fakeMailer{}
	if err := New(store, mailer).Create(context.Background(), "t1", "u1", TypeAppraisalReminder, "Reminder", "body"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("expected no mail, got %+v", mailer.sent)
	}
}

func TestCreateIgnoresMailFailure(t *testing.T) {
	store := NewMemoryStore(true, "hr@example.com")
	store.SetUserEmail("t1", "u1", "u1@example.com")
	mailer := &fakeMailer{err: errors.New("smtp down")}
	if err := New(store, mailer).Create(context.Background(), "t1", "u1", TypeAppraisalCompleted, "Done", "body"); err != nil {
		t.Fatalf("mail failure should not fail create: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].from != "hr@example.com" {
		t.Fatalf("unexpected mail %+v", mailer.sent)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	store := NewMemoryStore(false, "")
	svc := New(store, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.Create(ctx, "t1", "u1", TypeAppraisalPending, "n", "b"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, _ := svc.List(ctx, "t1", "u1", false, 10, 0)
	if err := svc.MarkRead(ctx, "t1", "u1", items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, _ := svc.Count(ctx, "t1", "u1", true)
	if unread != 2 {
		t.Fatalf("expected 2 unread, got %d", unread)
	}
	if err := svc.MarkRead(ctx, "t1", "u2", items[1].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's notification, got %v", err)
	}
	page, _ := svc.List(ctx, "t1", "u1", false, 2, 2)
	if len(page) != 1 {
		t.Fatalf("expected one item on the second page, got %d", len(page))
	}
}
