package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

func TestHistoryDecodesSources(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	rows := sqlmock.NewRows([]string{"turn_id", "query", "reformulated_query", "answer", "sources", "created_at"}).
		AddRow("t-1", "what is the cap", "", "The cap is $500 [Doc 1].", []byte(`[{"document_id":"doc-a","page":3}]`), time.Now()).
		AddRow("t-2", "and for renters", "what is the cap for renters", "It is $300 [Doc 1].", []byte(`[]`), time.Now())

	mock.ExpectQuery("FROM conversation_turns").
		WithArgs("th-1").
		WillReturnRows(rows)

	turns, err := store.History(context.Background(), "th-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if len(turns[0].Sources) != 1 || turns[0].Sources[0].DocumentID != "doc-a" || turns[0].Sources[0].Page != 3 {
		t.Fatalf("unexpected sources %+v", turns[0].Sources)
	}
	if turns[1].ReformulatedQuery != "what is the cap for renters" {
		t.Fatalf("unexpected reformulated query %q", turns[1].ReformulatedQuery)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHistoryWrapsBackendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("FROM conversation_turns").
		WithArgs("th-1").
		WillReturnError(errors.New("connection refused"))

	_, err = store.History(context.Background(), "th-1")
	if !domain.IsKind(err, domain.ErrThreadBackend) {
		t.Fatalf("expected thread backend error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendTurnInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectExec("INSERT INTO conversation_turns").
		WithArgs("th-1", "t-1", "q", "rq", "a", []byte(`[{"document_id":"doc-a","page":1}]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.AppendTurn(context.Background(), "th-1", domain.ConversationTurn{
		ID:                "t-1",
		Query:             "q",
		ReformulatedQuery: "rq",
		Answer:            "a",
		Sources:           []domain.Source{{DocumentID: "doc-a", Page: 1}},
	})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendTurnWrapsBackendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectExec("INSERT INTO conversation_turns").
		WillReturnError(errors.New("deadlock detected"))

	err = store.AppendTurn(context.Background(), "th-1", domain.ConversationTurn{ID: "t-1"})
	if !domain.IsKind(err, domain.ErrThreadBackend) {
		t.Fatalf("expected thread backend error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
