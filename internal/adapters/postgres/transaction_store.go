package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// Ensure TransactionStore implements the port
var _ ports.TransactionStore = (*TransactionStore)(nil)

// TransactionStore keeps one row per ticket. The full record lives in a JSONB
// column; pending_amount, captured and metadata are columns so guarded updates
// stay single statements, and they override the JSON copy on read.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a transaction store on db
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const selectTransaction = `SELECT record, pending_amount, captured, metadata FROM transactions`

// GetByTicket returns ports.ErrNotFound when the ticket is unknown
func (s *TransactionStore) GetByTicket(ctx context.Context, ticketNumber string) (*domain.Transaction, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	row := s.db.pool.QueryRow(ctx, selectTransaction+` WHERE ticket_number = $1`, ticketNumber)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", ticketNumber, err)
	}
	return txn, nil
}

// ConditionalPut inserts the record unless the ticket already exists
func (s *TransactionStore) ConditionalPut(ctx context.Context, txn *domain.Transaction) error {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()
	return insertTransaction(ctx, s.db.pool, txn)
}

func insertTransaction(ctx context.Context, q querier, txn *domain.Transaction) error {
	record, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", txn.TicketNumber, err)
	}
	metadata, err := json.Marshal(nonNilMetadata(txn.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", txn.TicketNumber, err)
	}
	pending, err := decimalToNumeric(txn.PendingAmount)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO transactions (
			ticket_number, transaction_reference, transaction_id, merchant_id, processor_name,
			transaction_type, status, original_ticket_number, pending_amount, captured,
			metadata, record, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (ticket_number) DO NOTHING`,
		txn.TicketNumber,
		txn.TransactionReference,
		txn.TransactionID,
		txn.MerchantID,
		txn.ProcessorName,
		string(txn.TransactionType),
		string(txn.Status),
		nullText(txn.OriginalTicketNumber),
		pending,
		txn.Captured,
		metadata,
		record,
		txn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrAlreadyExists
		}
		return fmt.Errorf("insert transaction %s: %w", txn.TicketNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrAlreadyExists
	}
	return nil
}

// QueryByReference lists records sharing a transaction reference, oldest first
func (s *TransactionStore) QueryByReference(ctx context.Context, reference string) ([]*domain.Transaction, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	rows, err := s.db.pool.Query(ctx,
		selectTransaction+` WHERE transaction_reference = $1 ORDER BY created_at, ticket_number`, reference)
	if err != nil {
		return nil, fmt.Errorf("query reference %s: %w", reference, err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference %s: %w", reference, err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query reference %s: %w", reference, err)
	}
	return out, nil
}

// UpdateValues applies the non-nil fields of update in one statement.
// A missing ticket or a failed guard is ports.ErrConditionFailed.
func (s *TransactionStore) UpdateValues(ctx context.Context, ticketNumber string, update ports.TransactionUpdate) error {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	var pending pgtype.Numeric
	if update.PendingAmount != nil {
		n, err := decimalToNumeric(*update.PendingAmount)
		if err != nil {
			return err
		}
		pending = n
	}
	var expectPending pgtype.Numeric
	if update.ExpectPending != nil {
		n, err := decimalToNumeric(*update.ExpectPending)
		if err != nil {
			return err
		}
		expectPending = n
	}
	var metadata []byte
	if update.Metadata != nil {
		encoded, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", ticketNumber, err)
		}
		metadata = encoded
	}

	tag, err := s.db.pool.Exec(ctx, `
		UPDATE transactions SET
			pending_amount = COALESCE($2, pending_amount),
			captured       = COALESCE($3, captured),
			metadata       = CASE WHEN $4::jsonb IS NULL THEN metadata ELSE metadata || $4::jsonb END,
			updated_at     = now()
		WHERE ticket_number = $1
		  AND ($5::boolean IS NULL OR captured = $5)
		  AND ($6::numeric IS NULL OR pending_amount = $6)`,
		ticketNumber, pending, update.Captured, metadata, update.ExpectCaptured, expectPending,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", ticketNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConditionFailed
	}
	return nil
}

// DecrementPending subtracts amount only when at least that much is pending
func (s *TransactionStore) DecrementPending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	delta, err := decimalToNumeric(amount)
	if err != nil {
		return decimal.Zero, err
	}

	var remaining pgtype.Numeric
	err = s.db.pool.QueryRow(ctx, `
		UPDATE transactions
		SET pending_amount = pending_amount - $2, updated_at = now()
		WHERE ticket_number = $1 AND $2 > 0 AND pending_amount >= $2
		RETURNING pending_amount`,
		ticketNumber, delta,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ports.ErrConditionFailed
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("decrement pending %s: %w", ticketNumber, err)
	}
	return pgNumericToDecimal(remaining)
}

// RestorePending adds amount back to pending_amount
func (s *TransactionStore) RestorePending(ctx context.Context, ticketNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	delta, err := decimalToNumeric(amount)
	if err != nil {
		return decimal.Zero, err
	}

	var remaining pgtype.Numeric
	err = s.db.pool.QueryRow(ctx, `
		UPDATE transactions
		SET pending_amount = pending_amount + $2, updated_at = now()
		WHERE ticket_number = $1 AND $2 > 0
		RETURNING pending_amount`,
		ticketNumber, delta,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ports.ErrConditionFailed
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("restore pending %s: %w", ticketNumber, err)
	}
	return pgNumericToDecimal(remaining)
}

// Ping checks the database connection
func (s *TransactionStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		record   []byte
		pending  pgtype.Numeric
		captured bool
		metadata []byte
	)
	if err := row.Scan(&record, &pending, &captured, &metadata); err != nil {
		return nil, err
	}

	var txn domain.Transaction
	if err := json.Unmarshal(record, &txn); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	amount, err := pgNumericToDecimal(pending)
	if err != nil {
		return nil, err
	}
	txn.PendingAmount = amount
	txn.Captured = captured
	if len(metadata) > 0 {
		var md map[string]string
		if err := json.Unmarshal(metadata, &md); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if len(md) > 0 {
			txn.Metadata = md
		}
	}
	return &txn, nil
}

func nonNilMetadata(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}
