package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
)

// Postgres implementa Store sobre database/sql + lib/pq. Cada WithinTx vira
// uma transação do banco; locks de linha (FOR UPDATE / FOR SHARE) fazem a
// exclusão mútua entre chamadores concorrentes.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// txMaxAttempts limita o retry transparente em conflito de serialização.
const txMaxAttempts = 3

func (p *Postgres) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = p.runTx(ctx, fn)
		if !errors.Is(err, domain.ErrTransactionConflict) {
			return err
		}
	}
	return err
}

func (p *Postgres) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// mapPgError traduz erros de concorrência do Postgres para o sinal tipado de
// retry (serialization_failure e deadlock_detected).
func mapPgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
		}
	}
	return err
}

// ---- Reader fora de transação ----

func (p *Postgres) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(p.db.QueryRowContext(ctx, qSelectAccount+` WHERE id=$1`, id))
}

func (p *Postgres) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	return scanMarket(p.db.QueryRowContext(ctx, qSelectMarket+` WHERE id=$1`, id))
}

func (p *Postgres) ListMarkets(ctx context.Context, status *domain.MarketStatus) ([]domain.Market, error) {
	q := qSelectMarket + ` ORDER BY created_at`
	args := []any{}
	if status != nil {
		q = qSelectMarket + ` WHERE status=$1 ORDER BY created_at`
		args = append(args, string(*status))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Market
	for rows.Next() {
		m, err := scanMarketRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSelection(ctx context.Context, id string) (*domain.Selection, error) {
	return scanSelection(p.db.QueryRowContext(ctx, qSelectSelection+` WHERE id=$1`, id))
}

func (p *Postgres) ListSelections(ctx context.Context, marketID string) ([]domain.Selection, error) {
	return querySelections(ctx, p.db, qSelectSelection+` WHERE market_id=$1 ORDER BY title`, marketID)
}

func (p *Postgres) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	return scanBet(p.db.QueryRowContext(ctx, qSelectBet+` WHERE id=$1`, id))
}

func (p *Postgres) ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	return queryBets(ctx, p.db, qSelectBet+` WHERE user_id=$1 ORDER BY placed_at, id`, userID)
}

func (p *Postgres) ListBetsByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return queryBets(ctx, p.db, qSelectBet+` WHERE market_id=$1 ORDER BY placed_at, id`, marketID)
}

func (p *Postgres) ListTransactionsByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return queryTransactions(ctx, p.db, qSelectTransaction+` WHERE user_id=$1 ORDER BY created_at, id`, userID)
}

// ---- Transação ----

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, qSelectAccount+` WHERE id=$1`, id))
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, qSelectAccount+` WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	return scanMarket(t.tx.QueryRowContext(ctx, qSelectMarket+` WHERE id=$1`, id))
}

func (t *pgTx) GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error) {
	return scanMarket(t.tx.QueryRowContext(ctx, qSelectMarket+` WHERE id=$1 FOR UPDATE`, id))
}

// GetMarketForShare segura o mercado contra settle/close concorrente sem
// serializar apostas entre si (FOR SHARE).
func (t *pgTx) GetMarketForShare(ctx context.Context, id string) (*domain.Market, error) {
	return scanMarket(t.tx.QueryRowContext(ctx, qSelectMarket+` WHERE id=$1 FOR SHARE`, id))
}

func (t *pgTx) ListMarkets(ctx context.Context, status *domain.MarketStatus) ([]domain.Market, error) {
	q := qSelectMarket + ` ORDER BY created_at`
	args := []any{}
	if status != nil {
		q = qSelectMarket + ` WHERE status=$1 ORDER BY created_at`
		args = append(args, string(*status))
	}
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Market
	for rows.Next() {
		m, err := scanMarketRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (t *pgTx) GetSelection(ctx context.Context, id string) (*domain.Selection, error) {
	return scanSelection(t.tx.QueryRowContext(ctx, qSelectSelection+` WHERE id=$1`, id))
}

func (t *pgTx) ListSelections(ctx context.Context, marketID string) ([]domain.Selection, error) {
	return querySelections(ctx, t.tx, qSelectSelection+` WHERE market_id=$1 ORDER BY title`, marketID)
}

func (t *pgTx) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	return scanBet(t.tx.QueryRowContext(ctx, qSelectBet+` WHERE id=$1`, id))
}

func (t *pgTx) ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	return queryBets(ctx, t.tx, qSelectBet+` WHERE user_id=$1 ORDER BY placed_at, id`, userID)
}

func (t *pgTx) ListBetsByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return queryBets(ctx, t.tx, qSelectBet+` WHERE market_id=$1 ORDER BY placed_at, id`, marketID)
}

func (t *pgTx) ListTransactionsByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return queryTransactions(ctx, t.tx, qSelectTransaction+` WHERE user_id=$1 ORDER BY created_at, id`, userID)
}

func (t *pgTx) InsertAccount(ctx context.Context, a *domain.Account) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, balance_cents, total_bets_placed, total_bets_won, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.DisplayName, a.BalanceCents, a.TotalBetsPlaced, a.TotalBetsWon, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (t *pgTx) UpdateAccountBalance(ctx context.Context, id string, newBalanceCents int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents=$1, updated_at=NOW() WHERE id=$2`, newBalanceCents, id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

func (t *pgTx) BumpAccountCounters(ctx context.Context, id string, placed, won int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET total_bets_placed = total_bets_placed + $1,
		    total_bets_won    = total_bets_won + $2
		WHERE id=$3`, placed, won, id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

func (t *pgTx) SetAccountActive(ctx context.Context, id string, active bool) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrAccountNotFound)
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount_cents, resulting_balance_cents, related_bet_id, related_market_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		tr.ID, tr.UserID, string(tr.Type), tr.AmountCents, tr.ResultingBalanceCents, tr.RelatedBetID, tr.RelatedMarketID, tr.CreatedAt,
	)
	return err
}

func (t *pgTx) InsertMarket(ctx context.Context, m *domain.Market) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO markets (id, title, description, event_ref, status, winning_selection_id, closing_time, created_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.Title, m.Description, m.EventRef, string(m.Status), m.WinningSelectionID, m.ClosingTime, m.CreatedAt, m.SettledAt,
	)
	return err
}

func (t *pgTx) InsertSelection(ctx context.Context, s *domain.Selection) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO selections (id, market_id, title, odds, is_winner)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.MarketID, s.Title, s.Odds, s.IsWinner,
	)
	return err
}

func (t *pgTx) TransitionMarket(ctx context.Context, id string, from, to domain.MarketStatus, winningSelectionID *string, settledAt *time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE markets
		SET status=$1, winning_selection_id=$2, settled_at=$3
		WHERE id=$4 AND status=$5`,
		string(to), winningSelectionID, settledAt, id, string(from),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// 0 linhas: ou o mercado não existe, ou o status mudou por baixo de nós
	var cur string
	err = t.tx.QueryRowContext(ctx, `SELECT status FROM markets WHERE id=$1`, id).Scan(&cur)
	if err == sql.ErrNoRows {
		return domain.ErrMarketNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (t *pgTx) MarkSelectionWinner(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE selections SET is_winner=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrSelectionNotFound)
}

func (t *pgTx) UpdateSelectionOdds(ctx context.Context, id string, odds float64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE selections SET odds=$1 WHERE id=$2`, odds, id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrSelectionNotFound)
}

func (t *pgTx) InsertBet(ctx context.Context, b *domain.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, market_id, selection_id, stake_cents, odds_at_placement, status, payout_cents, placed_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.UserID, b.MarketID, b.SelectionID, b.StakeCents, b.OddsAtPlacement, string(b.Status), b.PayoutCents, b.PlacedAt, b.SettledAt,
	)
	return err
}

func (t *pgTx) ListPendingBets(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return queryBets(ctx, t.tx,
		qSelectBet+` WHERE market_id=$1 AND status='PENDING' ORDER BY placed_at, id FOR UPDATE`, marketID)
}

func (t *pgTx) SettleBet(ctx context.Context, betID string, status domain.BetStatus, payoutCents int64, settledAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bets SET status=$1, payout_cents=$2, settled_at=$3 WHERE id=$4`,
		string(status), payoutCents, settledAt, betID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrBetNotFound)
}

// ---- Scan helpers ----

const (
	qSelectAccount     = `SELECT id, display_name, balance_cents, total_bets_placed, total_bets_won, is_active, created_at, updated_at FROM accounts`
	qSelectMarket      = `SELECT id, title, description, event_ref, status, winning_selection_id, closing_time, created_at, settled_at FROM markets`
	qSelectSelection   = `SELECT id, market_id, title, odds, is_winner FROM selections`
	qSelectBet         = `SELECT id, user_id, market_id, selection_id, stake_cents, odds_at_placement, status, payout_cents, placed_at, settled_at FROM bets`
	qSelectTransaction = `SELECT id, user_id, type, amount_cents, resulting_balance_cents, related_bet_id, related_market_id, created_at FROM transactions`
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.DisplayName, &a.BalanceCents, &a.TotalBetsPlaced, &a.TotalBetsWon, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanMarket(row rowScanner) (*domain.Market, error) {
	m, err := scanMarketRows(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMarketNotFound
	}
	return m, err
}

func scanMarketRows(row rowScanner) (*domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.EventRef, &status, &m.WinningSelectionID, &m.ClosingTime, &m.CreatedAt, &m.SettledAt)
	if err != nil {
		return nil, err
	}
	m.Status = domain.MarketStatus(status)
	return &m, nil
}

func scanSelection(row rowScanner) (*domain.Selection, error) {
	var s domain.Selection
	err := row.Scan(&s.ID, &s.MarketID, &s.Title, &s.Odds, &s.IsWinner)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSelectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanBet(row rowScanner) (*domain.Bet, error) {
	var b domain.Bet
	var status string
	err := row.Scan(&b.ID, &b.UserID, &b.MarketID, &b.SelectionID, &b.StakeCents, &b.OddsAtPlacement, &status, &b.PayoutCents, &b.PlacedAt, &b.SettledAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = domain.BetStatus(status)
	return &b, nil
}

func queryBets(ctx context.Context, q querier, query string, args ...any) ([]domain.Bet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func querySelections(ctx context.Context, q querier, query string, args ...any) ([]domain.Selection, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Selection
	for rows.Next() {
		s, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		var tr domain.Transaction
		var typ string
		if err := rows.Scan(&tr.ID, &tr.UserID, &typ, &tr.AmountCents, &tr.ResultingBalanceCents, &tr.RelatedBetID, &tr.RelatedMarketID, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Type = domain.TransactionType(typ)
		out = append(out, tr)
	}
	return out, rows.Err()
}
