// Package ledger moves stakes between player wallets and the escrow account.
// Every operation runs inside the caller's store transaction so a failed
// debit rolls back whatever else the transaction did.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadySettled    = errors.New("match already settled")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// reference types written to account_transactions
const (
	RefStake   = "match_stake"
	RefPayout  = "match_payout"
	RefRefund  = "match_refund"
	RefDeposit = "deposit"
)

type Ledger struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{logger: logger.With("component", "ledger")}
}

func wallet(userID string) sql.NullString {
	return sql.NullString{String: userID, Valid: true}
}

func ref(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

// Debit moves amount from the user's wallet into escrow. The wallet never
// goes negative.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, userID string, amount int64, matchID string) error {
	if amount == 0 {
		return nil
	}
	return l.transfer(ctx, tx, transfer{
		fromType: models.AccountPlayerWallet, fromOwner: wallet(userID),
		toType: models.AccountEscrow,
		amount: amount, refType: RefStake, refID: matchID,
		desc: fmt.Sprintf("stake for match %s", matchID),
	})
}

// Credit moves amount from escrow back to the user's wallet. Callers must
// hold the match's settlement claim.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, userID string, amount int64, matchID, refType string) error {
	if amount == 0 {
		return nil
	}
	return l.transfer(ctx, tx, transfer{
		fromType: models.AccountEscrow,
		toType:   models.AccountPlayerWallet, toOwner: wallet(userID),
		amount: amount, refType: refType, refID: matchID,
		desc: fmt.Sprintf("%s for match %s", refType, matchID),
	})
}

// Deposit adds external money to a wallet.
func (l *Ledger) Deposit(ctx context.Context, tx store.Tx, userID string, amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acc, err := tx.GetAccountForUpdate(ctx, models.AccountPlayerWallet, wallet(userID))
	if err != nil {
		return fmt.Errorf("failed to lock wallet: %w", err)
	}
	if err := tx.SetAccountBalance(ctx, acc.ID, acc.Balance+amount); err != nil {
		return err
	}
	if description == "" {
		description = "wallet deposit"
	}
	if err := tx.InsertAccountTransaction(ctx, &models.AccountTransaction{
		CreditAccountID: acc.ID,
		Amount:          amount,
		ReferenceType:   RefDeposit,
		Description:     description,
	}); err != nil {
		return err
	}
	l.logger.Info("deposit", "user_id", userID, "amount", amount, "balance", acc.Balance+amount)
	return nil
}

// Balance returns the wallet balance; a user without a wallet has zero.
func (l *Ledger) Balance(ctx context.Context, q store.Queries, userID string) (int64, error) {
	acc, err := q.GetAccount(ctx, models.AccountPlayerWallet, wallet(userID))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// CheckFunds fails with ErrInsufficientFunds when the wallet cannot cover amount.
func (l *Ledger) CheckFunds(ctx context.Context, q store.Queries, userID string, amount int64) error {
	if amount == 0 {
		return nil
	}
	balance, err := l.Balance(ctx, q, userID)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("user %s has %d, needs %d: %w", userID, balance, amount, ErrInsufficientFunds)
	}
	return nil
}

// ClaimSettlement records that the match has been paid out. It returns
// ErrAlreadySettled when another transaction got there first.
func (l *Ledger) ClaimSettlement(ctx context.Context, tx store.Tx, s *models.Settlement) error {
	ok, err := tx.InsertSettlement(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to claim settlement: %w", err)
	}
	if !ok {
		return ErrAlreadySettled
	}
	return nil
}

type transfer struct {
	fromType  string
	fromOwner sql.NullString
	toType    string
	toOwner   sql.NullString
	amount    int64
	refType   string
	refID     string
	desc      string
}

// transfer locks both accounts, escrow first, checks the debit side and
// writes one account_transactions row.
func (l *Ledger) transfer(ctx context.Context, tx store.Tx, t transfer) error {
	if t.amount < 0 {
		return ErrInvalidAmount
	}

	escrow, err := tx.GetAccountForUpdate(ctx, models.AccountEscrow, sql.NullString{})
	if err != nil {
		return fmt.Errorf("failed to lock escrow: %w", err)
	}
	lock := func(accountType string, owner sql.NullString) (*models.Account, error) {
		if accountType == models.AccountEscrow {
			return escrow, nil
		}
		return tx.GetAccountForUpdate(ctx, accountType, owner)
	}

	from, err := lock(t.fromType, t.fromOwner)
	if err != nil {
		return fmt.Errorf("failed to lock debit account: %w", err)
	}
	to, err := lock(t.toType, t.toOwner)
	if err != nil {
		return fmt.Errorf("failed to lock credit account: %w", err)
	}

	if from.Balance < t.amount {
		if from.AccountType == models.AccountPlayerWallet {
			return fmt.Errorf("account %d has %d, needs %d: %w", from.ID, from.Balance, t.amount, ErrInsufficientFunds)
		}
		return fmt.Errorf("escrow account %d short by %d", from.ID, t.amount-from.Balance)
	}

	if err := tx.SetAccountBalance(ctx, from.ID, from.Balance-t.amount); err != nil {
		return err
	}
	if err := tx.SetAccountBalance(ctx, to.ID, to.Balance+t.amount); err != nil {
		return err
	}
	if err := tx.InsertAccountTransaction(ctx, &models.AccountTransaction{
		DebitAccountID:  sql.NullInt64{Int64: from.ID, Valid: true},
		CreditAccountID: to.ID,
		Amount:          t.amount,
		ReferenceType:   t.refType,
		ReferenceID:     ref(t.refID),
		Description:     t.desc,
	}); err != nil {
		return err
	}

	l.logger.Debug("transfer completed",
		"debit_account", from.ID, "credit_account", to.ID,
		"amount", t.amount, "ref_type", t.refType, "ref_id", t.refID)
	return nil
}
