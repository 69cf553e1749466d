package model

import "time"

// TransactionType classifies a ledger entry. EARN and BONUS credit the
// balance; SPEND and DEDUCT debit it.
type TransactionType string

const (
	TxEarn   TransactionType = "EARN"
	TxSpend  TransactionType = "SPEND"
	TxDeduct TransactionType = "DEDUCT"
	TxBonus  TransactionType = "BONUS"
)

// Sign returns +1 for crediting types and -1 for debiting types.
func (t TransactionType) Sign() int {
	switch t {
	case TxSpend, TxDeduct:
		return -1
	default:
		return 1
	}
}

// PointTransaction is one append-only ledger row. Amount is always a
// positive magnitude; the signed delta is Amount * Type.Sign(). Balance is
// the running balance after this row, materialized at insert time.
type PointTransaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      int             `json:"amount"`
	Balance     int             `json:"balance"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Delta returns the signed balance change of this transaction.
func (p *PointTransaction) Delta() int {
	return p.Amount * p.Type.Sign()
}
