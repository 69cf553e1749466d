package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/dxia/starshipplan/internal/database"
	"github.com/dxia/starshipplan/internal/model"
)

func setupLedgerTestDB(t *testing.T) (*LedgerStore, *UserStore, *sql.DB, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	parent, err := us.Create("papa", model.RoleParent, nil, "", "")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := us.Create("kiddo", model.RoleChild, &parent.ID, "", "流星号")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return NewLedgerStore(db), us, db, child.ID
}

func TestLedgerAppendAndBalance(t *testing.T) {
	ls, _, _, userID := setupLedgerTestDB(t)

	if balance, err := ls.Balance(userID); err != nil || balance != 0 {
		t.Fatalf("starting balance = %d (%v), want 0", balance, err)
	}

	pt, err := ls.Append(userID, model.TxEarn, 25, "完成任务")
	if err != nil {
		t.Fatalf("append earn: %v", err)
	}
	if pt.Balance != 25 {
		t.Errorf("balance field = %d, want 25", pt.Balance)
	}

	pt, err = ls.Append(userID, model.TxSpend, 10, "兑换奖励")
	if err != nil {
		t.Fatalf("append spend: %v", err)
	}
	if pt.Balance != 15 {
		t.Errorf("balance field = %d, want 15", pt.Balance)
	}

	pt, err = ls.Append(userID, model.TxBonus, 3, "连续奖励")
	if err != nil {
		t.Fatalf("append bonus: %v", err)
	}
	if pt.Balance != 18 {
		t.Errorf("balance field = %d, want 18", pt.Balance)
	}

	if balance, err := ls.Balance(userID); err != nil || balance != 18 {
		t.Errorf("balance = %d (%v), want 18", balance, err)
	}
	if err := ls.VerifyBalance(userID); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestLedgerRejectsOverspend(t *testing.T) {
	ls, _, _, userID := setupLedgerTestDB(t)

	if _, err := ls.Append(userID, model.TxEarn, 10, ""); err != nil {
		t.Fatalf("append earn: %v", err)
	}
	_, err := ls.Append(userID, model.TxSpend, 11, "")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// Nothing persisted by the rejected spend.
	txs, err := ls.ListByUser(userID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
	if balance, _ := ls.Balance(userID); balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestLedgerRejectsNegativeMagnitude(t *testing.T) {
	ls, _, _, userID := setupLedgerTestDB(t)
	if _, err := ls.Append(userID, model.TxEarn, -5, ""); err == nil {
		t.Fatal("expected error for negative magnitude")
	}
}

func TestLedgerDeductClamps(t *testing.T) {
	ls, _, db, userID := setupLedgerTestDB(t)

	if _, err := ls.Append(userID, model.TxEarn, 7, ""); err != nil {
		t.Fatalf("append earn: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	pt, err := ls.DeductClampedTx(tx, userID, 20, "惩罚")
	if err != nil {
		tx.Rollback()
		t.Fatalf("deduct: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if pt.Amount != 7 || pt.Balance != 0 {
		t.Errorf("deduct = amount %d balance %d, want 7/0", pt.Amount, pt.Balance)
	}
	if err := ls.VerifyBalance(userID); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestLedgerBalanceIsPrefixSum(t *testing.T) {
	ls, _, _, userID := setupLedgerTestDB(t)

	ops := []struct {
		typ    model.TransactionType
		amount int
	}{
		{model.TxEarn, 10}, {model.TxEarn, 10}, {model.TxSpend, 5},
		{model.TxBonus, 2}, {model.TxDeduct, 8}, {model.TxEarn, 1},
	}
	for i, op := range ops {
		if _, err := ls.Append(userID, op.typ, op.amount, ""); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}

	txs, err := ls.ListByUser(userID, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sum := 0
	for i := len(txs) - 1; i >= 0; i-- { // newest first, walk oldest-up
		sum += txs[i].Delta()
	}
	balance, err := ls.Balance(userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != sum {
		t.Errorf("balance = %d, prefix sum = %d", balance, sum)
	}
	if err := ls.VerifyBalance(userID); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestLedgerDetectsDrift(t *testing.T) {
	ls, _, db, userID := setupLedgerTestDB(t)

	if _, err := ls.Append(userID, model.TxEarn, 10, ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := ls.Append(userID, model.TxEarn, 10, ""); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Corrupt a stored balance behind the store's back.
	if _, err := db.Exec(`UPDATE point_transactions SET balance = 99 WHERE user_id = ?
		AND id = (SELECT MAX(id) FROM point_transactions WHERE user_id = ?)`, userID, userID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	err := ls.VerifyBalance(userID)
	if !errors.Is(err, ErrBalanceDrift) {
		t.Fatalf("err = %v, want ErrBalanceDrift", err)
	}
}

func TestLedgerUsersAreIndependent(t *testing.T) {
	ls, us, _, userID := setupLedgerTestDB(t)

	other, err := us.Create("momo", model.RoleChild, nil, "", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := ls.Append(userID, model.TxEarn, 10, ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	if balance, _ := ls.Balance(other.ID); balance != 0 {
		t.Errorf("other balance = %d, want 0", balance)
	}
}
