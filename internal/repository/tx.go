package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX は*sql.DBと*sql.Txの共通メソッドを表す。
// リポジトリはどちらを受け取っても同じSQLを発行する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// TxRepositories は1つのトランザクションに束縛されたリポジトリ群。
type TxRepositories struct {
	Users      UserRepository
	Sessions   SessionRepository
	Devices    DeviceRepository
	Pools      LinkPoolRepository
	Exclusions ExclusionRepository
	Batches    BatchRepository
	Messages   MessageRepository
}

// Transactor は複数リポジトリにまたがる操作を1トランザクションで実行する。
type Transactor interface {
	// WithinTx はfnをトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーを返す。
	WithinTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// PostgresTransactor はPostgreSQLのトランザクションを使用するTransactor。
type PostgresTransactor struct {
	db TxBeginner
}

// NewPostgresTransactor はPostgresTransactorを生成する。
func NewPostgresTransactor(db TxBeginner) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

// WithinTx はfnをトランザクション内で実行する。
func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	repos := TxRepositories{
		Users:      NewPostgresUserRepo(tx),
		Sessions:   NewPostgresSessionRepo(tx),
		Devices:    NewPostgresDeviceRepo(tx),
		Pools:      NewPostgresLinkPoolRepo(tx),
		Exclusions: NewPostgresExclusionRepo(tx),
		Batches:    NewPostgresBatchRepo(tx),
		Messages:   NewPostgresMessageRepo(tx),
	}

	if err := fn(repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Transactor = (*PostgresTransactor)(nil)
