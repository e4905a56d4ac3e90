package storage

import (
	"context"
	"database/sql"

	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (Result, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

type Row interface {
	Scan(dest ...any) error
}

type Result interface {
	// RowsAffected returns the number of rows affected by an
	// update, insert, or delete. Not every database or database
	// driver may support this.
	RowsAffected() (int64, error)
}

type CreateTxOption func(*sql.TxOptions)

func TxOptionWithWrite(write bool) CreateTxOption {
	return func(option *sql.TxOptions) {
		option.ReadOnly = !write
	}
}

func TxOptionWithIsolationLevel(level sql.IsolationLevel) CreateTxOption {
	return func(option *sql.TxOptions) {
		option.Isolation = level
	}
}

type ListIssuedCertificatesRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`

	// Filters
	IDs           []string         `json:"ids"`
	SerialNumbers []string         `json:"serial_numbers"`
	Roles         []model.CertRole `json:"roles"`
}

type ListIssuedCertificatesResponse struct {
	Total int64                     `json:"total"`
	Certs []model.IssuedCertificate `json:"certs"`
}

// CertStorage persists the issuance record of every certificate the CA signs.
type CertStorage interface {
	CreateTx(ctx context.Context, options ...CreateTxOption) (Tx, context.Context, error)
	AddIssuedCertificate(ctx context.Context, tx Tx, cert model.IssuedCertificate) error
	ListIssuedCertificates(ctx context.Context, tx Tx, req ListIssuedCertificatesRequest) (ListIssuedCertificatesResponse, error)
}
