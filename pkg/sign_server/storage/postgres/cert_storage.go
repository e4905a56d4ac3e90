package postgres

import (
	"context"

	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	"github.com/samber/lo"
)

func (s *_Storage) AddIssuedCertificate(ctx context.Context, tx storage.Tx, cert model.IssuedCertificate) error {
	query := `
INSERT INTO issued_cert (id, role, serial_number, issued_at, cert)
VALUES ($1, $2, $3, $4, $5)
`
	// The private key of a temporary certificate is handed to the caller and
	// never persisted.
	cert.PrivateKey = ""

	_, err := tx.Exec(
		ctx,
		query,
		cert.ID,
		cert.Role,
		cert.SerialNumber,
		cert.IssuedAt,
		cert,
	)
	if err != nil {
		return err
	}
	return nil
}

func (s *_Storage) ListIssuedCertificates(ctx context.Context, tx storage.Tx, req storage.ListIssuedCertificatesRequest) (storage.ListIssuedCertificatesResponse, error) {
	query := `
WITH filtered AS (
	SELECT rec_id, "cert" FROM "issued_cert"
	WHERE
		(COALESCE(ARRAY_LENGTH($3::TEXT[], 1), 0) = 0 OR id = ANY($3)) AND
		(COALESCE(ARRAY_LENGTH($4::TEXT[], 1), 0) = 0 OR serial_number = ANY($4)) AND
		(COALESCE(ARRAY_LENGTH($5::TEXT[], 1), 0) = 0 OR role = ANY($5))
)
, paged AS (
	SELECT "cert" FROM filtered
	ORDER BY rec_id ASC
	OFFSET $1 LIMIT $2
)
, total AS (
	SELECT COUNT(*) AS total FROM filtered
)
SELECT total, "cert" FROM paged FULL JOIN total ON FALSE
`
	roles := lo.Map(req.Roles, func(role model.CertRole, _ int) string { return string(role) })
	rows, err := tx.Query(
		ctx,
		query,
		req.Offset,
		req.Limit,
		req.IDs,
		req.SerialNumbers,
		roles,
	)
	if err != nil {
		return storage.ListIssuedCertificatesResponse{}, err
	}
	defer rows.Close()

	result := storage.ListIssuedCertificatesResponse{}
	for rows.Next() {
		var total *int64
		var cert *model.IssuedCertificate
		if err := rows.Scan(&total, &cert); err != nil {
			return storage.ListIssuedCertificatesResponse{}, err
		}
		if total != nil {
			result.Total = *total
		}
		if cert != nil {
			result.Certs = append(result.Certs, *cert)
		}
	}
	if err := rows.Err(); err != nil {
		return storage.ListIssuedCertificatesResponse{}, err
	}

	return result, nil
}
