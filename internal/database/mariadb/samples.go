package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
)

const schema = `CREATE TABLE IF NOT EXISTS face_images (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	user_id INT NOT NULL,
	user_name VARCHAR(255) NOT NULL DEFAULT '',
	face_data LONGBLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_face_images_created (created_at)
) DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates face_images when the enrollment station has not done so yet.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create face_images: %w", err)
	}
	return nil
}

// ListIdentities returns every distinct (user_id, user_name) pair with its sample count.
func (p *Pool) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, user_name, COUNT(*), MAX(created_at)
		FROM face_images
		GROUP BY user_id, user_name
		ORDER BY user_id, user_name`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		var ident database.Identity
		if err := rows.Scan(&ident.UserID, &ident.UserName, &ident.Samples, &ident.LastCaptured); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// EachSample streams samples ordered by capture time, oldest first.
func (p *Pool) EachSample(ctx context.Context, fn func(database.Sample) error) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, user_name, face_data, created_at
		FROM face_images
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s database.Sample
		if err := rows.Scan(&s.ID, &s.UserID, &s.UserName, &s.Data, &s.CapturedAt); err != nil {
			return fmt.Errorf("scan sample: %w", err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate samples: %w", err)
	}
	return nil
}

// Count returns the number of stored samples.
func (p *Pool) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM face_images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// InsertSample stores a new sample; created_at defaults to now when CapturedAt is zero.
func (p *Pool) InsertSample(ctx context.Context, s database.Sample) (int64, error) {
	var (
		query = `INSERT INTO face_images (user_id, user_name, face_data) VALUES (?, ?, ?)`
		args  = []any{s.UserID, s.UserName, s.Data}
	)
	if !s.CapturedAt.IsZero() {
		query = `INSERT INTO face_images (user_id, user_name, face_data, created_at) VALUES (?, ?, ?, ?)`
		args = append(args, s.CapturedAt)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert sample id: %w", err)
	}
	return id, nil
}
