package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chatpadel/internal/model"
)

// PostgresWaitlistRepo はPostgreSQLを使用したウェイトリストリポジトリ。
type PostgresWaitlistRepo struct {
	db *sql.DB
}

// NewPostgresWaitlistRepo はPostgresWaitlistRepoを生成する。
func NewPostgresWaitlistRepo(db *sql.DB) *PostgresWaitlistRepo {
	return &PostgresWaitlistRepo{db: db}
}

// ExistsByEmail はメールアドレスが登録済みかを返す。
func (r *PostgresWaitlistRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM waitlist WHERE email = $1)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check waitlist email: %w", err)
	}
	return exists, nil
}

// Create はエントリを作成する。重複時はErrDuplicateEmailを返す。
func (r *PostgresWaitlistRepo) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO waitlist (email, name, skill_level)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		entry.Email, entry.Name, string(entry.SkillLevel),
	).Scan(&entry.ID, &entry.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	return nil
}

// List は全エントリを登録順で返す。
func (r *PostgresWaitlistRepo) List(ctx context.Context) ([]*model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, name, skill_level, created_at FROM waitlist ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}
	defer rows.Close()

	var entries []*model.WaitlistEntry
	for rows.Next() {
		e := &model.WaitlistEntry{}
		var level string
		if err := rows.Scan(&e.ID, &e.Email, &e.Name, &level, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist row: %w", err)
		}
		e.SkillLevel = model.SkillLevel(level)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate waitlist: %w", err)
	}
	return entries, nil
}

// compile-time interface check
var _ WaitlistRepository = (*PostgresWaitlistRepo)(nil)
