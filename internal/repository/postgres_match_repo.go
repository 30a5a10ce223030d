package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
)

// matchColumns はmatchesテーブルのSELECT対象カラム。scanMatchと順序を合わせる。
const matchColumns = `id, location, date, time, level, current_players, max_players, COALESCE(external_ref, ''), created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(s rowScanner, m *model.Match) error {
	var level string
	if err := s.Scan(&m.ID, &m.Location, &m.Date, &m.Time, &level,
		&m.CurrentPlayers, &m.MaxPlayers, &m.ExternalRef, &m.CreatedAt); err != nil {
		return err
	}
	m.Level = model.SkillLevel(level)
	return nil
}

// PostgresMatchRepo はPostgreSQLを使用した試合リポジトリ。
type PostgresMatchRepo struct {
	db *sql.DB
}

// NewPostgresMatchRepo はPostgresMatchRepoを生成する。
func NewPostgresMatchRepo(db *sql.DB) *PostgresMatchRepo {
	return &PostgresMatchRepo{db: db}
}

// FindByID は指定IDの試合を取得する。見つからない場合はnilを返す。
func (r *PostgresMatchRepo) FindByID(ctx context.Context, id int64) (*model.Match, error) {
	m := &model.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`,
		id,
	), m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match by ID: %w", err)
	}
	return m, nil
}

// List は全試合を作成順で返す。
func (r *PostgresMatchRepo) List(ctx context.Context) ([]*model.Match, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*model.Match
	for rows.Next() {
		m := &model.Match{}
		if err := scanMatch(rows, m); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}

// Create は試合を作成し、採番したIDとCreatedAtを設定する。
func (r *PostgresMatchRepo) Create(ctx context.Context, match *model.Match) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO matches (location, date, time, level, current_players, max_players, external_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		 RETURNING id, created_at`,
		match.Location, match.Date, match.Time, string(match.Level),
		match.CurrentPlayers, match.MaxPlayers, match.ExternalRef,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// CreateIfAbsent はExternalRefが未登録の場合のみ試合を作成する。
func (r *PostgresMatchRepo) CreateIfAbsent(ctx context.Context, match *model.Match) (bool, error) {
	if match.ExternalRef == "" {
		return false, fmt.Errorf("external ref is required")
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO matches (location, date, time, level, current_players, max_players, external_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (external_ref) DO NOTHING
		 RETURNING id, created_at`,
		match.Location, match.Date, match.Time, string(match.Level),
		match.CurrentPlayers, match.MaxPlayers, match.ExternalRef,
	).Scan(&match.ID, &match.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create match by external ref: %w", err)
	}
	return true, nil
}

// HasMember は(matchID, token)のmembershipが存在するかを返す。
func (r *PostgresMatchRepo) HasMember(ctx context.Context, matchID int64, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_matches WHERE match_id = $1 AND identity_token = $2)`,
		matchID, token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// AddMember はmembershipの作成とcurrent_playersのインクリメントを同一トランザクションで行う。
// 試合行をFOR UPDATEでロックするため、別プロセスからの同時参加でも定員を超えない。
func (r *PostgresMatchRepo) AddMember(ctx context.Context, matchID int64, token string, joinedAt time.Time) (*model.Match, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m := &model.Match{}
	err = scanMatch(tx.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`,
		matchID,
	), m)
	if err == sql.ErrNoRows {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock match: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO user_matches (match_id, identity_token, joined_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (match_id, identity_token) DO NOTHING`,
		matchID, token, joinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		return nil, ErrAlreadyMember
	}

	// 定員チェックはロック取得後の値で行う。失敗時はRollbackでmembershipも取り消される
	if m.IsFull() {
		return nil, ErrMatchFull
	}

	if err := tx.QueryRowContext(ctx,
		`UPDATE matches SET current_players = current_players + 1
		 WHERE id = $1
		 RETURNING current_players`,
		matchID,
	).Scan(&m.CurrentPlayers); err != nil {
		return nil, fmt.Errorf("failed to increment current players: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return m, nil
}

// ListMembershipsWithMatch は全membershipを参加順で、所属する試合と結合して返す。
func (r *PostgresMatchRepo) ListMembershipsWithMatch(ctx context.Context) ([]MembershipWithMatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT um.match_id, um.identity_token, um.joined_at,
		        m.id, m.location, m.date, m.time, m.level, m.current_players, m.max_players,
		        COALESCE(m.external_ref, ''), m.created_at
		 FROM user_matches um
		 JOIN matches m ON m.id = um.match_id
		 ORDER BY um.id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var results []MembershipWithMatch
	for rows.Next() {
		var mm MembershipWithMatch
		var level string
		if err := rows.Scan(
			&mm.MatchID, &mm.IdentityToken, &mm.JoinedAt,
			&mm.Match.ID, &mm.Match.Location, &mm.Match.Date, &mm.Match.Time, &level,
			&mm.Match.CurrentPlayers, &mm.Match.MaxPlayers, &mm.Match.ExternalRef, &mm.Match.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership row: %w", err)
		}
		mm.Match.Level = model.SkillLevel(level)
		results = append(results, mm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return results, nil
}

// compile-time interface check
var _ MatchRepository = (*PostgresMatchRepo)(nil)
