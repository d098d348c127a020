package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postsched/internal/model"
	logx "postsched/pkg/logx"
)

// sqlStore implements Store on database/sql. Queries are written with '?'
// placeholders and rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	log     logx.Logger
	dialect string // "sqlite" | "postgres"
}

const postColumns = `id, owner_id, social_account_id, platform, content, media_url, scheduled_at, status, error_message, created_at`

const accountColumns = `id, owner_id, platform, page_id, access_token, refresh_token, token_expires_at, created_at`

func (s *sqlStore) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	return rebindDollar(query)
}

// rebindDollar rewrites '?' placeholders as $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	s.log.Debug("migrate", logx.String("dialect", s.dialect))
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, created_at ASC, id ASC`
	args := []any{string(model.StatusScheduled), toMillis(now)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (s *sqlStore) Persist(ctx context.Context, id string, status model.PostStatus, errMsg string) error {
	if !model.CanTransition(model.StatusScheduled, status) {
		return ErrInvalidTransition
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE scheduled_posts SET status = ?, error_message = ? WHERE id = ? AND status = ?`),
		string(status), nullStr(errMsg), id, string(model.StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("persist %s: %w", id, err)
	}
	return s.explainNoRows(ctx, res, id, -1)
}

// explainNoRows maps a zero-row conditional write to ErrNotFound or ErrNotScheduled.
// ownerID < 0 skips the ownership check.
func (s *sqlStore) explainNoRows(ctx context.Context, res sql.Result, id string, ownerID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	p, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if ownerID >= 0 && p.OwnerID != ownerID {
		return ErrNotFound
	}
	return ErrNotScheduled
}

func (s *sqlStore) CreatePost(ctx context.Context, p model.ScheduledPost) error {
	if _, err := s.GetSocialAccount(ctx, p.SocialAccountID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO scheduled_posts(`+postColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`),
		p.ID, p.OwnerID, p.SocialAccountID, p.Platform, p.Content, nullStr(p.MediaURL),
		toMillis(p.ScheduledAt), string(p.Status), nullStr(p.ErrorMessage), toMillis(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *sqlStore) GetPost(ctx context.Context, id string) (model.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+postColumns+` FROM scheduled_posts WHERE id = ?`), id)
	if err != nil {
		return model.ScheduledPost{}, fmt.Errorf("get post: %w", err)
	}
	defer rows.Close()
	posts, err := scanPosts(rows)
	if err != nil {
		return model.ScheduledPost{}, err
	}
	if len(posts) == 0 {
		return model.ScheduledPost{}, ErrNotFound
	}
	return posts[0], nil
}

func (s *sqlStore) ListPosts(ctx context.Context, ownerID int64) ([]model.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+postColumns+` FROM scheduled_posts WHERE owner_id = ? ORDER BY created_at DESC, id DESC`),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (s *sqlStore) UpdatePost(ctx context.Context, p model.ScheduledPost) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE scheduled_posts SET content = ?, media_url = ?, scheduled_at = ?
			WHERE id = ? AND owner_id = ? AND status = ?`),
		p.Content, nullStr(p.MediaURL), toMillis(p.ScheduledAt), p.ID, p.OwnerID, string(model.StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("update post %s: %w", p.ID, err)
	}
	return s.explainNoRows(ctx, res, p.ID, p.OwnerID)
}

func (s *sqlStore) DeletePost(ctx context.Context, ownerID int64, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM scheduled_posts WHERE id = ? AND owner_id = ? AND status = ?`),
		id, ownerID, string(model.StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return s.explainNoRows(ctx, res, id, ownerID)
}

func (s *sqlStore) CreateSocialAccount(ctx context.Context, a model.SocialAccount) error {
	var expires any
	if a.TokenExpiresAt != nil {
		expires = toMillis(*a.TokenExpiresAt)
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO social_accounts(`+accountColumns+`) VALUES(?,?,?,?,?,?,?,?)`),
		a.ID, a.OwnerID, a.Platform, nullStr(a.PageID), a.AccessToken, nullStr(a.RefreshToken), expires, toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create social account: %w", err)
	}
	return nil
}

func (s *sqlStore) GetSocialAccount(ctx context.Context, id string) (model.SocialAccount, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+accountColumns+` FROM social_accounts WHERE id = ?`), id)
	if err != nil {
		return model.SocialAccount{}, fmt.Errorf("get social account: %w", err)
	}
	defer rows.Close()
	accs, err := scanAccounts(rows)
	if err != nil {
		return model.SocialAccount{}, err
	}
	if len(accs) == 0 {
		return model.SocialAccount{}, ErrNotFound
	}
	return accs[0], nil
}

func (s *sqlStore) ListSocialAccounts(ctx context.Context, ownerID int64) ([]model.SocialAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+accountColumns+` FROM social_accounts WHERE owner_id = ? ORDER BY created_at ASC, id ASC`),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list social accounts: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (s *sqlStore) DeleteSocialAccount(ctx context.Context, ownerID int64, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner int64
	err = tx.QueryRowContext(ctx, s.lockAccountQuery(), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != ownerID) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup social account: %w", err)
	}

	var scheduled int
	err = tx.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM scheduled_posts WHERE social_account_id = ? AND status = ?`),
		id, string(model.StatusScheduled),
	).Scan(&scheduled)
	if err != nil {
		return fmt.Errorf("count scheduled posts: %w", err)
	}
	if scheduled > 0 {
		return ErrAccountInUse
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM scheduled_posts WHERE social_account_id = ?`), id); err != nil {
		return fmt.Errorf("delete account posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM social_accounts WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete social account: %w", err)
	}
	return tx.Commit()
}

// lockAccountQuery reads the account owner. On postgres the row is locked so
// a concurrent insert referencing the account waits on its foreign key check
// until the delete commits.
func (s *sqlStore) lockAccountQuery() string {
	query := `SELECT owner_id FROM social_accounts WHERE id = ?`
	if s.dialect == "postgres" {
		query += ` FOR UPDATE`
	}
	return s.q(query)
}

func scanPosts(rows *sql.Rows) ([]model.ScheduledPost, error) {
	out := make([]model.ScheduledPost, 0)
	for rows.Next() {
		var (
			p           model.ScheduledPost
			media, emsg sql.NullString
			status      string
			sched, crt  int64
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.SocialAccountID, &p.Platform, &p.Content, &media, &sched, &status, &emsg, &crt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.MediaURL = media.String
		p.ErrorMessage = emsg.String
		p.Status = model.PostStatus(status)
		p.ScheduledAt = fromMillis(sched)
		p.CreatedAt = fromMillis(crt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanAccounts(rows *sql.Rows) ([]model.SocialAccount, error) {
	out := make([]model.SocialAccount, 0)
	for rows.Next() {
		var (
			a             model.SocialAccount
			page, refresh sql.NullString
			expires       sql.NullInt64
			created       int64
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Platform, &page, &a.AccessToken, &refresh, &expires, &created); err != nil {
			return nil, fmt.Errorf("scan social account: %w", err)
		}
		a.PageID = page.String
		a.RefreshToken = refresh.String
		if expires.Valid {
			t := fromMillis(expires.Int64)
			a.TokenExpiresAt = &t
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
