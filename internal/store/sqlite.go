package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "postpilot/pkg/logx"

	"github.com/google/uuid"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func msOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOf(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullMS(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// ---- accounts ----

func (s *sqliteStore) AddAccount(ctx context.Context, a Account) (Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = AccountActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(id, platform, nickname, ai_enabled, status, created_ms)
		 VALUES(?,?,?,?,?,?)`,
		a.ID, a.Platform, a.Nickname, boolInt(a.AIEnabled), string(a.Status), msOf(a.CreatedAt),
	)
	return a, err
}

func (s *sqliteStore) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, platform, nickname, ai_enabled, status, created_ms FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *sqliteStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, nickname, ai_enabled, status, created_ms FROM accounts ORDER BY created_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(r rowScanner) (Account, error) {
	var a Account
	var ai int
	var status string
	var created int64
	err := r.Scan(&a.ID, &a.Platform, &a.Nickname, &ai, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.AIEnabled = ai != 0
	a.Status = AccountStatus(status)
	a.CreatedAt = timeOf(created)
	return a, nil
}

func (s *sqliteStore) SetAccountStatus(ctx context.Context, id string, status AccountStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- hotspots ----

func (s *sqliteStore) ReplaceHotspots(ctx context.Context, items []Hotspot) error {
	return s.importHotspots(ctx, items, true)
}

func (s *sqliteStore) ImportHotspots(ctx context.Context, items []Hotspot, mode ImportMode) error {
	return s.importHotspots(ctx, items, mode == ImportReplace)
}

func (s *sqliteStore) importHotspots(ctx context.Context, items []Hotspot, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM hotspots`); err != nil {
			return err
		}
	}
	for _, h := range items {
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO hotspots(id, platform, topic, heat, collected_ms) VALUES(?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET platform=excluded.platform, topic=excluded.topic,
			 heat=excluded.heat, collected_ms=excluded.collected_ms`,
			h.ID, h.Platform, h.Topic, h.Heat, msOf(h.CollectedAt),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListHotspots(ctx context.Context) ([]Hotspot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, topic, heat, collected_ms FROM hotspots ORDER BY heat DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Hotspot
	for rows.Next() {
		var h Hotspot
		var collected int64
		if err := rows.Scan(&h.ID, &h.Platform, &h.Topic, &h.Heat, &collected); err != nil {
			return nil, err
		}
		h.CollectedAt = timeOf(collected)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ---- content assets ----

func (s *sqliteStore) PutContentAsset(ctx context.Context, a ContentAsset) (ContentAsset, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	var images any
	if len(a.Images) > 0 {
		b, err := json.Marshal(a.Images)
		if err != nil {
			return ContentAsset{}, err
		}
		images = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_assets(id, hotspot_id, type, tone, title, body, images, video_url, created_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET hotspot_id=excluded.hotspot_id, type=excluded.type,
		 tone=excluded.tone, title=excluded.title, body=excluded.body, images=excluded.images,
		 video_url=excluded.video_url`,
		a.ID, nullStr(a.HotspotID), a.Type, nullStr(a.Tone), a.Title, a.Body, images, nullStr(a.VideoURL), msOf(a.CreatedAt),
	)
	return a, err
}

func (s *sqliteStore) GetContentAsset(ctx context.Context, id string) (ContentAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hotspot_id, type, tone, title, body, images, video_url, created_ms
		 FROM content_assets WHERE id = ?`, id)
	return scanAsset(row)
}

func (s *sqliteStore) ListContentAssets(ctx context.Context) ([]ContentAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hotspot_id, type, tone, title, body, images, video_url, created_ms
		 FROM content_assets ORDER BY created_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAsset(r rowScanner) (ContentAsset, error) {
	var a ContentAsset
	var hotspot, tone, images, video sql.NullString
	var created int64
	err := r.Scan(&a.ID, &hotspot, &a.Type, &tone, &a.Title, &a.Body, &images, &video, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentAsset{}, ErrNotFound
	}
	if err != nil {
		return ContentAsset{}, err
	}
	a.HotspotID = hotspot.String
	a.Tone = tone.String
	a.VideoURL = video.String
	a.CreatedAt = timeOf(created)
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &a.Images); err != nil {
			return ContentAsset{}, fmt.Errorf("decode images for asset %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// ---- tasks ----

const taskColumns = `id, account_id, content_type, asset_id, publish_ms, status,
	created_ms, started_ms, completed_ms, error_message, retry_count, remote_id`

func (s *sqliteStore) CreateTask(ctx context.Context, t PublishTask) (PublishTask, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = TaskScheduled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publish_tasks(`+taskColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.AccountID, t.ContentType, nullStr(t.ContentAssetID), msOf(t.PublishAt), string(t.Status),
		msOf(t.CreatedAt), nullMS(t.StartedAt), nullMS(t.CompletedAt), nullStr(t.ErrorMessage),
		t.RetryCount, nullStr(t.RemoteID),
	)
	return t, err
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (PublishTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM publish_tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s *sqliteStore) ListTasks(ctx context.Context) ([]PublishTask, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM publish_tasks ORDER BY created_ms`)
}

func (s *sqliteStore) ListDueTasks(ctx context.Context, now time.Time) ([]PublishTask, error) {
	// publish_ms <= 0 means an unusable timestamp; such rows never fire.
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM publish_tasks
		 WHERE status IN ('scheduled','retrying') AND publish_ms > 0 AND publish_ms <= ?
		 ORDER BY publish_ms`, now.UnixMilli())
}

func (s *sqliteStore) queryTasks(ctx context.Context, q string, args ...any) ([]PublishTask, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PublishTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(r rowScanner) (PublishTask, error) {
	var t PublishTask
	var assetID, errMsg, remoteID sql.NullString
	var status string
	var publishMS, createdMS int64
	var startedMS, completedMS sql.NullInt64
	err := r.Scan(&t.ID, &t.AccountID, &t.ContentType, &assetID, &publishMS, &status,
		&createdMS, &startedMS, &completedMS, &errMsg, &t.RetryCount, &remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return PublishTask{}, ErrNotFound
	}
	if err != nil {
		return PublishTask{}, err
	}
	t.ContentAssetID = assetID.String
	t.PublishAt = timeOf(publishMS)
	t.Status = TaskStatus(status)
	t.CreatedAt = timeOf(createdMS)
	if startedMS.Valid {
		at := timeOf(startedMS.Int64)
		t.StartedAt = &at
	}
	if completedMS.Valid {
		at := timeOf(completedMS.Int64)
		t.CompletedAt = &at
	}
	t.ErrorMessage = errMsg.String
	t.RemoteID = remoteID.String
	return t, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, id string, u TaskUpdate) (PublishTask, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.PublishAt != nil {
		sets = append(sets, "publish_ms = ?")
		args = append(args, msOf(*u.PublishAt))
	}
	if u.StartedAt != nil {
		sets = append(sets, "started_ms = ?")
		args = append(args, msOf(*u.StartedAt))
	}
	if u.ClearCompletedAt {
		sets = append(sets, "completed_ms = NULL")
	} else if u.CompletedAt != nil {
		sets = append(sets, "completed_ms = ?")
		args = append(args, msOf(*u.CompletedAt))
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullStr(*u.ErrorMessage))
	}
	if u.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *u.RetryCount)
	}
	if u.RemoteID != nil {
		sets = append(sets, "remote_id = ?")
		args = append(args, nullStr(*u.RemoteID))
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			`UPDATE publish_tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return PublishTask{}, err
		}
		if err := affectedOrNotFound(res); err != nil {
			return PublishTask{}, err
		}
	}
	return s.GetTask(ctx, id)
}

// ---- logs & metrics ----

func (s *sqliteStore) AppendTaskLog(ctx context.Context, l TaskLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_logs(id, task_id, level, message, created_ms) VALUES(?,?,?,?,?)`,
		l.ID, l.TaskID, string(l.Level), l.Message, msOf(l.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ListTaskLogs(ctx context.Context, limit int) ([]TaskLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, level, message, created_ms FROM task_logs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskLog
	for rows.Next() {
		var l TaskLog
		var level string
		var created int64
		if err := rows.Scan(&l.ID, &l.TaskID, &level, &l.Message, &created); err != nil {
			return nil, err
		}
		l.Level = LogLevel(level)
		l.CreatedAt = timeOf(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendPublishMetric(ctx context.Context, m PublishMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publish_metrics(id, task_id, platform, success, error_code, latency_ms, created_ms)
		 VALUES(?,?,?,?,?,?,?)`,
		m.ID, m.TaskID, m.Platform, boolInt(m.Success), nullStr(m.ErrorCode), m.LatencyMS, msOf(m.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ListPublishMetrics(ctx context.Context, limit int) ([]PublishMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, platform, success, error_code, latency_ms, created_ms
		 FROM publish_metrics ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PublishMetric
	for rows.Next() {
		var m PublishMetric
		var success int
		var code sql.NullString
		var created int64
		if err := rows.Scan(&m.ID, &m.TaskID, &m.Platform, &success, &code, &m.LatencyMS, &created); err != nil {
			return nil, err
		}
		m.Success = success != 0
		m.ErrorCode = code.String
		m.CreatedAt = timeOf(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TrimLogs(ctx context.Context, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_logs WHERE seq NOT IN (SELECT seq FROM task_logs ORDER BY seq DESC LIMIT ?)`, keep)
	return err
}

func (s *sqliteStore) TrimMetrics(ctx context.Context, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM publish_metrics WHERE seq NOT IN (SELECT seq FROM publish_metrics ORDER BY seq DESC LIMIT ?)`, keep)
	return err
}
