package harvest

import (
	"context"
	"database/sql"
	"time"

	"threadharvest/lib/scrapers/reddit"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Store persists completed runs so results survive past the export
// files and can be compared across runs.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

func (s Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

type Run struct {
	Id         string
	CreatedAt  time.Time
	TimeFilter reddit.TimeFilter
	Threads    []reddit.ThreadRecord
}

func (s Store) SaveRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, time_filter) VALUES (?, ?, ?)`,
		run.Id, run.CreatedAt.Unix(), string(run.TimeFilter),
	)
	if err != nil {
		return err
	}

	for _, thread := range run.Threads {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO threads
				(run_id, id, subreddit, title, score, num_comments, created_at, permalink, selftext)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.Id, thread.Id, thread.Subreddit, thread.Title, thread.Score,
			thread.NumComments, thread.CreatedAt.Unix(), thread.Permalink, thread.Selftext,
		)
		if err != nil {
			return err
		}

		for ord, comment := range thread.TopComments {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO comments
					(run_id, thread_id, ord, comment_id, author, body, score, is_op)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.Id, thread.Id, ord, comment.Id, comment.Author,
				comment.Body, comment.Score, comment.IsOP,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	var createdAt int64
	var filter string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, time_filter FROM runs WHERE id = ?`, id,
	).Scan(&run.Id, &createdAt, &filter)
	if err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.TimeFilter = reddit.TimeFilter(filter)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subreddit, title, score, num_comments, created_at, permalink, selftext
		FROM threads WHERE run_id = ? ORDER BY rowid`, id,
	)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var thread reddit.ThreadRecord
		var threadCreatedAt int64
		err = rows.Scan(
			&thread.Id, &thread.Subreddit, &thread.Title, &thread.Score,
			&thread.NumComments, &threadCreatedAt, &thread.Permalink, &thread.Selftext,
		)
		if err != nil {
			return Run{}, err
		}
		thread.CreatedAt = time.Unix(threadCreatedAt, 0).UTC()
		thread.TopComments = []reddit.CommentRecord{}
		run.Threads = append(run.Threads, thread)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	for i := range run.Threads {
		comments, err := s.getComments(ctx, id, run.Threads[i].Id)
		if err != nil {
			return Run{}, err
		}
		run.Threads[i].TopComments = comments
	}
	return run, nil
}

func (s Store) getComments(ctx context.Context, runId, threadId string) ([]reddit.CommentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT comment_id, author, body, score, is_op
		FROM comments WHERE run_id = ? AND thread_id = ? ORDER BY ord`,
		runId, threadId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []reddit.CommentRecord{}
	for rows.Next() {
		var c reddit.CommentRecord
		if err := rows.Scan(&c.Id, &c.Author, &c.Body, &c.Score, &c.IsOP); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
