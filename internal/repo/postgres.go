package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"litminer/internal/services/extract"
)

//go:embed schema.sql
var schema string

// replaceLock serializes ReplaceAll across connections and processes.
const replaceLock int64 = 0x6c69746d696e6572

// latestRun scopes record queries to the newest run.
const latestRun = `run_id = (SELECT run_id FROM runs ORDER BY created_at DESC LIMIT 1)`

// recordTables are cleared on every replace, children before runs.
var recordTables = []string{"articles", "entities", "relations", "statistics", "drugs", "diseases", "co_biomarkers", "runs"}

// PostgresRepository stores the latest run in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to databaseURL and checks the connection.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() { r.pool.Close() }

func (r *PostgresRepository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// ReplaceAll swaps the stored run for snap in one transaction. On any error
// the transaction rolls back and the previous run stays visible.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, snap Snapshot) error {
	runID, err := uuid.Parse(snap.Run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", snap.Run.ID, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Waiting here makes the deletes below see every row a concurrent
	// replace committed.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, replaceLock); err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}

	for _, table := range recordTables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO runs (run_id, query, created_at) VALUES ($1, $2, $3)`,
		runID, snap.Run.Query, snap.Run.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	copies := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"articles", []string{"run_id", "position", "pmid", "title", "abstract", "journal", "year", "month", "authors", "url", "source", "relevance_score"},
			rowsOf(snap.Articles, func(i int, a Article) []any {
				authors := a.Authors
				if authors == nil {
					authors = []string{}
				}
				return []any{runID, i, a.PMID, a.Title, a.Abstract, a.Journal, a.Year, a.Month, authors, a.URL, a.Source, a.RelevanceScore}
			})},
		{"entities", []string{"run_id", "position", "name", "type", "mention_count"},
			rowsOf(snap.Entities, func(i int, e extract.Entity) []any {
				return []any{runID, i, e.Name, e.Type, e.MentionCount}
			})},
		{"relations", []string{"run_id", "position", "subject", "predicate", "object", "confidence"},
			rowsOf(snap.Relations, func(i int, rel extract.Relation) []any {
				return []any{runID, i, rel.Subject, rel.Predicate, rel.Object, rel.Confidence}
			})},
		{"statistics", []string{"run_id", "position", "type", "value", "unit", "context"},
			rowsOf(snap.Statistics, func(i int, s extract.StatisticalFinding) []any {
				return []any{runID, i, s.Type, s.Value, s.Unit, s.Context}
			})},
		{"drugs", []string{"run_id", "position", "name", "type", "mechanism", "efficacy", "approval_status", "url"},
			rowsOf(snap.Drugs, func(i int, d extract.Drug) []any {
				return []any{runID, i, d.Name, d.Type, d.Mechanism, d.Efficacy, d.ApprovalStatus, d.URL}
			})},
		{"diseases", []string{"run_id", "position", "disease", "relationship", "strength", "evidence", "notes"},
			rowsOf(snap.Diseases, func(i int, d extract.DiseaseAssociation) []any {
				return []any{runID, i, d.Disease, d.Relationship, d.Strength, d.Evidence, d.Notes}
			})},
		{"co_biomarkers", []string{"run_id", "position", "name", "type", "effect", "clinical_implication", "frequency_of_cooccurrence"},
			rowsOf(snap.CoBiomarkers, func(i int, c extract.CoBiomarker) []any {
				return []any{runID, i, c.Name, c.Type, c.Effect, c.ClinicalImplication, c.FrequencyOfCooccurrence}
			})},
	}
	for _, c := range copies {
		if len(c.rows) == 0 {
			continue
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{c.table}, c.columns, pgx.CopyFromRows(c.rows)); err != nil {
			return fmt.Errorf("failed to insert %s: %w", c.table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	log.Info().
		Str("run_id", snap.Run.ID).
		Int("articles", len(snap.Articles)).
		Int("entities", len(snap.Entities)).
		Int("relations", len(snap.Relations)).
		Msg("Replaced stored run")
	return nil
}

func rowsOf[T any](items []T, row func(int, T) []any) [][]any {
	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = row(i, item)
	}
	return rows
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// read runs fn in a read-only repeatable read transaction so that every query
// in it sees the same committed run.
func (r *PostgresRepository) read(ctx context.Context, fn func(q querier) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) LatestRun(ctx context.Context) (Run, error) {
	return latest(ctx, r.pool)
}

// LoadRun reads the run and all of its records in one transaction.
func (r *PostgresRepository) LoadRun(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.read(ctx, func(q querier) error {
		var err error
		if snap.Run, err = latest(ctx, q); err != nil {
			return err
		}
		if snap.Articles, err = articles(ctx, q); err != nil {
			return err
		}
		if snap.Entities, err = entities(ctx, q); err != nil {
			return err
		}
		if snap.Relations, err = relations(ctx, q); err != nil {
			return err
		}
		if snap.Statistics, err = statistics(ctx, q); err != nil {
			return err
		}
		if snap.Drugs, err = drugs(ctx, q); err != nil {
			return err
		}
		if snap.Diseases, err = diseases(ctx, q); err != nil {
			return err
		}
		snap.CoBiomarkers, err = coBiomarkers(ctx, q)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *PostgresRepository) ListArticles(ctx context.Context) ([]Article, error) {
	return articles(ctx, r.pool)
}

func (r *PostgresRepository) ListEntities(ctx context.Context) ([]EntityWithRelations, error) {
	var out []EntityWithRelations
	err := r.read(ctx, func(q querier) error {
		ents, err := entities(ctx, q)
		if err != nil {
			return err
		}
		rels, err := relations(ctx, q)
		if err != nil {
			return err
		}
		out = withRelations(ents, rels)
		return nil
	})
	return out, err
}

func (r *PostgresRepository) ListStatistics(ctx context.Context) ([]extract.StatisticalFinding, error) {
	return statistics(ctx, r.pool)
}

func (r *PostgresRepository) ListDrugs(ctx context.Context) ([]extract.Drug, error) {
	return drugs(ctx, r.pool)
}

func (r *PostgresRepository) ListDiseases(ctx context.Context) ([]extract.DiseaseAssociation, error) {
	return diseases(ctx, r.pool)
}

func (r *PostgresRepository) ListCoBiomarkers(ctx context.Context) ([]extract.CoBiomarker, error) {
	return coBiomarkers(ctx, r.pool)
}

func latest(ctx context.Context, q querier) (Run, error) {
	var run Run
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT run_id, query, created_at FROM runs ORDER BY created_at DESC LIMIT 1`).
		Scan(&id, &run.Query, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run: %w", err)
	}
	run.ID = id.String()
	return run, nil
}

func articles(ctx context.Context, q querier) ([]Article, error) {
	return list(ctx, q, `
		SELECT pmid, title, abstract, journal, year, month, authors, url, source, relevance_score
		FROM articles WHERE `+latestRun+` ORDER BY relevance_score DESC, position`,
		func(row pgx.Rows) (Article, error) {
			var a Article
			err := row.Scan(&a.PMID, &a.Title, &a.Abstract, &a.Journal, &a.Year, &a.Month, &a.Authors, &a.URL, &a.Source, &a.RelevanceScore)
			return a, err
		})
}

func entities(ctx context.Context, q querier) ([]extract.Entity, error) {
	return list(ctx, q, `SELECT name, type, mention_count FROM entities WHERE `+latestRun+` ORDER BY position`,
		func(row pgx.Rows) (extract.Entity, error) {
			var e extract.Entity
			err := row.Scan(&e.Name, &e.Type, &e.MentionCount)
			return e, err
		})
}

func relations(ctx context.Context, q querier) ([]extract.Relation, error) {
	return list(ctx, q, `SELECT subject, predicate, object, confidence FROM relations WHERE `+latestRun+` ORDER BY position`,
		func(row pgx.Rows) (extract.Relation, error) {
			var rel extract.Relation
			err := row.Scan(&rel.Subject, &rel.Predicate, &rel.Object, &rel.Confidence)
			return rel, err
		})
}

func statistics(ctx context.Context, q querier) ([]extract.StatisticalFinding, error) {
	return list(ctx, q, `SELECT type, value, unit, context FROM statistics WHERE `+latestRun+` ORDER BY position`,
		func(row pgx.Rows) (extract.StatisticalFinding, error) {
			var s extract.StatisticalFinding
			err := row.Scan(&s.Type, &s.Value, &s.Unit, &s.Context)
			return s, err
		})
}

func drugs(ctx context.Context, q querier) ([]extract.Drug, error) {
	return list(ctx, q, `SELECT name, type, mechanism, efficacy, approval_status, url FROM drugs WHERE `+latestRun+` ORDER BY position`,
		func(row pgx.Rows) (extract.Drug, error) {
			var d extract.Drug
			err := row.Scan(&d.Name, &d.Type, &d.Mechanism, &d.Efficacy, &d.ApprovalStatus, &d.URL)
			return d, err
		})
}

func diseases(ctx context.Context, q querier) ([]extract.DiseaseAssociation, error) {
	return list(ctx, q, `SELECT disease, relationship, strength, evidence, notes FROM diseases WHERE `+latestRun+` ORDER BY position`,
		func(row pgx.Rows) (extract.DiseaseAssociation, error) {
			var d extract.DiseaseAssociation
			err := row.Scan(&d.Disease, &d.Relationship, &d.Strength, &d.Evidence, &d.Notes)
			return d, err
		})
}

func coBiomarkers(ctx context.Context, q querier) ([]extract.CoBiomarker, error) {
	return list(ctx, q, `SELECT name, type, effect, clinical_implication, frequency_of_cooccurrence FROM co_biomarkers WHERE `+latestRun+` ORDER BY position`,
		func(row pgx.Rows) (extract.CoBiomarker, error) {
			var c extract.CoBiomarker
			err := row.Scan(&c.Name, &c.Type, &c.Effect, &c.ClinicalImplication, &c.FrequencyOfCooccurrence)
			return c, err
		})
}

func list[T any](ctx context.Context, q querier, query string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows failed: %w", err)
	}
	return out, nil
}
