package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

// Get loads the full result stored for url.
func (db *DB) Get(ctx context.Context, url string) (domain.AnalysisResult, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `SELECT evidence FROM analyses WHERE url = $1`, url).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisResult{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("get analysis: %w", err)
	}
	var res domain.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode analysis %s: %w", url, err)
	}
	return res, nil
}

// Put upserts by url; the last write wins.
func (db *DB) Put(ctx context.Context, res domain.AnalysisResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO analyses (url, verdict, confidence, risk_score, risk_level, evidence, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			verdict = EXCLUDED.verdict,
			confidence = EXCLUDED.confidence,
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			evidence = EXCLUDED.evidence,
			analyzed_at = EXCLUDED.analyzed_at,
			updated_at = now()
	`, res.URL, string(res.Verdict), res.Confidence, res.RiskScore, string(res.RiskLevel), raw, res.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("put analysis: %w", err)
	}
	return nil
}

// List returns summaries ordered by last update, newest first.
func (db *DB) List(ctx context.Context, limit int) ([]domain.AnalysisSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT url, verdict, confidence, analyzed_at
		FROM analyses
		ORDER BY updated_at DESC, url
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := []domain.AnalysisSummary{}
	for rows.Next() {
		var (
			s       domain.AnalysisSummary
			verdict string
		)
		if err := rows.Scan(&s.URL, &verdict, &s.Confidence, &s.AnalyzedAt); err != nil {
			return nil, err
		}
		s.Verdict = domain.Verdict(verdict)
		out = append(out, s)
	}
	return out, rows.Err()
}
