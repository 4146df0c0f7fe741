package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS is the PostgreSQL full-text fallback over saved responses. It
// searches the header text plus the aggregated answer text of the items.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole API is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.CompanyID != "" {
		where += " AND company_id = $2"
		args = append(args, q.CompanyID)
	}

	query := fmt.Sprintf(`
		SELECT id, title, company_id,
			ts_headline('english',
				coalesce(notes, '') || ' ' || coalesce(answer_text, ''),
				plainto_tsquery('english', $1),
				'MaxFragments=1,MaxWords=30') AS snippet,
			COUNT(*) OVER () AS total
		FROM response_search
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ResponseID, &r.Title, &r.CompanyID, &r.Snippet, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
