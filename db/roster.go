package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/chat-arena/game"
)

// Roster implements game.RosterStore over Postgres. All writes are immediate
// (write-through); the coordinator never buffers roster state.
type Roster struct{ DB *sql.DB }

var _ game.RosterStore = (*Roster)(nil)

const participantCols = `id, external_id, username, avatar_url, status, wins, losses, total_games, avg_reaction_ms, joined_at`

func scanParticipant(row interface{ Scan(...any) error }) (*game.Participant, error) {
	var p game.Participant
	var status string
	if err := row.Scan(&p.ID, &p.ExternalID, &p.Username, &p.AvatarURL, &status,
		&p.Wins, &p.Losses, &p.TotalGames, &p.AvgReactionMs, &p.JoinedAt); err != nil {
		return nil, err
	}
	p.Status = game.Status(status)
	return &p, nil
}

func (r *Roster) GetByExternalID(ctx context.Context, externalID string) (*game.Participant, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE external_id=$1`, externalID)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant by external id: %w", err)
	}
	return p, nil
}

func (r *Roster) GetByUsername(ctx context.Context, username string) (*game.Participant, error) {
	// Usernames may collide; return the earliest joiner for display lookups.
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE LOWER(username)=LOWER($1) ORDER BY joined_at ASC LIMIT 1`, username)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant by username: %w", err)
	}
	return p, nil
}

func (r *Roster) Create(ctx context.Context, p *game.Participant) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO participants (id, external_id, username, avatar_url, status, joined_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (external_id) DO UPDATE SET username=EXCLUDED.username, avatar_url=EXCLUDED.avatar_url, updated_at=NOW()`,
		p.ID, p.ExternalID, p.Username, p.AvatarURL, string(p.Status), p.JoinedAt)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (r *Roster) UpdateStatus(ctx context.Context, id string, status game.Status) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE participants SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update participant status: no participant %s", id)
	}
	return nil
}

func (r *Roster) ListActive(ctx context.Context) ([]game.Participant, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE status=$1 ORDER BY joined_at ASC, id ASC`,
		string(game.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active participants: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]game.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// RecordDuelResult updates both combatants' aggregates in one transaction and
// returns their status to active. The winner's running average reaction time
// is weighted over their prior win count.
func (r *Roster) RecordDuelResult(ctx context.Context, winnerID, loserID string, reactionMs float64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record duel result: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET
			wins = wins + 1,
			total_games = total_games + 1,
			avg_reaction_ms = (avg_reaction_ms * wins + $1) / (wins + 1),
			status = $2,
			updated_at = NOW()
		 WHERE id = $3`, reactionMs, string(game.StatusActive), winnerID); err != nil {
		return fmt.Errorf("record duel winner: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET
			losses = losses + 1,
			total_games = total_games + 1,
			status = $1,
			updated_at = NOW()
		 WHERE id = $2`, string(game.StatusActive), loserID); err != nil {
		return fmt.Errorf("record duel loser: %w", err)
	}
	return tx.Commit()
}

func (r *Roster) ResetAll(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE participants SET status=$1, updated_at=NOW() WHERE status <> $1`, string(game.StatusActive))
	if err != nil {
		return fmt.Errorf("reset roster: %w", err)
	}
	return nil
}

func (r *Roster) DeleteAll(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM participants`)
	if err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	return nil
}
