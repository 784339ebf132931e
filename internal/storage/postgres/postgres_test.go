package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/clanforge/headhunter/internal/recruit"
)

func TestRosterStoreLoadScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRosterStore(mock, "recruits")
	require.NoError(t, err)

	found := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT tag, name, trophies").
		WillReturnRows(pgxmock.NewRows([]string{
			"tag", "name", "trophies", "donations", "cards_won",
			"war_score", "raw_score", "perf_score", "found_date", "invited",
		}).
			AddRow("#A", "Alpha", 5000, 100, 20, 505, 15150, 100, found, false).
			AddRow("#B", "Beta", 4200, 50, 10, 0, 4225, 28, found, true))

	rows, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, recruit.Candidate{
		Tag: "#A", Name: "Alpha", Trophies: 5000, Donations: 100, CardsWon: 20,
		WarScore: 505, RawScore: 15150, PerfScore: 100, FoundDate: found,
	}, rows[0])
	require.True(t, rows[1].Invited)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterStoreReplaceRunsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRosterStore(mock, "recruits")
	require.NoError(t, err)

	found := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c := recruit.Candidate{
		Tag: "#A", Name: "Alpha", Trophies: 5000, Donations: 100, CardsWon: 20,
		WarScore: 505, RawScore: 15150, PerfScore: 100, FoundDate: found,
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recruits").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO recruits").
		WithArgs(c.Tag, c.Name, c.Trophies, c.Donations, c.CardsWon,
			c.WarScore, c.RawScore, c.PerfScore, c.FoundDate, c.Invited).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Replace(context.Background(), []recruit.Candidate{c}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterStoreReplaceRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRosterStore(mock, "recruits")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recruits").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO recruits").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err = store.Replace(context.Background(), []recruit.Candidate{{Tag: "#A"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterStoreRejectsInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRosterStore(mock, "recruits; DROP TABLE recruits")
	require.Error(t, err)
}

func TestPropertyStoreSetUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPropertyStore(mock, "properties")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO properties").
		WithArgs("hh_blacklist", `{"#A":{"e":1,"s":2}}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Set(context.Background(), "hh_blacklist", `{"#A":{"e":1,"s":2}}`))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyStoreGetMissReturnsEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPropertyStore(mock, "properties")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM properties").
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyStoreGetHit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPropertyStore(mock, "properties")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM properties").
		WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("v"))

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyStoreDelete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPropertyStore(mock, "properties")
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM properties").
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), "k"))
	require.NoError(t, mock.ExpectationsWereMet())
}
