package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "registry_orgs", []string{"ein", "name"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"registry_orgs"}, []string{"ein", "name"}).WillReturnResult(2)

	rows := [][]any{{"530196605", "AMERICAN NATIONAL RED CROSS"}, {"131624100", "UNITED WAY"}}
	n, err := CopyFrom(context.Background(), mock, "registry_orgs", []string{"ein", "name"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"registry_orgs"}, []string{"ein"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "registry_orgs", []string{"ein"}, [][]any{{"530196605"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO registry_orgs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "registry_orgs"`).WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCopyFrom(pgx.Identifier{"registry_orgs"}, []string{"ein"}).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := ReplaceTable(context.Background(), mock, "registry_orgs", []string{"ein"}, [][]any{{"530196605"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "registry_orgs"`).WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCopyFrom(pgx.Identifier{"registry_orgs"}, []string{"ein"}).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = ReplaceTable(context.Background(), mock, "registry_orgs", []string{"ein"}, [][]any{{"530196605"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("conn refused"))

	_, err = ReplaceTable(context.Background(), mock, "registry_orgs", []string{"ein"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}
