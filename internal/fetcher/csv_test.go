package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainCSV(t *testing.T, input string) ([]Row, error) {
	t.Helper()
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	var rows []Row
	for row := range rowCh {
		rows = append(rows, row)
	}
	return rows, <-errCh
}

func TestStreamCSV_HeaderLookup(t *testing.T) {
	input := "\ufeffEIN,NAME,STATE\n530196605,AMERICAN NATIONAL RED CROSS, DC \n131624100,UNITED WAY,VA\n"

	rows, err := drainCSV(t, input)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "530196605", rows[0].Get("ein"))
	assert.Equal(t, "AMERICAN NATIONAL RED CROSS", rows[0].Get("NAME"))
	assert.Equal(t, "DC", rows[0].Get("State"))
	assert.Empty(t, rows[0].Get("NTEE_CD"))
	assert.Equal(t, "VA", rows[1].Get("STATE"))
}

func TestStreamCSV_ShortRow(t *testing.T) {
	rows, err := drainCSV(t, "EIN,NAME,STATE\n530196605\n")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Get("STATE"))
}

func TestStreamCSV_Empty(t *testing.T) {
	rows, err := drainCSV(t, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_MalformedQuote(t *testing.T) {
	_, err := drainCSV(t, "EIN,NAME\n1,\"unterminated\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sb strings.Builder
	sb.WriteString("EIN\n")
	for range 2000 {
		sb.WriteString("530196605\n")
	}

	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{Buffer: 1})
	<-rowCh
	cancel()
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
