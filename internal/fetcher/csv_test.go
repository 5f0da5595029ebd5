package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_HeaderAndTrim(t *testing.T) {
	input := "campaign_id, date ,spend\n c1 ,2026-03-01, 10.5\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign_id", "date", "spend"}, <-headerCh)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"c1", "2026-03-01", "10.5"}, rows[0])
}

func TestStreamCSV_DelimiterAndComment(t *testing.T) {
	input := "# exported 2026-03-10\ncampaign_id;spend\nc1;10\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
		Comment:   '#',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"c1", "10"}, rows[1])
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := "campaign_name\nSpring \"Sale\" 2026\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{LazyQuotes: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestStreamCSV_MalformedQuote(t *testing.T) {
	input := "campaign_name\n\"unterminated\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamCSV_StripsBOM(t *testing.T) {
	input := "\ufeffcampaign_id,spend\nc1,1\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign_id", "spend"}, <-headerCh)
	assert.Equal(t, [][]string{{"c1", "1"}}, rows)
}
