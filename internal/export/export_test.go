package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"finqueue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleEntries() []models.QueueEntry {
	errMsg := "HTTP 503"
	attempt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return []models.QueueEntry{
		{
			ID:        1,
			Type:      models.TypeSocialPost,
			Payload:   []byte(`{"checkin_id":"c1","location_slug":"edgewood","content":"hello"}`),
			Status:    models.EntryStatusPending,
			CreatedAt: time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
		},
		{
			ID:            2,
			Type:          models.TypeDJTip,
			Payload:       []byte(`{"from_checkin_id":"c1","location_slug":"edgewood","amount":5}`),
			Status:        models.EntryStatusFailed,
			Retries:       3,
			LastError:     &errMsg,
			CreatedAt:     time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC),
			LastAttemptAt: &attempt,
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleEntries()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, models.TypeSocialPost, rows[1][1])
	assert.Equal(t, "failed", rows[2][2])
	assert.Equal(t, "3", rows[2][3])
	assert.Equal(t, "HTTP 503", rows[2][4])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.xlsx")
	require.NoError(t, WriteFile(path, sampleEntries()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}
