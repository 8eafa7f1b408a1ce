package journal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okorotkov/fleetsync/internal/domain"
)

func TestJournalAppendAndReplay(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(CycleRecord{
		Login:     111,
		Server:    "Broker-Live",
		Status:    domain.StatusSuccess,
		Attempts:  1,
		Published: true,
		Rows:      42,
	}))
	require.NoError(t, j.Append(CycleRecord{
		Login:    222,
		Server:   "Broker-Live",
		Status:   domain.StatusInvalidLogins,
		Attempts: 2,
		Error:    "terminal login failed: code=-6 invalid account",
	}))

	records, err := j.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, int64(111), records[0].Login)
	require.True(t, records[0].Published)
	require.NotEmpty(t, records[0].ID, "ID assigned on append")
	require.False(t, records[0].Time.IsZero(), "timestamp assigned on append")

	require.Equal(t, domain.StatusInvalidLogins, records[1].Status)
	require.False(t, records[1].Published)
}
