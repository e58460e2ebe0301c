package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"safetyreports/internal/types"
)

func TestSubmissionRepository_Find_AllLocations(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubmissionRepository(db)

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	submitted := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"sub_1", "inspection", "Depot A", "driver1", submitted,
			[]byte(`{"checklist":{"brakes":"Fail"},"equipmentId":"FL-7"}`), true},
	})

	var gotSQL string
	var gotArgs []any
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			gotSQL = args.String(1)
			gotArgs = args.Get(2).([]any)
		}).
		Return(rows, nil)

	subs, err := repo.Find(context.Background(), types.SubmissionQuery{
		FormType: types.FormTypeInspection,
		Start:    time.Date(2026, 3, 1, 0, 0, 0, 0, chicago),
		End:      time.Date(2026, 3, 7, 23, 0, 0, 0, chicago),
		TZ:       chicago,
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)

	assert.Equal(t, "sub_1", subs[0].ID)
	assert.Equal(t, "Depot A", subs[0].Location)
	assert.Equal(t, types.ResultFail, subs[0].Inspection().Checklist["brakes"])
	assert.Equal(t, "FL-7", subs[0].Inspection().AssetID)

	assert.NotContains(t, gotSQL, "location =")
	assert.Contains(t, gotSQL, "form_type = $1")
	assert.Contains(t, gotSQL, "AT TIME ZONE $2")
	require.Len(t, gotArgs, 5)
	assert.Equal(t, "inspection", gotArgs[0])
	assert.Equal(t, "America/Chicago", gotArgs[1])
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), gotArgs[2])
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), gotArgs[4])
}

func TestSubmissionRepository_Find_LocationFilter(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubmissionRepository(db)

	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "location = $2")
	}), mock.MatchedBy(func(args []any) bool {
		return len(args) == 6 && args[1] == "Depot B" && args[2] == "UTC"
	})).Return(newMockRows(nil), nil)

	loc := "Depot B"
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	subs, err := repo.Find(context.Background(), types.SubmissionQuery{
		FormType: types.FormTypeInspection,
		Location: &loc,
		Start:    day,
		End:      day,
	})
	require.NoError(t, err)
	assert.Empty(t, subs)
	db.AssertExpectations(t)
}

func TestSubmissionRepository_Find_BadPayload(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubmissionRepository(db)

	rows := newMockRows([][]any{
		{"sub_bad", "inspection", "Depot A", "driver1", time.Now(), []byte(`{not json`), false},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.Find(context.Background(), types.SubmissionQuery{FormType: types.FormTypeInspection})
	assertAppErrorCode(t, err, types.ErrCodeInternalDB)
}

func TestSubmissionRepository_Find_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubmissionRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := repo.Find(context.Background(), types.SubmissionQuery{FormType: types.FormTypeInspection})
	assertAppErrorCode(t, err, types.ErrCodeInternalDB)
}

func TestSubmissionRepository_Insert(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubmissionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 7 && args[0] == "sub_1" && string(args[5].([]byte)) == `{"safeToOperate":"Yes"}`
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Insert(context.Background(), &types.Submission{
		ID:          "sub_1",
		FormType:    types.FormTypeInspection,
		Location:    "Depot A",
		SubmittedAt: time.Now(),
		Payload:     map[string]any{"safeToOperate": "Yes"},
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}
