package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

func TestUploadsAndMovements(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "fran@example.com", "hash", model.RoleManager, "")
	upload, err := CreateUpload(ctx, database, "april.xlsx", &user.ID)
	require.NoError(t, err)
	assert.Equal(t, "april.xlsx", upload.FileName)
	assert.Equal(t, "fran@example.com", upload.UploaderEmail)
	assert.Zero(t, upload.ItemCount)

	r := newRecord("M1", model.StatusWarehouse, 5)
	r.UploadID = &upload.ID
	require.NoError(t, InsertStock(ctx, database, r))

	uploads, err := ListUploads(ctx, database)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, 1, uploads[0].ItemCount)

	target := newRecord("M1", model.StatusShowcase, 2)
	require.NoError(t, InsertStock(ctx, database, target))

	m := &model.Movement{
		Barcode:    "M1",
		SourceID:   r.ID,
		TargetID:   &target.ID,
		FromStatus: model.StatusWarehouse,
		ToStatus:   model.StatusShowcase,
		Quantity:   2,
		MovedAt:    time.Now(),
		MovedBy:    &user.ID,
	}
	require.NoError(t, RecordMovement(ctx, database, m))
	assert.NotZero(t, m.ID)

	for _, id := range []int64{r.ID, target.ID} {
		history, err := ListMovements(ctx, database, id)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, model.StatusShowcase, history[0].ToStatus)
	}
}
