package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/budget-engine/api"
	"github.com/pennywise/budget-engine/backup"
	"github.com/pennywise/budget-engine/budget"
	"github.com/pennywise/budget-engine/ledger"
	"github.com/pennywise/budget-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (http.Handler, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	h := api.NewHandler(store, budget.New(store, log), backup.New(store, log), log)
	return api.NewRouter(h), store
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedBucket(t *testing.T, store *sqlite.Store, name, monthly string) int64 {
	t.Helper()
	b := ledger.Bucket{Name: name, Balance: decimal.Zero}
	if monthly != "" {
		m, _ := decimal.NewFromString(monthly)
		b.MonthlyAmount = &m
	}
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		return tx.CreateBucket(context.Background(), &b)
	})
	require.NoError(t, err)
	return b.ID
}

func seedIncome(t *testing.T, store *sqlite.Store, amount string) int64 {
	t.Helper()
	a, _ := decimal.NewFromString(amount)
	txn := ledger.Transaction{
		Amount:   a,
		Category: ledger.IncomeCategoryName,
		Type:     ledger.TxTypeIncome,
		Hash:     "income-" + t.Name(),
	}
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		return tx.CreateTransaction(context.Background(), &txn)
	})
	require.NoError(t, err)
	return txn.ID
}

func strp(s string) *string { return &s }

// =============================================================================
// BUCKETS
// =============================================================================

func TestListBuckets(t *testing.T) {
	router, store := newTestServer(t)
	seedBucket(t, store, "Food", "3000")

	rec := do(t, router, http.MethodGet, "/api/buckets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dtos := decode[[]api.BucketDTO](t, rec)
	require.Len(t, dtos, 1)
	assert.Equal(t, "Food", dtos[0].Name)
	assert.Equal(t, "0.00", dtos[0].Balance)
	require.NotNil(t, dtos[0].MonthlyAmount)
	assert.Equal(t, "3000.00", *dtos[0].MonthlyAmount)
}

func TestGetBucket_NotFound(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/buckets/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBucket_BadID(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/buckets/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetBucketTarget(t *testing.T) {
	router, store := newTestServer(t)
	id := seedBucket(t, store, "Food", "")

	monthly := "1500"
	rec := do(t, router, http.MethodPut, "/api/buckets/"+strconv.FormatInt(id, 10)+"/target",
		api.SetTargetRequest{MonthlyAmount: &monthly})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[api.BucketDTO](t, rec)
	require.NotNil(t, dto.MonthlyAmount)
	assert.Equal(t, "1500.00", *dto.MonthlyAmount)
}

func TestTransfer_MissingAmount(t *testing.T) {
	router, store := newTestServer(t)
	from := seedBucket(t, store, "Food", "")
	to := seedBucket(t, store, "Rent", "")

	rec := do(t, router, http.MethodPost, "/api/buckets/transfer",
		api.TransferRequest{FromBucketID: from, ToBucketID: to})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetBucket_NonNegativeConflicts(t *testing.T) {
	router, store := newTestServer(t)
	id := seedBucket(t, store, "Food", "")
	seedBucket(t, store, ledger.OthersBucketName, "")

	rec := do(t, router, http.MethodPost, "/api/buckets/"+strconv.FormatInt(id, 10)+"/reset", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

func TestDistributeAndRevert(t *testing.T) {
	router, store := newTestServer(t)
	seedBucket(t, store, "Food", "3000")
	txID := seedIncome(t, store, "10000")

	rec := do(t, router, http.MethodPost, "/api/distributions",
		api.DistributeRequest{TransactionID: txID})
	require.Equal(t, http.StatusCreated, rec.Code)

	res := decode[api.DistributeResponse](t, rec)
	assert.Equal(t, "3000.00", res.Allocated)
	assert.Equal(t, "7000.00", res.Remainder)
	require.NotEmpty(t, res.EventID)

	rec = do(t, router, http.MethodGet, "/api/distributions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dists := decode[[]api.DistributionDTO](t, rec)
	require.Len(t, dists, 1)
	assert.Len(t, dists[0].Logs, 2)

	rec = do(t, router, http.MethodPost, "/api/distributions/"+res.EventID+"/revert", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second revert conflicts.
	rec = do(t, router, http.MethodPost, "/api/distributions/"+res.EventID+"/revert", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDistribute_UnknownTransaction(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/distributions",
		api.DistributeRequest{TransactionID: 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDistribute_InsufficientFunds(t *testing.T) {
	router, store := newTestServer(t)
	seedBucket(t, store, "Food", "9000")
	seedBucket(t, store, "Rent", "9000")
	txID := seedIncome(t, store, "10000")

	rec := do(t, router, http.MethodPost, "/api/distributions",
		api.DistributeRequest{TransactionID: txID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decode[api.ErrorResponse](t, rec)
	assert.Contains(t, errResp.Details, "insufficient funds")
}

// =============================================================================
// BACKUP
// =============================================================================

func TestUploadBackupAndListImports(t *testing.T) {
	router, _ := newTestServer(t)

	snap := backup.Snapshot{
		Database: &backup.DatabaseSection{
			Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		},
	}
	rec := do(t, router, http.MethodPost, "/api/backup?filename=phone.json", snap)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[api.ImportResultDTO](t, rec)
	assert.Equal(t, ledger.ImportCompleted, res.Status)
	assert.Equal(t, 1, res.Counts[ledger.RowAdded])

	rec = do(t, router, http.MethodGet, "/api/imports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]api.ImportLogDTO](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "phone.json", logs[0].Filename)
}

func TestUploadBackup_InvalidBody(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/backup", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
