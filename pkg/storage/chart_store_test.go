package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Azurite's well-known development credentials; nothing here talks to a
// real account.
const testConnectionString = "DefaultEndpointsProtocol=http;" +
	"AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1"

func TestNewAzureBlobStoreValidation(t *testing.T) {
	logger := zap.NewNop()

	_, err := NewAzureBlobStore("", "charts", logger)
	assert.Error(t, err, "empty connection string must be rejected")

	_, err = NewAzureBlobStore(testConnectionString, "", logger)
	assert.Error(t, err, "empty container name must be rejected")

	_, err = NewAzureBlobStore(testConnectionString, "charts", nil)
	assert.Error(t, err, "nil logger must be rejected")

	_, err = NewAzureBlobStore("AccountName=only-a-name", "charts", logger)
	assert.Error(t, err, "connection string without a key must be rejected")
}

func TestNewAzureBlobStoreFromAzuriteString(t *testing.T) {
	store, err := NewAzureBlobStore(testConnectionString, "helios-charts", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", store.serviceURL)
	assert.Equal(t, "helios-charts", store.containerName)
}

func TestParseConnectionString(t *testing.T) {
	params := ParseConnectionString(testConnectionString)

	assert.Equal(t, "devstoreaccount1", params["AccountName"])
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", params["BlobEndpoint"])
	// Values may themselves contain '='; only the first one splits.
	assert.Equal(t,
		"Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==",
		params["AccountKey"])
}

func TestParseConnectionStringIgnoresJunk(t *testing.T) {
	params := ParseConnectionString(";;=nokey; AccountName=dev ;broken")

	assert.Equal(t, "dev", params["AccountName"])
	assert.NotContains(t, params, "")
	assert.NotContains(t, params, "broken")
}

func TestChartBlobPath(t *testing.T) {
	assert.Equal(t, "charts/run-123.txt", ChartBlobPath("run-123"))
}
