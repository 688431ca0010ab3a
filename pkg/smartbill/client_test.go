package smartbill

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smartbill-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(rt roundTripFunc) *Client {
	return NewClient(
		config.SmartBillConfig{Username: "user@example.ro", APIToken: "secret"},
		WithBaseURL("http://smartbill.test/api"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
}

func TestTaxTableRequest(t *testing.T) {
	var captured *http.Request
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{"errorText":"","taxes":[{"name":"Normala","percentage":19},{"name":"Redusa","percentage":9}]}`), nil
	})

	taxes, err := client.TaxTable(context.Background(), "RO123")
	require.NoError(t, err)
	require.Len(t, taxes, 2)
	assert.Equal(t, "Normala", taxes[0].Name)
	assert.True(t, taxes[0].Percentage.Equal(decimal.NewFromInt(19)))

	assert.Equal(t, "http://smartbill.test/api/tax?cif=RO123", captured.URL.String())
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user@example.ro:secret"))
	assert.Equal(t, want, captured.Header.Get("Authorization"))
}

func TestCreateInvoiceSendsNumericMoney(t *testing.T) {
	var body map[string]any
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/invoice", req.URL.Path)
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		return jsonResponse(http.StatusOK, `{"number":"0042","series":"SB"}`), nil
	})

	resp, err := client.CreateInvoice(context.Background(), &Invoice{
		SeriesName: "SB",
		Products: []Product{{
			Code:          "sku-1",
			Name:          "Mug",
			Price:         NewNumber(decimal.RequireFromString("12.50")),
			Quantity:      2,
			TaxPercentage: NewNumber(decimal.NewFromInt(19)),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "0042", resp.Number)

	products := body["products"].([]any)
	product := products[0].(map[string]any)
	assert.Equal(t, 12.5, product["price"])
	assert.Equal(t, float64(19), product["taxPercentage"])
	assert.NotContains(t, product, "taxName")
}

func TestCreateInvoiceMapsProviderErrors(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"errorText":"Seria nu exista"}`), nil
	})

	_, err := client.CreateInvoice(context.Background(), &Invoice{SeriesName: "XX"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	dump := pkgerrors.Dump(err)
	assert.Equal(t, http.StatusBadRequest, dump.UpstreamStatus)
	assert.Contains(t, dump.UpstreamBody, "Seria nu exista")
}

func TestCreateInvoiceErrorTextOnSuccessStatus(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"errorText":"Cota TVA invalida","number":""}`), nil
	})

	_, err := client.CreateInvoice(context.Background(), &Invoice{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestInvoicePDFStreamsBody(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "RO123", req.URL.Query().Get("cif"))
		assert.Equal(t, "SB", req.URL.Query().Get("seriesname"))
		assert.Equal(t, "0042", req.URL.Query().Get("number"))
		assert.Equal(t, "application/octet-stream", req.Header.Get("Accept"))
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("%PDF-1.4")),
			Header:     http.Header{},
		}, nil
	})

	rc, err := client.InvoicePDF(context.Background(), "RO123", "SB", "0042")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestMissingCredentialsIsValidationError(t *testing.T) {
	called := false
	client := NewClient(config.SmartBillConfig{},
		WithHTTPClient(&http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			called = true
			return jsonResponse(http.StatusOK, `{}`), nil
		})}),
	)

	_, err := client.TaxTable(context.Background(), "RO123")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.False(t, called, "no request should be sent without credentials")
}

func TestNumberUnmarshalAcceptsQuotedAndBare(t *testing.T) {
	var out struct {
		A Number `json:"a"`
		B Number `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"5.5","b":9}`), &out))
	assert.Equal(t, "5.5", out.A.String())
	assert.Equal(t, "9", out.B.String())
}
