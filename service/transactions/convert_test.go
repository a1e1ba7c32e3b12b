package transactions

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/txlist/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	v, err := DecodeJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func strPtr(s string) *string { return &s }

func TestConvert_SendWithIcon(t *testing.T) {
	input := decode(t, `[{"type":"send","asset":{"icon_url":"http://x/icon.png","name":"ETH"},"native":{"display":"$5.00"},"balance":{"display":"0.01 ETH"}}]`)

	got := Convert(input)

	require.Len(t, got, 1)
	assert.Equal(t, Sent, got[0].Type)
	require.NotNil(t, got[0].CoinImage)
	assert.Equal(t, "http://x/icon.png", *got[0].CoinImage)
	assert.Equal(t, "ETH", got[0].CoinName)
	assert.Equal(t, "$5.00", got[0].NativeDisplay)
	assert.Equal(t, "0.01 ETH", got[0].BalanceDisplay)
}

func TestConvert_ReceiveWithNullIcon(t *testing.T) {
	input := decode(t, `[{"type":"receive","asset":{"icon_url":null,"name":"BTC"},"native":{"display":"$10.00"},"balance":{"display":"0.001 BTC"}}]`)

	got := Convert(input)

	require.Len(t, got, 1)
	assert.Equal(t, Received, got[0].Type)
	assert.Nil(t, got[0].CoinImage)
	assert.Equal(t, "BTC", got[0].CoinName)
	assert.Equal(t, "$10.00", got[0].NativeDisplay)
	assert.Equal(t, "0.001 BTC", got[0].BalanceDisplay)

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"Received","coinName":"BTC","nativeDisplay":"$10.00","balanceDisplay":"0.001 BTC"}]`, string(out))
}

func TestConvert_EmptyArray(t *testing.T) {
	got := Convert(decode(t, `[]`))
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestConvert_NonArrayInput(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "string", input: "not-an-array"},
		{name: "object", input: map[string]any{"type": "send"}},
		{name: "number", input: json.Number("42")},
		{name: "nil", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(tt.input)
			require.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestConvert_PreservesOrder(t *testing.T) {
	input := decode(t, `[
		{"type":"send","asset":{"icon_url":null,"name":"ETH"},"native":{"display":"$1.00"},"balance":{"display":"1 ETH"}},
		{"type":"send","asset":{"icon_url":null,"name":"DAI"},"native":{"display":"$2.00"},"balance":{"display":"2 DAI"}},
		{"type":"receive","asset":{"icon_url":null,"name":"USDC"},"native":{"display":"$3.00"},"balance":{"display":"3 USDC"}}
	]`)

	got := Convert(input)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"ETH", "DAI", "USDC"}, []string{got[0].CoinName, got[1].CoinName, got[2].CoinName})
	assert.Equal(t, Sent, got[0].Type)
	assert.Equal(t, Sent, got[1].Type)
	assert.Equal(t, Received, got[2].Type)
}

func TestDirectionFromType(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{in: "send", want: Sent},
		{in: "receive", want: Received},
		{in: "trade", want: Received},
		{in: "Send", want: Received},
		{in: "", want: Received},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectionFromType(tt.in))
		})
	}
}

func TestDirection_Text(t *testing.T) {
	b, err := Sent.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Sent", string(b))

	var d Direction
	require.NoError(t, d.UnmarshalText([]byte("Sent")))
	assert.Equal(t, Sent, d)
	require.NoError(t, d.UnmarshalText([]byte("Received")))
	assert.Equal(t, Received, d)
	assert.Error(t, d.UnmarshalText([]byte("send")))
}

func TestConvert_PermissiveDegradesMissingFields(t *testing.T) {
	input := decode(t, `[
		{"asset":{"name":"ETH"}},
		"not-an-object",
		{"type":7,"asset":{"icon_url":12,"name":3},"native":"oops","balance":{}}
	]`)

	got := Convert(input)

	require.Len(t, got, 3)

	// Missing type falls through to Received; missing icon_url is absent.
	assert.Equal(t, Received, got[0].Type)
	assert.Nil(t, got[0].CoinImage)
	assert.Equal(t, "ETH", got[0].CoinName)
	assert.Empty(t, got[0].NativeDisplay)
	assert.Empty(t, got[0].BalanceDisplay)

	assert.Equal(t, Transaction{Type: Received}, got[1])

	assert.Equal(t, Received, got[2].Type)
	assert.Nil(t, got[2].CoinImage)
	assert.Empty(t, got[2].CoinName)
	assert.Empty(t, got[2].NativeDisplay)
	assert.Empty(t, got[2].BalanceDisplay)
}

func TestConvert_IconCopiedVerbatim(t *testing.T) {
	input := []any{
		map[string]any{
			"type":    "send",
			"asset":   map[string]any{"icon_url": "  not a url ", "name": "X"},
			"native":  map[string]any{"display": ""},
			"balance": map[string]any{"display": ""},
		},
	}

	got := Convert(input)

	require.Len(t, got, 1)
	assert.Equal(t, strPtr("  not a url "), got[0].CoinImage)
}

func TestConvert_Metadata(t *testing.T) {
	input := decode(t, `[{
		"type":"send",
		"hash":"0xabc",
		"minedAt":1700000000,
		"pending":false,
		"status":"sent",
		"asset":{"icon_url":null,"name":"ETH"},
		"native":{"amount":"5.0012","display":"$5.00"},
		"balance":{"amount":"0.01","display":"0.01 ETH"}
	}]`)

	got := Convert(input)

	require.Len(t, got, 1)
	txn := got[0]
	assert.Equal(t, strPtr("0xabc"), txn.Hash)
	require.NotNil(t, txn.MinedAt)
	assert.True(t, txn.MinedAt.Equal(time.Unix(1700000000, 0)))
	assert.False(t, txn.Pending)
	assert.Equal(t, "sent", txn.Status)
	require.NotNil(t, txn.NativeAmount)
	assert.Equal(t, "5.0012", txn.NativeAmount.String())
}

func TestConvert_MetadataNumberForms(t *testing.T) {
	input := []any{
		map[string]any{"mined_at": float64(1700000000), "native": map[string]any{"amount": float64(1.5)}},
		map[string]any{"minedAt": 1700000001, "native": map[string]any{"amount": 2}},
		map[string]any{"minedAt": "1700000002", "native": map[string]any{"amount": json.Number("3.25")}},
		map[string]any{"minedAt": true, "native": map[string]any{"amount": "abc"}},
	}

	got := Convert(input)

	require.Len(t, got, 4)
	assert.Equal(t, int64(1700000000), got[0].MinedAt.Unix())
	assert.Equal(t, "1.5", got[0].NativeAmount.String())
	assert.Equal(t, int64(1700000001), got[1].MinedAt.Unix())
	assert.Equal(t, "2", got[1].NativeAmount.String())
	assert.Equal(t, int64(1700000002), got[2].MinedAt.Unix())
	assert.Equal(t, "3.25", got[2].NativeAmount.String())
	assert.Nil(t, got[3].MinedAt)
	assert.Nil(t, got[3].NativeAmount)
}

func TestConverter_StrictValid(t *testing.T) {
	c := NewConverter(WithPolicy(PolicyStrict))

	got, err := c.ConvertJSON([]byte(`[{"type":"send","asset":{"icon_url":null,"name":"ETH"},"native":{"display":"$5.00"},"balance":{"display":"0.01 ETH"}}]`))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Sent, got[0].Type)
}

func TestConverter_StrictNotArray(t *testing.T) {
	c := NewConverter(WithPolicy(PolicyStrict))

	got, err := c.ConvertJSON([]byte(`"not-an-array"`))

	require.ErrorIs(t, err, ErrNotArray)
	assert.Empty(t, got)
}

func TestConverter_StrictRejectsMalformedRecords(t *testing.T) {
	c := NewConverter(WithPolicy(PolicyStrict))
	input := decode(t, `[
		{"type":"send","asset":{"icon_url":null,"name":"ETH"},"native":{"display":"$5.00"},"balance":{"display":"0.01 ETH"}},
		{"type":"send","asset":{"name":"DAI"},"balance":{"display":"1 DAI"}},
		42,
		{"type":"receive","asset":{"icon_url":5,"name":"BTC"},"native":{"display":"$1"},"balance":{"display":1}},
		{"asset":{"name":"USDC"},"native":{"display":"$2"},"balance":{"display":"2 USDC"}}
	]`)

	got, err := c.Convert(input)

	require.Error(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ETH", got[0].CoinName)
	assert.Equal(t, "USDC", got[1].CoinName)
	assert.Equal(t, Received, got[1].Type)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 1, decodeErr.Index)
	assert.Equal(t, "native", decodeErr.Field)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.ErrorIs(t, err, ErrNotObject)
	assert.ErrorIs(t, err, ErrWrongType)

	msg := err.Error()
	assert.Contains(t, msg, "record 1: native: missing field")
	assert.Contains(t, msg, "record 2: record: record is not an object")
	assert.Contains(t, msg, "record 3: asset.icon_url: unexpected field type")
	assert.Contains(t, msg, "record 3: balance.display: unexpected field type")
}

func TestConverter_StrictIgnoresMetadataProblems(t *testing.T) {
	c := NewConverter(WithPolicy(PolicyStrict))

	got, err := c.ConvertJSON([]byte(`[{"type":"send","minedAt":"yesterday","pending":"no","asset":{"icon_url":null,"name":"ETH"},"native":{"display":"$5.00","amount":"x"},"balance":{"display":"0.01 ETH"}}]`))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MinedAt)
	assert.Nil(t, got[0].NativeAmount)
	assert.False(t, got[0].Pending)
}

func TestConverter_ConvertJSONInvalid(t *testing.T) {
	for _, policy := range []Policy{PolicyPermissive, PolicyStrict} {
		t.Run(policy.String(), func(t *testing.T) {
			c := NewConverter(WithPolicy(policy))

			_, err := c.ConvertJSON([]byte(`[{"type":`))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to decode JSON")

			_, err = c.ConvertJSON([]byte(`[] []`))
			require.Error(t, err)
		})
	}
}

func TestConverter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	c := NewConverter(WithPolicy(PolicyStrict), WithMetrics(m))

	_, err := c.ConvertJSON([]byte(`[
		{"type":"send","asset":{"icon_url":null,"name":"ETH"},"native":{"display":"$5.00"},"balance":{"display":"0.01 ETH"}},
		{"type":"send","asset":{"icon_url":null,"name":"DAI"},"balance":{"display":"1 DAI"}}
	]`))
	require.Error(t, err)

	expected := `
# HELP txlist_records_converted_total Total number of records converted to display transactions
# TYPE txlist_records_converted_total counter
txlist_records_converted_total{direction="Sent"} 1
# HELP txlist_records_rejected_total Total number of records rejected by strict conversion
# TYPE txlist_records_rejected_total counter
txlist_records_rejected_total{field="native"} 1
# HELP txlist_conversions_total Total number of transaction list conversions by policy and status
# TYPE txlist_conversions_total counter
txlist_conversions_total{policy="strict",status="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"txlist_records_converted_total",
		"txlist_records_rejected_total",
		"txlist_conversions_total",
	))
}

func TestConverter_PermissiveMetricsDegraded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	c := NewConverter(WithMetrics(m))

	got, err := c.Convert(decode(t, `[{"type":"send"}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)

	expected := `
# HELP txlist_records_degraded_total Total number of missing or malformed fields replaced by zero values
# TYPE txlist_records_degraded_total counter
txlist_records_degraded_total{field="asset"} 1
txlist_records_degraded_total{field="balance"} 1
txlist_records_degraded_total{field="native"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "txlist_records_degraded_total"))
}

func TestConverter_ConcurrentUse(t *testing.T) {
	c := NewConverter()
	input := decode(t, `[{"type":"send","asset":{"icon_url":null,"name":"ETH"},"native":{"display":"$5.00"},"balance":{"display":"0.01 ETH"}}]`)

	done := make(chan []Transaction, 8)
	for i := 0; i < 8; i++ {
		go func() {
			out, _ := c.Convert(input)
			done <- out
		}()
	}
	for i := 0; i < 8; i++ {
		out := <-done
		require.Len(t, out, 1)
		assert.Equal(t, "ETH", out[0].CoinName)
	}
}

func TestDecodeError_Unwrap(t *testing.T) {
	err := error(&DecodeError{Index: 3, Field: "asset.name", Err: ErrMissingField})
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Equal(t, "record 3: asset.name: missing field", err.Error())
}
