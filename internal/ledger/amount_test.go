package ledger

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmountRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "-0.01", "1.2.3"} {
		_, err := ParseAmount(in)
		require.Error(t, err, "input %q", in)
		require.True(t, errors.Is(err, ErrInvalidInput), "input %q", in)
	}
}

func TestParseAmountAcceptsDollarPrefix(t *testing.T) {
	a, err := ParseAmount("$0.05")
	require.NoError(t, err)
	require.True(t, a.Equal(MustAmount("0.05")))
}

func TestAmountRendering(t *testing.T) {
	require.Equal(t, "0.00", ZeroAmount.String())
	require.Equal(t, "0.20", MustAmount("0.2").String())
	require.Equal(t, "0.005", MustAmount("0.005").String())
	require.Equal(t, "0.01", MustAmount("0.005").Display())
	require.Equal(t, "12.00", MustAmount("12").Display())
}

func TestAmountSumIsExact(t *testing.T) {
	sum := ZeroAmount
	for i := 0; i < 10; i++ {
		sum = sum.Add(MustAmount("0.1"))
	}
	require.True(t, sum.Equal(MustAmount("1")))
	require.Equal(t, "1.00", sum.Display())
}

func TestAmountJSONAcceptsStringOrNumber(t *testing.T) {
	var payload struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"0.05","b":0.03}`), &payload))
	require.Equal(t, "0.05", payload.A.String())
	require.Equal(t, "0.03", payload.B.String())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"0.05","b":"0.03"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"a":"-1"}`), &payload))
}
