package roadmap

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Due  Date  `json:"due"`
		Opt  *Date `json:"opt"`
		Zero Date  `json:"zero"`
	}
	in := payload{Due: MustParseDate("2024-07-04")}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-07-04","opt":null,"zero":null}`, string(b))

	var out payload
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-12-31","opt":"2025-01-01","zero":null}`), &out))
	assert.Equal(t, "2024-12-31", out.Due.String())
	require.NotNil(t, out.Opt)
	assert.Equal(t, "2025-01-01", out.Opt.String())
	assert.True(t, out.Zero.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"due":"12/31/2024"}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`{"due":20241231}`), &out))
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustParseDate("2023-12-30")
	assert.Equal(t, "2024-01-02", d.AddDays(3).String())
	assert.Equal(t, 3, d.AddDays(3).DaysSince(d))
	assert.Equal(t, -3, d.DaysSince(d.AddDays(3)))
	assert.Equal(t, "2024-03-01", MustParseDate("2024-02-28").AddDays(2).String())

	// Far apart dates exceed what a time.Duration can hold.
	far := MustParseDate("9999-12-31")
	base := MustParseDate("2024-01-01")
	assert.Equal(t, 2913173, far.DaysSince(base))
	assert.Equal(t, -2913173, base.DaysSince(far))
	assert.True(t, base.AddDays(far.DaysSince(base)).Equal(far))
	assert.Equal(t, 1, MustParseDate("1970-01-01").DaysSince(MustParseDate("1969-12-31")))
}

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	d := DateOf(time.Date(2024, 1, 1, 23, 59, 0, 0, loc))
	assert.Equal(t, "2024-01-01", d.String())
}

func TestDate_ScanAndValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-04-01", d.String())

	require.NoError(t, d.Scan("2024-04-02"))
	assert.Equal(t, "2024-04-02", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())
	assert.Error(t, d.Scan(42))

	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = MustParseDate("2024-04-03").Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), v)
}
