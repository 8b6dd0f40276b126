package bytesize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1Ki", KiB, false},
		{"10Gi", 10 * GiB, false},
		{"500Mi", 500 * MiB, false},
		{"100MB", 100 * MB, false},
		{"1.5Gi", ByteSize(1.5 * float64(GiB)), false},
		{"8GiB", 8 * GiB, false},
		{"0", 0, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10Xi", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalJSON(t *testing.T) {
	var s struct {
		Soft ByteSize `json:"soft"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"soft": "8Gi"}`), &s))
	assert.Equal(t, 8*GiB, s.Soft)

	require.NoError(t, json.Unmarshal([]byte(`{"soft": 1048576}`), &s))
	assert.Equal(t, MiB, s.Soft)

	assert.Error(t, json.Unmarshal([]byte(`{"soft": -1}`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{"soft": true}`), &s))
}

func TestMarshalJSON(t *testing.T) {
	out, err := json.Marshal(10 * GiB)
	require.NoError(t, err)
	assert.Equal(t, "10737418240", string(out))
}

func TestString(t *testing.T) {
	assert.Equal(t, "10.00GiB", (10 * GiB).String())
	assert.Equal(t, "512B", ByteSize(512).String())
}
