package persist_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/persist"
)

type chainState struct {
	Key      string   `json:"key"`
	Versions []string `json:"versions"`
	Next     int      `json:"next"`
}

func sampleState() chainState {
	return chainState{Key: "c.1", Versions: []string{"x = 1", "x = 2", "x = 3"}, Next: 4}
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	codecs := map[string]persist.Codec{
		"json":     persist.NewJSONCodec(),
		"compact":  &persist.JSONCodec{},
		"gob":      persist.NewGobCodec(),
		"lz4-json": persist.NewLZ4Codec(nil),
		"lz4-gob":  persist.NewLZ4Codec(persist.NewGobCodec()),
	}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			require.NoError(t, codec.Encode(&buf, sampleState()))

			var decoded chainState

			require.NoError(t, codec.Decode(&buf, &decoded))
			assert.Equal(t, sampleState(), decoded)
		})
	}
}

func TestCodecs_Extension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".json", persist.NewJSONCodec().Extension())
	assert.Equal(t, ".gob", persist.NewGobCodec().Extension())
	assert.Equal(t, ".json.lz4", persist.NewLZ4Codec(nil).Extension())
	assert.Equal(t, ".gob.lz4", persist.NewLZ4Codec(persist.NewGobCodec()).Extension())
}

func TestJSONCodec_Indent(t *testing.T) {
	t.Parallel()

	var pretty, compact bytes.Buffer

	require.NoError(t, persist.NewJSONCodec().Encode(&pretty, sampleState()))
	require.NoError(t, (&persist.JSONCodec{}).Encode(&compact, sampleState()))

	assert.Contains(t, pretty.String(), "\n  ")
	assert.LessOrEqual(t, strings.Count(compact.String(), "\n"), 1)
}

func TestCodecs_DecodeErrors(t *testing.T) {
	t.Parallel()

	var state chainState

	err := persist.NewJSONCodec().Decode(strings.NewReader("{{{"), &state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json decode")

	err = persist.NewGobCodec().Decode(strings.NewReader("not gob"), &state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gob decode")

	err = persist.NewJSONCodec().Encode(&bytes.Buffer{}, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json encode")
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"json", "gob", "lz4", "", "JSON"} {
		codec, err := persist.CodecByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, codec)
	}

	_, err := persist.CodecByName("xml")
	require.ErrorIs(t, err, persist.ErrUnknownCodec)
}
