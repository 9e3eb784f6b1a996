package protocol

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantKind Kind
		wantBody string
		wantErr  error
	}{
		{
			name:     "stats",
			line:     `STATS:{"cpu":42.5,"memory":60.0,"network_in":12.3}`,
			wantKind: KindStats,
			wantBody: `{"cpu":42.5,"memory":60.0,"network_in":12.3}`,
		},
		{
			name:     "processes",
			line:     `PROCS:[{"pid":1,"name":"init","cpu_percent":0.1,"memory_percent":0.2}]`,
			wantKind: KindProcesses,
			wantBody: `[{"pid":1,"name":"init","cpu_percent":0.1,"memory_percent":0.2}]`,
		},
		{
			name:     "disk",
			line:     `DISK:[]`,
			wantKind: KindDiskInfo,
			wantBody: `[]`,
		},
		{
			name:     "malformed body is still decoded",
			line:     `STATS:{not json`,
			wantKind: KindStats,
			wantBody: `{not json`,
		},
		{
			name:     "empty body",
			line:     `PROCS:`,
			wantKind: KindProcesses,
			wantBody: ``,
		},
		{
			name:     "carriage return trimmed",
			line:     "DISK:[]\r",
			wantKind: KindDiskInfo,
			wantBody: `[]`,
		},
		{
			name:     "body whitespace preserved",
			line:     `STATS: {"cpu": 1} `,
			wantKind: KindStats,
			wantBody: ` {"cpu": 1} `,
		},
		{name: "garbage", line: "GARBAGE line", wantErr: ErrUnknownTag},
		{name: "empty line", line: "", wantErr: ErrUnknownTag},
		{name: "lowercase tag", line: `stats:{}`, wantErr: ErrUnknownTag},
		{name: "tag not at start", line: ` STATS:{}`, wantErr: ErrUnknownTag},
		{name: "tag without colon", line: `STATS{}`, wantErr: ErrUnknownTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.line)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, Message{}, msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, msg.Kind)
			assert.Equal(t, tt.wantBody, msg.Body)
		})
	}
}

func TestDecode_BodyVerbatim(t *testing.T) {
	faker := gofakeit.New(42)
	for i := 0; i < 50; i++ {
		body := faker.Sentence(8)
		for _, kind := range []Kind{KindStats, KindProcesses, KindDiskInfo} {
			msg, err := Decode(kind.Tag() + body)
			require.NoError(t, err)
			assert.Equal(t, kind, msg.Kind)
			assert.Equal(t, body, msg.Body)
		}
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, `STATS:{"cpu":1}`, Encode(Message{Kind: KindStats, Body: `{"cpu":1}`}))
	assert.Equal(t, `PROCS:[]`, Encode(Message{Kind: KindProcesses, Body: `[]`}))
	assert.Equal(t, `DISK:[]`, Encode(Message{Kind: KindDiskInfo, Body: `[]`}))
	assert.Equal(t, "", Encode(Message{Kind: Kind(0), Body: `[]`}))
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind  Kind
		name  string
		tag   string
		valid bool
	}{
		{KindStats, "stats", "STATS:", true},
		{KindProcesses, "processes", "PROCS:", true},
		{KindDiskInfo, "disk", "DISK:", true},
		{Kind(0), "unknown", "", false},
		{Kind(99), "unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.tag, tt.kind.Tag())
			assert.Equal(t, tt.valid, tt.kind.Valid())
		})
	}
}
