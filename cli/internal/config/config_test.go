package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodinGakpo/DebateIT/cli/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		opts     config.Options
		wantErr  bool
		validate func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "defaults",
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "ws://localhost:8000/ws/matchmaking/", cfg.MatchmakingURL())
				assert.Equal(t, "http://localhost:8000/api/rooms", cfg.APIURL("/api/rooms"))
			},
		},
		{
			name: "flag beats env",
			env:  map[string]string{"DEBATEIT_SERVER": "https://env.example", "DEBATEIT_NAME": "env"},
			opts: config.Options{Server: "https://flag.example/debate/"},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "wss://flag.example/debate/ws/room/ABC123/?identity=env", cfg.RoomURL("ABC123"))
				assert.Equal(t, "https://flag.example/debate/room/ABC123", cfg.RoomLink("ABC123"))
			},
		},
		{
			name: "token preferred over name",
			opts: config.Options{Server: "localhost:9000", Name: "ada", Token: "abc.def.ghi"},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "ws://localhost:9000/ws/matchmaking/?token=abc.def.ghi", cfg.MatchmakingURL())
			},
		},
		{
			name: "websocket scheme is accepted",
			opts: config.Options{Server: "wss://debate.example"},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "https", cfg.Server.Scheme)
			},
		},
		{
			name:    "unsupported scheme",
			opts:    config.Options{Server: "ftp://debate.example"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEBATEIT_SERVER", "")
			t.Setenv("DEBATEIT_NAME", "")
			t.Setenv("DEBATEIT_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestParseRoomRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "abc123", want: "ABC123"},
		{ref: " XYZ987 ", want: "XYZ987"},
		{ref: "https://debate.example/room/abc123", want: "ABC123"},
		{ref: "ws://localhost:8000/ws/room/QWE456/", want: "QWE456"},
		{ref: "ABC12", wantErr: true},
		{ref: "https://debate.example/", wantErr: true},
		{ref: "ABC-12", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := config.ParseRoomRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidRoomRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
