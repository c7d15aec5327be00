package dns_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodinGakpo/DebateIT/cli/internal/dns"
)

func TestLookupIPLiteral(t *testing.T) {
	r := dns.NewResolver()
	r.SetLookup(func(context.Context, string, string) ([]string, error) {
		t.Fatal("IP literals must not be resolved")
		return nil, nil
	})

	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
}

func TestLookup(t *testing.T) {
	errDown := errors.New("resolver down")

	tests := []struct {
		name    string
		lookup  func(ctx context.Context, host, server string) ([]string, error)
		want    string
		wantErr bool
	}{
		{
			name: "system resolver preferring IPv4",
			lookup: func(_ context.Context, _, server string) ([]string, error) {
				if server != "" {
					return nil, errDown
				}
				return []string{"2001:db8::1", "192.0.2.10"}, nil
			},
			want: "192.0.2.10",
		},
		{
			name: "falls back to public servers",
			lookup: func(_ context.Context, _, server string) ([]string, error) {
				if server == "9.9.9.9" {
					return []string{"192.0.2.20"}, nil
				}
				return nil, errDown
			},
			want: "192.0.2.20",
		},
		{
			name: "everything fails",
			lookup: func(context.Context, string, string) ([]string, error) {
				return nil, errDown
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := dns.NewResolver()
			r.RaceTimeout = time.Second
			r.SetLookup(tt.lookup)

			ip, err := r.Lookup(context.Background(), "debate.example")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip)
		})
	}
}
