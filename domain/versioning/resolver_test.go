package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"finsync/domain/config"
)

func TestResolver_Permissive(t *testing.T) {
	r := NewResolver(config.VersionPolicyPermissive)

	tests := []struct {
		name          string
		client        int64
		server        int64
		wantAccept    bool
		wantNextIfAny int64
	}{
		{name: "fresh account", client: 0, server: 0, wantAccept: true, wantNextIfAny: 1},
		{name: "equal", client: 3, server: 3, wantAccept: true, wantNextIfAny: 4},
		{name: "client ahead", client: 9, server: 3, wantAccept: true, wantNextIfAny: 4},
		{name: "client behind", client: 3, server: 4, wantAccept: false},
		{name: "client behind fresh push", client: 0, server: 1, wantAccept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(tt.client, tt.server)

			assert.Equal(t, tt.wantAccept, d.Accept)
			assert.Equal(t, tt.server, d.ServerVersion)
			if tt.wantAccept {
				assert.Equal(t, tt.wantNextIfAny, d.NextVersion)
			}
		})
	}
}

func TestResolver_Strict(t *testing.T) {
	r := NewResolver(config.VersionPolicyStrict)

	assert.True(t, r.Resolve(4, 4).Accept)
	assert.False(t, r.Resolve(5, 4).Accept)
	assert.False(t, r.Resolve(3, 4).Accept)
	assert.Equal(t, config.VersionPolicyStrict, r.Policy())
}

func TestResolver_NextVersionAlwaysServerPlusOne(t *testing.T) {
	r := NewResolver(config.VersionPolicyPermissive)
	for server := int64(0); server < 20; server++ {
		for client := server; client < server+5; client++ {
			assert.Equal(t, server+1, r.Resolve(client, server).NextVersion)
		}
	}
}
