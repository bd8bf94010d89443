package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_JWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		secret  string
		wantErr string
	}{
		{name: "dev default", env: ""},
		{name: "test default", env: "test"},
		{name: "prod default", env: "prod", wantErr: "PROD_SERVER_JWTSECRET must be set in PROD"},
		{name: "qa default", env: "qa", wantErr: "QA_SERVER_JWTSECRET must be set in QA"},
		{name: "prod secret", env: "prod", secret: "a-real-secret-of-the-project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			if tt.secret != "" {
				t.Setenv("PROD_SERVER_JWTSECRET", tt.secret)
			}

			conf, err := NewConfig()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.secret != "" {
				assert.Equal(t, tt.secret, conf.Server.JWTSecret)
			} else {
				assert.Equal(t, DevJWTSecret, conf.Server.JWTSecret)
			}
		})
	}
}
