package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, mode := range []string{"", "development", "production"} {
		t.Run("mode "+mode, func(t *testing.T) {
			log, err := New(mode)
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNewUnknownMode(t *testing.T) {
	_, err := New("verbose")
	assert.Error(t, err)
}
