package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	usr := user.User{ID: "u1", Username: "amani", Email: "amani@kiongozi.test"}
	args := logger.prepare("boom", []interface{}{errors.New("cause"), usr, map[string]interface{}{"k": "v"}})
	assert.Len(t, args, 3, "the user is reported as the person, not as an argument")
	assert.Equal(t, "boom", args[0])

	logger.Error("boom", errors.New("cause"), usr)
	out := buf.String()
	assert.Contains(t, out, "ERROR boom")
	assert.Contains(t, out, "cause")
}
