package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
	assert.Equal(t, 1, logger.CountLevel("error"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	logger := testutil.NewMockLogger()
	child := logger.Named("svc").With(logging.String("dataset_id", "d1"))

	child.Warn("slow render")

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "svc", messages[0].Name)
	assert.Equal(t, []logging.Field{logging.String("dataset_id", "d1")}, messages[0].Fields)
}

func TestMockLogger_SetLevel(t *testing.T) {
	logger := testutil.NewMockLogger()
	assert.True(t, logger.SetLevel("warn"))
	assert.False(t, logger.SetLevel("verbose"))
}
