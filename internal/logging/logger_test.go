package logging

import (
	"errors"
	"testing"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"CRITICAL": zapcore.ErrorLevel,
		"crit":     zapcore.ErrorLevel,
		"WARNING":  zapcore.WarnLevel,
		"warn":     zapcore.WarnLevel,
		"INFO":     zapcore.InfoLevel,
		"":         zapcore.InfoLevel,
		"debug":    zapcore.DebugLevel,
	}
	for name, want := range cases {
		got, known := ParseLevel(name)
		assert.True(t, known, name)
		assert.Equal(t, want, got, name)
	}

	got, known := ParseLevel("VERBOSE")
	assert.False(t, known)
	assert.Equal(t, zapcore.InfoLevel, got)
}

func TestLogger_Fail(t *testing.T) {
	t.Run("Expect: error is recorded before being returned", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := New(zap.New(core), "tgill")

		appErr := &models.AppError{Kind: models.KindNotFound, Table: "exp_metadata", Key: "20160415123456", Message: "no parent row"}
		err := logger.Fail(appErr)

		assert.Same(t, appErr, err)
		entries := logs.All()
		if assert.Len(t, entries, 1) {
			ctx := entries[0].ContextMap()
			assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
			assert.Equal(t, "tgill", ctx["user"])
			assert.Equal(t, "NOT_FOUND", ctx["kind"])
			assert.Equal(t, "exp_metadata", ctx["table"])
		}
	})

	t.Run("Expect: plain errors are logged without kind fields", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := New(zap.New(core), "tgill")

		err := logger.Fail(errors.New("boom"))

		assert.EqualError(t, err, "boom")
		assert.NotContains(t, logs.All()[0].ContextMap(), "kind")
	})

	t.Run("Expect: nil is passed through silently", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		assert.NoError(t, New(zap.New(core), "x").Fail(nil))
		assert.Equal(t, 0, logs.Len())
	})
}

func TestLogger_Query(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core), "tgill")

	logger.Query("SELECT  *\n\tFROM exp_metadata", 1)

	if assert.Equal(t, 1, logs.Len()) {
		assert.Equal(t, "SELECT * FROM exp_metadata", logs.All()[0].ContextMap()["sql"])
	}
}
