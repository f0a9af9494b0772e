// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFallbacksWhenBundleFailedToLoad(t *testing.T) {
	require.NoError(t, Init())
	savedBundle, savedErr := bundle, errInit
	bundle, errInit = nil, errors.New("broken translation file")
	t.Cleanup(func() {
		bundle, errInit = savedBundle, savedErr
	})

	ctx := WithLocale(context.Background(), language.German)

	assert.Equal(t, "de", GetLocale(ctx))
	assert.Equal(t, "subscription_created", T(ctx, "subscription_created"))
	assert.Equal(t, "confirmation_email_body", TData(ctx, "confirmation_email_body", map[string]any{"ConfirmationLink": "x"}))
	assert.Equal(t, "Please enter your name.", TDefault(ctx, "name_required", "Please enter your name."))
	assert.Equal(t, "subscription_created", T(context.Background(), "subscription_created"))
}
