package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	require.Equal(t, 0, exitCode(context.Background(), nil, &buf))
	require.Empty(t, buf.String())

	require.Equal(t, 1, exitCode(context.Background(), errors.New("boom"), &buf))
	require.Equal(t, "error: boom\n", buf.String())

	buf.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fmt.Errorf("failed at step 3: %w", ctx.Err())
	require.Equal(t, 130, exitCode(ctx, err, &buf))
	require.Equal(t, "command interrupted\n", buf.String())
}
