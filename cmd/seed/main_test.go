package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msourial/platefull/internal/catalog"
)

func TestSampleMenuLoads(t *testing.T) {
	menu, err := catalog.LoadMenu(bytes.NewReader(sampleMenu))
	require.NoError(t, err)
	require.Len(t, menu.Categories, 5)
}
