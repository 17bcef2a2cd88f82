package sales

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/shared"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLocalStoreSaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "uploads", 1024)
	require.NoError(t, err)

	p, err := store.Save(context.Background(), Upload{Filename: "Carnet.PNG", Data: pngHeader})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(p, "/uploads/"))
	require.Equal(t, ".png", filepath.Ext(p))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(p)))
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)

	require.NoError(t, store.Remove(context.Background(), p))
	_, err = os.Stat(filepath.Join(dir, filepath.Base(p)))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, store.Remove(context.Background(), p), "removing twice is fine")
	require.NoError(t, store.Remove(context.Background(), "/etc/passwd"))
}

func TestLocalStoreCheck(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/uploads/", 16)
	require.NoError(t, err)

	cases := []struct {
		name string
		u    Upload
		ok   bool
	}{
		{"png by content", Upload{Filename: "scan", Data: pngHeader}, true},
		{"pdf by header", Upload{Filename: "a", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, true},
		{"docx by extension", Upload{Filename: "contrato.docx", ContentType: "application/octet-stream", Data: []byte("PK")}, true},
		{"empty", Upload{Filename: "a.png"}, false},
		{"too large", Upload{Filename: "a.png", Data: make([]byte, 17)}, false},
		{"executable", Upload{Filename: "run.sh", Data: []byte("#!/bin/sh\necho hi")}, false},
		{"html", Upload{Filename: "x.html", ContentType: "text/html", Data: []byte("<html>")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Check(tc.u)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}
