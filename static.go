package svcrouter

import (
	"io/fs"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// StaticPrefix is the route prefix served by StaticHandler.
const StaticPrefix = "/static/"

// StaticHandler serves UTF-8 files below a root directory.
// Any failure to read a file is answered with 404.
type StaticHandler struct {
	fsys fs.FS
	log  zerolog.Logger
}

// NewStaticHandler serves files from the directory dir.
// Symbolic links leading outside dir are not followed.
func NewStaticHandler(dir string, logger zerolog.Logger) (*StaticHandler, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return NewStaticHandlerFS(root.FS(), logger), nil
}

// NewStaticHandlerFS serves files from fsys.
func NewStaticHandlerFS(fsys fs.FS, logger zerolog.Logger) *StaticHandler {
	return &StaticHandler{
		fsys: fsys,
		log:  logger.With().Str("component", "static").Logger(),
	}
}

// Serve returns the contents of the file at relPath, relative to the root.
func (s *StaticHandler) Serve(relPath string) (Response, error) {
	relPath = strings.TrimPrefix(relPath, "/")
	// fs.ValidPath rejects "..", empty and rooted paths so nothing outside the root is reachable
	if !fs.ValidPath(relPath) || relPath == "." {
		return textResponse(http.StatusNotFound, "Not Found"), ErrRouteNotFound
	}
	content, err := fs.ReadFile(s.fsys, relPath)
	if err != nil {
		s.log.Debug().Err(err).Str("path", relPath).Msg("Could not read static file")
		return textResponse(http.StatusNotFound, "Not Found"), ErrRouteNotFound
	}
	if !utf8.Valid(content) {
		s.log.Debug().Str("path", relPath).Msg("Static file is not valid UTF-8")
		return textResponse(http.StatusNotFound, "Not Found"), ErrRouteNotFound
	}
	return textResponse(http.StatusOK, string(content)), nil
}
