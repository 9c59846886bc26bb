package kiosk

import "path/filepath"

type workspace struct {
	requestID string
	dir       string
	inDir     string
}

func newWorkspace(requestID, dir string) workspace {
	return workspace{
		requestID: requestID,
		dir:       dir,
		inDir:     filepath.Join(dir, "in"),
	}
}

func (w workspace) inputPath(storedName string) string {
	return filepath.Join(w.inDir, storedName)
}
