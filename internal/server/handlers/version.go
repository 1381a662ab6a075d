package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
)

// VersionInfo is the build identity reported by /version.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

var (
	versionMu   sync.RWMutex
	versionInfo = VersionInfo{Version: "dev"}
)

// SetVersionInfo installs the build identity, normally from ldflags at
// startup.
func SetVersionInfo(info VersionInfo) {
	versionMu.Lock()
	defer versionMu.Unlock()
	if info.Version == "" {
		info.Version = "dev"
	}
	versionInfo = info
}

// GetVersionInfo returns the current build identity.
func GetVersionInfo() VersionInfo {
	versionMu.RLock()
	defer versionMu.RUnlock()
	return versionInfo
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(GetVersionInfo())
}
