package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/approval"
	"github.com/vrtxceo/glove/internal/extension"
	"github.com/vrtxceo/glove/internal/notify"
	"github.com/vrtxceo/glove/internal/store"
)

const downloadTimeout = 20 * time.Second

// ExtensionsHandler serves extension management: discovery, enablement,
// testing, and the two install paths.
type ExtensionsHandler struct {
	service        *approval.Service
	notifier       *notify.Notifier
	installer      *extension.Installer
	store          *store.Store
	extensionsDir  string
	downloadClient *http.Client
	logger         *zap.Logger
}

// NewExtensionsHandler creates the extensions handler.
func NewExtensionsHandler(service *approval.Service, notifier *notify.Notifier, installer *extension.Installer, st *store.Store, extensionsDir string, logger *zap.Logger) *ExtensionsHandler {
	return &ExtensionsHandler{
		service:        service,
		notifier:       notifier,
		installer:      installer,
		store:          st,
		extensionsDir:  extensionsDir,
		downloadClient: &http.Client{Timeout: downloadTimeout},
		logger:         logger,
	}
}

// List handles GET /api/v1/admin/extensions.
func (h *ExtensionsHandler) List(w http.ResponseWriter, r *http.Request) {
	installed := h.notifier.DiscoverExtensions()
	installedSet := map[string]struct{}{}
	for _, id := range installed {
		installedSet[id] = struct{}{}
	}
	enabled := []string{}
	for _, id := range h.service.EnabledExtensions() {
		if _, ok := installedSet[id]; ok {
			enabled = append(enabled, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"extensions_dir": h.extensionsDir,
		"installed":      installed,
		"enabled":        enabled,
	})
}

type extensionConfigIn struct {
	EnabledIDs []string `json:"enabled_ids"`
}

// SetConfig handles POST /api/v1/admin/extensions/config.
func (h *ExtensionsHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var in extensionConfigIn
	if !decodeJSON(w, r, &in) {
		return
	}
	enabled, err := h.service.SetEnabledExtensions(in.EnabledIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.AppendAudit("extensions_config", "success",
		map[string]interface{}{"enabled": enabled}, "", "", ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "enabled": enabled})
}

type extensionTestIn struct {
	ExtensionID string `json:"extension_id"`
}

// Test handles POST /api/v1/admin/extensions/test.
func (h *ExtensionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	var in extensionTestIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if !lengthBetween(in.ExtensionID, 1, 128) {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}

	installed := h.notifier.DiscoverExtensions()
	found := false
	for _, id := range installed {
		if id == in.ExtensionID {
			found = true
			break
		}
	}
	if !found {
		writeDetail(w, http.StatusNotFound, "extension_not_found")
		return
	}

	if err := h.notifier.TestExtension(r.Context(), in.ExtensionID); err != nil {
		h.logger.Warn("Extension test failed",
			zap.String("extension_id", in.ExtensionID),
			zap.Error(err),
		)
		if auditErr := h.store.AppendAudit("extensions_test", "failed",
			map[string]interface{}{"extension_id": in.ExtensionID, "error": err.Error()}, "", "", ""); auditErr != nil {
			writeError(w, auditErr)
			return
		}
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("extension_test_failed: %v", err))
		return
	}

	if err := h.store.AppendAudit("extensions_test", "success",
		map[string]interface{}{"extension_id": in.ExtensionID}, "", "", ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "extension_id": in.ExtensionID})
}

type extensionInstallURLIn struct {
	URL             string `json:"url"`
	KeyID           string `json:"key_id"`
	SignatureB64    string `json:"signature_b64"`
	ReplaceExisting bool   `json:"replace_existing"`
}

// InstallFromURL handles POST /api/v1/admin/extensions/install-url.
func (h *ExtensionsHandler) InstallFromURL(w http.ResponseWriter, r *http.Request) {
	var in extensionInstallURLIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if !lengthBetween(in.URL, 8, 2000) || !lengthBetween(in.KeyID, 1, 128) ||
		!lengthBetween(in.SignatureB64, 32, 5000) {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}

	zipBytes, err := h.download(r, in.URL)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("download_failed: %v", err))
		return
	}

	extensionID, err := h.installer.InstallFromZip(zipBytes, in.ReplaceExisting, in.KeyID, in.SignatureB64)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.AppendAudit("extensions_install", "success",
		map[string]interface{}{"source": "url", "url": in.URL, "extension_id": extensionID, "key_id": in.KeyID},
		"", "", ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "extension_id": extensionID})
}

// InstallFromUpload handles POST /api/v1/admin/extensions/install-upload
// (multipart form: file, key_id, signature_b64, replace_existing).
func (h *ExtensionsHandler) InstallFromUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.installer.MaxZipBytes)+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		writeDetail(w, http.StatusBadRequest, "file_must_be_zip")
		return
	}

	zipBytes, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}

	keyID := r.FormValue("key_id")
	signatureB64 := r.FormValue("signature_b64")
	replaceExisting := r.FormValue("replace_existing") == "true" || r.FormValue("replace_existing") == "1"

	extensionID, err := h.installer.InstallFromZip(zipBytes, replaceExisting, keyID, signatureB64)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.AppendAudit("extensions_install", "success",
		map[string]interface{}{"source": "upload", "filename": header.Filename, "extension_id": extensionID, "key_id": keyID},
		"", "", ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "extension_id": extensionID})
}

func (h *ExtensionsHandler) download(r *http.Request, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.downloadClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, int64(h.installer.MaxZipBytes)+1))
}
