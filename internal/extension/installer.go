// Package extension installs signed notification-extension bundles from zip
// archives into the extensions root.
package extension

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/security"
)

// ManifestName is the file every extension bundle must contain exactly once.
const ManifestName = "glove-extension.json"

// DefaultMaxZipBytes caps the admissible archive size. Admissible archives
// are strictly smaller than the cap.
const DefaultMaxZipBytes = 25 * 1024 * 1024

// InstallError is a classified installation failure.
type InstallError struct {
	Kind string
	Info string
}

func (e *InstallError) Error() string {
	if e.Info == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Info
}

// Installer unpacks validated bundles into Root. Installs of the same
// extension id are serialized; distinct ids may proceed concurrently.
type Installer struct {
	Root              string
	RequireSignatures bool
	TrustStorePath    string
	MaxZipBytes       int

	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewInstaller builds an installer rooted at root.
func NewInstaller(root string, requireSignatures bool, trustStorePath string, logger *zap.Logger) *Installer {
	return &Installer{
		Root:              root,
		RequireSignatures: requireSignatures,
		TrustStorePath:    trustStorePath,
		MaxZipBytes:       DefaultMaxZipBytes,
		logger:            logger,
		locks:             map[string]*sync.Mutex{},
	}
}

// InstallFromZip validates and installs one bundle, returning the extension
// id. All temporary state is removed on every exit path.
func (ins *Installer) InstallFromZip(zipBytes []byte, replaceExisting bool, keyID, signatureB64 string) (string, error) {
	if len(zipBytes) >= ins.MaxZipBytes {
		return "", &InstallError{Kind: "zip_too_large"}
	}

	if ins.RequireSignatures {
		if keyID == "" || signatureB64 == "" {
			return "", &InstallError{Kind: "signature_required"}
		}
		trustStore, err := security.LoadTrustStore(ins.TrustStorePath)
		if err != nil {
			return "", &InstallError{Kind: "signature_invalid", Info: err.Error()}
		}
		if err := security.VerifyExtensionZip(zipBytes, trustStore, keyID, signatureB64); err != nil {
			return "", &InstallError{Kind: "signature_invalid", Info: err.Error()}
		}
	}

	if err := os.MkdirAll(ins.Root, 0o755); err != nil {
		return "", fmt.Errorf("create extensions root: %w", err)
	}

	tmpRoot, err := os.MkdirTemp("", "glove-ext-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpRoot)

	if err := extractZip(zipBytes, tmpRoot); err != nil {
		return "", err
	}

	manifestDir, err := findSingleManifestDir(tmpRoot)
	if err != nil {
		return "", err
	}

	extensionID := strings.TrimSpace(filepath.Base(manifestDir))
	if extensionID == "" || extensionID == "." || extensionID == string(filepath.Separator) {
		return "", &InstallError{Kind: "invalid_extension_id"}
	}
	if !validExtensionID(extensionID) {
		return "", &InstallError{Kind: "invalid_extension_id_chars"}
	}

	unlock := ins.lockID(extensionID)
	defer unlock()

	targetDir := filepath.Join(ins.Root, extensionID)
	if _, err := os.Stat(targetDir); err == nil {
		if !replaceExisting {
			return "", &InstallError{Kind: "extension_exists"}
		}
		if err := os.RemoveAll(targetDir); err != nil {
			return "", fmt.Errorf("remove existing extension %s: %w", extensionID, err)
		}
	}

	if err := copyTree(manifestDir, targetDir); err != nil {
		return "", fmt.Errorf("install extension %s: %w", extensionID, err)
	}

	ins.logger.Info("Extension installed",
		zap.String("extension_id", extensionID),
		zap.String("dir", targetDir),
	)
	return extensionID, nil
}

// extractZip unpacks the archive under tmpRoot, refusing any member whose
// resolved path would escape it.
func extractZip(zipBytes []byte, tmpRoot string) error {
	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return &InstallError{Kind: "invalid_zip_paths", Info: "not a zip archive"}
	}

	absRoot, err := filepath.Abs(tmpRoot)
	if err != nil {
		return fmt.Errorf("resolve temp root: %w", err)
	}

	// First pass: validate every member path before writing anything.
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := filepath.FromSlash(member.Name)
		if !filepath.IsLocal(name) {
			return &InstallError{Kind: "invalid_zip_paths", Info: member.Name}
		}
		resolved := filepath.Join(absRoot, name)
		if !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
			return &InstallError{Kind: "invalid_zip_paths", Info: member.Name}
		}
	}

	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(absRoot, filepath.FromSlash(member.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", member.Name, err)
		}
		if err := writeZipMember(member, dest); err != nil {
			return fmt.Errorf("extract %s: %w", member.Name, err)
		}
	}
	return nil
}

func writeZipMember(member *zip.File, dest string) error {
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	mode := member.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// findSingleManifestDir scans for the manifest and returns its parent
// directory. Exactly one manifest must exist.
func findSingleManifestDir(root string) (string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == ManifestName {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan extracted bundle: %w", err)
	}
	if len(dirs) != 1 {
		return "", &InstallError{Kind: "zip_must_contain_one_extension_manifest"}
	}
	return dirs[0], nil
}

func validExtensionID(id string) bool {
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

func (ins *Installer) lockID(id string) func() {
	ins.mu.Lock()
	lock, ok := ins.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		ins.locks[id] = lock
	}
	ins.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
