// Package buffer resolves the buffer location of the running application and creates BufferStore for it
package buffer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/xattr"
	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/buffer/memorybuffer"
	"github.com/relex/slog-relay/buffer/sqlitebuffer"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/util"
)

// FactoryOptions defines where and whether to keep persistent buffers
type FactoryOptions struct {
	RootPath string // Root dir of buffer files, empty for "LogBuffer" under the user config dir
	Identity string // Identity of the application, empty for the path of the running executable
	Volatile bool   // Always use in-memory buffer
}

// StoreFactory creates BufferStore for one application
type StoreFactory struct {
	logger  logger.Logger
	options FactoryOptions
}

// FileInfo describes an existing buffer file
type FileInfo struct {
	Path     string
	Identity string // Identity labelled on the file, or empty if unavailable
}

// NewStoreFactory creates a StoreFactory
func NewStoreFactory(parentLogger logger.Logger, options FactoryOptions) *StoreFactory {
	return &StoreFactory{
		logger:  parentLogger.WithField(defs.LabelComponent, "BufferStoreFactory"),
		options: options,
	}
}

// ResolvePath resolves the path of persistent buffer file and ensures its directory is writable
//
// The path is the upper-case MD5 of application identity under the root dir, so the same application always gets the
// same file across restarts
func (factory *StoreFactory) ResolvePath() (string, error) {
	rootPath := factory.options.RootPath
	if rootPath == "" {
		defaultRoot, err := DefaultRootPath()
		if err != nil {
			return "", err
		}
		rootPath = defaultRoot
	}

	identity, err := factory.resolveIdentity()
	if err != nil {
		return "", err
	}

	if err := util.EnsureDir(rootPath); err != nil {
		return "", fmt.Errorf("failed to create buffer dir '%s': %w", rootPath, err)
	}
	if !util.IsWritableDir(rootPath) {
		return "", fmt.Errorf("buffer dir '%s' is not writable", rootPath)
	}
	return filepath.Join(rootPath, util.IdentityHash(identity)+defs.BufferFileSuffix), nil
}

// CreateStore creates a persistent BufferStore at the resolved path, or a volatile one if that fails for any reason
//
// CreateStore never fails
func (factory *StoreFactory) CreateStore() base.BufferStore {
	if factory.options.Volatile {
		factory.logger.Info("use volatile buffer as configured")
		return memorybuffer.NewStore()
	}

	path, perr := factory.ResolvePath()
	if perr != nil {
		factory.logger.Warnf("failed to resolve buffer location, records won't survive restart: %s", perr.Error())
		return memorybuffer.NewStore()
	}

	store, oerr := sqlitebuffer.Open(factory.logger, path)
	if oerr != nil {
		factory.logger.Warnf("failed to open buffer, records won't survive restart: %s", oerr.Error())
		return memorybuffer.NewStore()
	}

	if identity, err := factory.resolveIdentity(); err == nil {
		if xerr := xattr.Set(path, defs.XattrBufferIdentity, []byte(identity)); xerr != nil {
			factory.logger.Warnf("error labelling identity on buffer path='%s': %s", path, xerr.Error())
		}
	}

	factory.logger.Infof("opened buffer path='%s'", path)
	return store
}

func (factory *StoreFactory) resolveIdentity() (string, error) {
	if factory.options.Identity != "" {
		return factory.options.Identity, nil
	}
	return DefaultIdentity()
}

// DefaultRootPath returns the default root dir of buffer files
func DefaultRootPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(configDir, defs.BufferDirName), nil
}

// DefaultIdentity returns the resolved path of the running executable
func DefaultIdentity() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable path '%s': %w", exePath, err)
	}
	return resolved, nil
}

// ReadIdentityLabel reads the identity labelled on the given buffer file
func ReadIdentityLabel(path string) (string, error) {
	value, err := xattr.Get(path, defs.XattrBufferIdentity)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// ListFiles lists buffer files under the given root dir, sorted by path
func ListFiles(parentLogger logger.Logger, rootPath string) []FileInfo {
	entries, err := os.ReadDir(rootPath)
	if err != nil {
		if !os.IsNotExist(err) {
			parentLogger.Errorf("error scanning root dir: %s", err.Error())
		}
		return nil
	}

	fileList := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), defs.BufferFileSuffix) {
			continue
		}
		path := filepath.Join(rootPath, entry.Name())
		identity, xerr := ReadIdentityLabel(path)
		if xerr != nil {
			parentLogger.Debugf("buffer file without identity, path='%s': %s", path, xerr.Error())
		}
		fileList = append(fileList, FileInfo{Path: path, Identity: identity})
	}
	sort.Slice(fileList, func(i, j int) bool { return fileList[i].Path < fileList[j].Path })
	return fileList
}
